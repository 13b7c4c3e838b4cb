package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/windmill-io/windmill/internal/cli/config"
	"github.com/windmill-io/windmill/internal/web/api"
	"github.com/windmill-io/windmill/internal/web/auth"
	"github.com/windmill-io/windmill/internal/web/cache"
	"github.com/windmill-io/windmill/internal/web/profiling"
	"github.com/windmill-io/windmill/internal/web/ratelimit"
	"github.com/windmill-io/windmill/internal/web/server"
)

func newServeCommand(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve operator metadata over HTTP",
		Long: `Start the operator metadata API.

The catalog is marshalled once at startup. Send SIGHUP to re-marshal it and
drop cached responses; SIGINT or SIGTERM shut the server down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, reload, err := a.buildServer(addr)
			if err != nil {
				return err
			}

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-hup:
						if err := reload(ctx); err != nil {
							a.logger.Error("reload failed", zap.Error(err))
						}
					}
				}
			}()

			if a.cfg.Server.DebugAddr != "" {
				go a.serveDebug(ctx)
			}
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.host and server.port)")
	return cmd
}

// buildServer wires the API with its cache, limiter and token service and
// registers their cleanup as shutdown hooks.
func (a *app) buildServer(addr string) (*server.Server, func(context.Context) error, error) {
	cfg := a.cfg
	if addr == "" {
		addr = cfg.Server.Addr()
	}

	idx, err := a.index()
	if err != nil {
		return nil, nil, err
	}
	builder, err := a.builder()
	if err != nil {
		return nil, nil, err
	}

	c, err := newCache(cfg.Cache)
	if err != nil {
		return nil, nil, err
	}
	var redisClient *redis.Client
	if rc, ok := c.(*cache.RedisCache); ok {
		redisClient = rc.Client()
	}

	var limiter ratelimit.Limiter
	if cfg.Server.RateLimit.Requests > 0 {
		rl := ratelimit.DefaultConfig()
		rl.Limit = cfg.Server.RateLimit.Requests
		rl.Window = cfg.Server.RateLimit.Window
		limiter, err = ratelimit.New(rl, redisClient)
		if err != nil {
			_ = c.Close()
			return nil, nil, err
		}
	}

	var tokens *auth.TokenService
	if cfg.Server.Auth.Secret != "" {
		tokens, err = auth.NewTokenService(cfg.Server.Auth.Secret, cfg.Server.Auth.TTL)
		if err != nil {
			_ = c.Close()
			return nil, nil, err
		}
	}

	h, err := api.New(api.Options{
		Index:    idx,
		Builder:  builder,
		Cache:    c,
		CacheTTL: cfg.Cache.TTL,
		Tokens:   tokens,
		Limiter:  limiter,
		Logger:   a.logger,
	})
	if err != nil {
		_ = c.Close()
		return nil, nil, err
	}

	sc := server.DefaultConfig(h.Routes())
	sc.Address = addr
	sc.ShutdownTimeout = cfg.Server.ShutdownTimeout
	sc.Logger = a.logger
	if cfg.Server.TLS.Enabled() {
		sc.TLS = &server.TLSConfig{CertFile: cfg.Server.TLS.CertFile, KeyFile: cfg.Server.TLS.KeyFile}
	}

	srv, err := server.New(sc)
	if err != nil {
		_ = h.Close()
		_ = c.Close()
		return nil, nil, err
	}

	srv.RegisterHook(func(context.Context) error { return h.Close() })
	if closer, ok := limiter.(interface{ Close() error }); ok {
		srv.RegisterHook(func(context.Context) error { return closer.Close() })
	}
	srv.RegisterHook(func(context.Context) error { return c.Close() })

	return srv, h.Reload, nil
}

func newCache(cfg config.CacheConfig) (cache.Cache, error) {
	cc := cache.DefaultCacheConfig()
	cc.DefaultTTL = cfg.TTL
	return cache.New(cache.Options{
		Backend: cfg.Backend,
		Config:  cc,
		Redis: cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
	})
}

// serveDebug exposes pprof and runtime stats on the debug address until ctx
// is done.
func (a *app) serveDebug(ctx context.Context) {
	sc := server.DefaultConfig(profiling.Handler(profiling.DefaultConfig()))
	sc.Address = a.cfg.Server.DebugAddr
	// Profiles can take longer than the API write timeout.
	sc.WriteTimeout = 0
	sc.Logger = a.logger.Named("debug")

	srv, err := server.New(sc)
	if err != nil {
		a.logger.Error("debug server disabled", zap.Error(err))
		return
	}
	if err := srv.Run(ctx); err != nil {
		a.logger.Error("debug server failed", zap.String("addr", sc.Address), zap.Error(err))
	}
}
