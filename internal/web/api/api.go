// Package api serves marshalled operator metadata over HTTP.
//
//	GET  /healthz
//	GET  /v1/operators                 marshalled list, ETag aware
//	GET  /v1/operators/search?q=&limit=
//	GET  /v1/operators/{type}
//	GET  /v1/modules                   module -> type names
//	POST /v1/operators/validate        schema and round-trip check
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/windmill-io/windmill/internal/handler"
	"github.com/windmill-io/windmill/internal/index"
	"github.com/windmill-io/windmill/internal/metadata"
	"github.com/windmill-io/windmill/internal/search"
	"github.com/windmill-io/windmill/internal/web/auth"
	"github.com/windmill-io/windmill/internal/web/cache"
	"github.com/windmill-io/windmill/internal/web/middleware"
	"github.com/windmill-io/windmill/internal/web/ratelimit"
	"github.com/windmill-io/windmill/internal/web/response"
)

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 1 << 20

// Options wires the API to its collaborators. Index is required.
type Options struct {
	Index     *index.Index
	Builder   *handler.Builder
	Validator metadata.Validator
	Cache     cache.Cache
	CacheTTL  time.Duration
	Tokens    *auth.TokenService
	Limiter   ratelimit.Limiter
	Logger    *zap.Logger
}

// Handler is the operator API.
type Handler struct {
	index     *index.Index
	builder   *handler.Builder
	validator metadata.Validator
	cache     cache.Cache
	cacheTTL  time.Duration
	tokens    *auth.TokenService
	limiter   ratelimit.Limiter
	logger    *zap.Logger

	mu       sync.RWMutex
	registry *index.Registry
	search   *search.Index
}

// New creates the API and loads the operator list once.
func New(opts Options) (*Handler, error) {
	if opts.Index == nil {
		return nil, errors.New("api: index is required")
	}
	h := &Handler{
		index:     opts.Index,
		builder:   opts.Builder,
		validator: opts.Validator,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		tokens:    opts.Tokens,
		limiter:   opts.Limiter,
		logger:    opts.Logger,
		search:    search.New(),
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.validator == nil {
		v, err := metadata.DefaultValidator()
		if err != nil {
			return nil, err
		}
		h.validator = v
	}
	if h.builder == nil {
		b, err := handler.NewBuilder(handler.Options{Validator: h.validator})
		if err != nil {
			return nil, err
		}
		h.builder = b
	}
	if h.cache == nil {
		h.cache = cache.NewMemoryCache()
	}
	if err := h.Reload(context.Background()); err != nil {
		return nil, err
	}
	return h, nil
}

// Reload re-marshals the catalog, rebuilds the lookup and search indexes and
// drops cached payloads. Broken operators are logged and left out.
func (h *Handler) Reload(ctx context.Context) error {
	list, err := h.index.MarshallOperatorList()
	if err != nil {
		var ie *index.IntrospectionError
		if !errors.As(err, &ie) {
			return fmt.Errorf("failed to marshal operators: %w", err)
		}
		h.logger.Warn("serving partial operator list", zap.Int("operators", len(list)), zap.Error(err))
	}

	registry, err := index.NewRegistry(list)
	if err != nil {
		return err
	}
	if err := h.search.Load(list); err != nil {
		return err
	}

	h.mu.Lock()
	h.registry = registry
	h.mu.Unlock()

	if err := h.cache.Clear(ctx); err != nil {
		h.logger.Warn("failed to clear cache", zap.Error(err))
	}
	h.logger.Info("operators loaded", zap.Int("operators", registry.Count()))
	return nil
}

// Close releases the search index.
func (h *Handler) Close() error {
	return h.search.Close()
}

// Routes builds the chi router with the middleware chain.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(h.logger, "/healthz"),
		middleware.Recovery(h.logger),
	)

	r.Get("/healthz", h.health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.tokens), middleware.RateLimit(h.limiter, h.logger))

		r.With(middleware.RequireScope(auth.ScopeRead)).Get("/v1/modules", h.modules)
		r.Route("/v1/operators", func(r chi.Router) {
			r.With(middleware.RequireScope(auth.ScopeRead)).Get("/", h.list)
			r.With(middleware.RequireScope(auth.ScopeRead)).Get("/search", h.searchOperators)
			r.With(middleware.RequireScope(auth.ScopeValidate)).Post("/validate", h.validate)
			r.With(middleware.RequireScope(auth.ScopeRead)).Get("/{type}", h.describe)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (h *Handler) reg() *index.Registry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"operators": h.reg().Count(),
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	body, hit, err := cache.GetOrLoad(r.Context(), h.cache, cache.KeyOperatorList, h.cacheTTL,
		func(context.Context) ([]byte, error) {
			return metadata.Serialize(h.reg().List())
		})
	if err != nil {
		h.logger.Error("failed to render operator list", zap.Error(err))
		response.Error(w, r, http.StatusInternalServerError, "failed to render operator list")
		return
	}
	h.write(w, r, body, hit)
}

func (h *Handler) describe(w http.ResponseWriter, r *http.Request) {
	typeName := chi.URLParam(r, "type")
	body, hit, err := cache.GetOrLoad(r.Context(), h.cache, cache.OperatorKey(typeName), h.cacheTTL,
		func(context.Context) ([]byte, error) {
			d, err := h.reg().Get(typeName)
			if err != nil {
				return nil, err
			}
			return metadata.Serialize(d)
		})
	if errors.Is(err, index.ErrOperatorNotFound) {
		response.Error(w, r, http.StatusNotFound, fmt.Sprintf("operator %q not found", typeName))
		return
	}
	if err != nil {
		h.logger.Error("failed to render operator", zap.String("type", typeName), zap.Error(err))
		response.Error(w, r, http.StatusInternalServerError, "failed to render operator")
		return
	}
	h.write(w, r, body, hit)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, body []byte, hit bool) {
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	if cache.NotModified(w, r, cache.GenerateETag(body)) {
		return
	}
	response.Raw(w, http.StatusOK, body)
}

type searchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
}

func (h *Handler) searchOperators(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := search.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.Error(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	results, err := h.search.Search(q, limit)
	if err != nil {
		h.logger.Error("search failed", zap.String("query", q), zap.Error(err))
		response.Error(w, r, http.StatusInternalServerError, "search failed")
		return
	}
	response.JSON(w, http.StatusOK, &searchResponse{Query: q, Results: results})
}

func (h *Handler) modules(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.reg().Modules())
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	Type  string `json:"type"`
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(raw) > maxBodyBytes {
		response.Error(w, r, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	var dict map[string]any
	if err := json.Unmarshal(raw, &dict); err != nil || dict == nil {
		response.Error(w, r, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	if err := h.validator.Validate(dict); err != nil {
		response.Error(w, r, http.StatusUnprocessableEntity, "invalid operator descriptor", violations(err)...)
		return
	}
	typeName, dumped, err := h.roundTrip(dict)
	if err != nil {
		response.Error(w, r, http.StatusUnprocessableEntity, "invalid operator descriptor", violations(err)...)
		return
	}

	want, err := metadata.Serialize(dict)
	if err == nil {
		var got []byte
		got, err = metadata.Serialize(dumped)
		if err == nil && !bytes.Equal(want, got) {
			err = errors.New("descriptor does not survive a round trip")
		}
	}
	if err != nil {
		response.Error(w, r, http.StatusUnprocessableEntity, "invalid operator descriptor", err.Error())
		return
	}
	response.JSON(w, http.StatusOK, &validateResponse{Valid: true, Type: typeName})
}

func (h *Handler) roundTrip(dict map[string]any) (string, map[string]any, error) {
	hd, err := h.builder.FromMarsh(dict)
	if err != nil {
		return "", nil, err
	}
	dumped, err := hd.Dump()
	if err != nil {
		return "", nil, err
	}
	return hd.Type(), dumped, nil
}

// violations flattens joined errors into one detail per cause.
func violations(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
