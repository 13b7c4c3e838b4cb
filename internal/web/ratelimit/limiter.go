// Package ratelimit throttles API clients.
//
// TokenBucket keeps per-client buckets in process memory. RedisLimiter keeps
// a sliding window per client in Redis so that several API servers share one
// budget.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a client may issue another request.
type Limiter interface {
	// Allow consumes one request for key.
	Allow(ctx context.Context, key string) (*Info, error)
}

// Info describes the client's budget after an Allow call.
type Info struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Allowed   bool
}

// Config sizes a limiter: Limit requests per Window.
type Config struct {
	Limit  int
	Window time.Duration
	// Prefix namespaces Redis keys.
	Prefix string
}

// DefaultConfig allows 100 requests per minute.
func DefaultConfig() Config {
	return Config{
		Limit:  100,
		Window: time.Minute,
		Prefix: "windmill:ratelimit:",
	}
}

func (c Config) validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("rate limit must be greater than 0, got %d", c.Limit)
	}
	if c.Window <= 0 {
		return fmt.Errorf("rate limit window must be greater than 0, got %s", c.Window)
	}
	return nil
}

// New returns a RedisLimiter when client is set, otherwise a TokenBucket.
func New(cfg Config, client *redis.Client) (Limiter, error) {
	if client != nil {
		return NewRedisLimiter(client, cfg)
	}
	return NewTokenBucket(cfg)
}
