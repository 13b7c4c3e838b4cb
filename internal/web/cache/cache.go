// Package cache caches rendered descriptor payloads for the HTTP API.
//
// Two backends implement Cache: MemoryCache for a single process and
// RedisCache for a fleet of API servers sharing one Redis. Both namespace
// keys with CacheConfig.Prefix.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Cache defines the interface for all cache backends
type Cache interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with a TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values under the cache prefix
	Clear(ctx context.Context) error

	// Exists checks if a key exists in the cache
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases backend resources
	Close() error
}

// CacheConfig holds common configuration for cache backends
type CacheConfig struct {
	// DefaultTTL is used when Set is called with a zero TTL
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
}

// DefaultCacheConfig returns a default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "windmill:",
	}
}

// ErrCacheMiss is returned when a key is not found in the cache
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	var miss ErrCacheMiss
	return errors.As(err, &miss)
}

// Keys used by the API.
const (
	KeyOperatorList = "operators:list"
)

// OperatorKey is the cache key of one rendered descriptor.
func OperatorKey(typeName string) string {
	return "operators:type:" + typeName
}

// GetOrLoad returns the cached value for key, calling load and caching its
// result on a miss. Backend errors fall through to load so an unavailable
// cache never fails a request. The boolean reports a cache hit.
func GetOrLoad(ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	if value, err := c.Get(ctx, key); err == nil {
		return value, true, nil
	}

	value, err := load(ctx)
	if err != nil {
		return nil, false, err
	}
	_ = c.Set(ctx, key, value, ttl)
	return value, false, nil
}

// Options selects and configures a backend.
type Options struct {
	// Backend is "memory" or "redis".
	Backend string
	Config  CacheConfig
	Redis   RedisConfig
}

// New creates the backend named by opts.Backend.
func New(opts Options) (Cache, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryCacheWithConfig(opts.Config), nil
	case "redis":
		rc := opts.Redis
		rc.CacheConfig = opts.Config
		return NewRedisCacheWithConfig(rc)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
