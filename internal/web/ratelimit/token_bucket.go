package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is an in-memory limiter. Each key holds up to Limit tokens,
// refilled continuously at Limit per Window.
type TokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     Config
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a TokenBucket. Idle buckets are evicted every two
// windows until Close.
func NewTokenBucket(cfg Config) (*TokenBucket, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	tb := &TokenBucket{
		buckets: make(map[string]*bucket),
		cfg:     cfg,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go tb.cleanupLoop(2 * cfg.Window)
	return tb, nil
}

// Allow consumes one token for key.
func (tb *TokenBucket) Allow(ctx context.Context, key string) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	capacity := float64(tb.cfg.Limit)
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, lastRefill: now}
		tb.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		b.tokens = min(capacity, b.tokens+capacity*elapsed.Seconds()/tb.cfg.Window.Seconds())
		b.lastRefill = now
	}

	info := &Info{Limit: tb.cfg.Limit}
	if b.tokens >= 1 {
		b.tokens--
		info.Allowed = true
	}
	info.Remaining = int(b.tokens)
	// The bucket is full again at ResetAt.
	info.ResetAt = now.Add(time.Duration((capacity - b.tokens) / capacity * float64(tb.cfg.Window)))
	return info, nil
}

func (tb *TokenBucket) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tb.evictIdle(every)
		case <-tb.done:
			return
		}
	}
}

func (tb *TokenBucket) evictIdle(idle time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := tb.now()
	for key, b := range tb.buckets {
		if now.Sub(b.lastRefill) > idle {
			delete(tb.buckets, key)
		}
	}
}

// Close stops the eviction goroutine.
func (tb *TokenBucket) Close() error {
	tb.once.Do(func() { close(tb.done) })
	return nil
}
