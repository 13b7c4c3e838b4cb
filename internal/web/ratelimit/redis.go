package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims entries older than the window, then admits the request
// when fewer than limit remain. Returns {allowed, count}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
local current = redis.call('ZCARD', key)
if current < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, ttl)
	return {1, current + 1}
end
return {0, current}
`)

// RedisLimiter is a sliding-window limiter shared through Redis.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
	now    func() time.Time
}

// NewRedisLimiter creates a RedisLimiter.
func NewRedisLimiter(client *redis.Client, cfg Config) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{client: client, cfg: cfg, now: time.Now}, nil
}

// Allow records one request for key if the window has room.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (*Info, error) {
	now := r.now()
	res, err := slidingWindow.Run(ctx, r.client, []string{r.cfg.Prefix + key},
		now.UnixNano(),
		now.Add(-r.cfg.Window).UnixNano(),
		r.cfg.Limit,
		r.cfg.Window.Milliseconds(),
		strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	if len(res) != 2 {
		return nil, errors.New("unexpected redis script result")
	}

	return &Info{
		Limit:     r.cfg.Limit,
		Remaining: max(0, r.cfg.Limit-int(res[1])),
		ResetAt:   now.Add(r.cfg.Window),
		Allowed:   res[0] == 1,
	}, nil
}

// Reset forgets every request recorded for key.
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.cfg.Prefix+key).Err()
}
