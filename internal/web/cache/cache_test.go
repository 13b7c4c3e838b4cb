package cache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheWithClient(client, DefaultCacheConfig())
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func setupMemory(t *testing.T) *MemoryCache {
	t.Helper()
	c := NewMemoryCache()
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// backends runs fn against every Cache implementation.
func backends(t *testing.T, fn func(t *testing.T, c Cache)) {
	t.Run("memory", func(t *testing.T) { fn(t, setupMemory(t)) })
	t.Run("redis", func(t *testing.T) {
		c, _ := setupTestRedis(t)
		fn(t, c)
	})
}

func TestCache_SetGetDelete(t *testing.T) {
	backends(t, func(t *testing.T, c Cache) {
		ctx := context.Background()

		_, err := c.Get(ctx, KeyOperatorList)
		assert.True(t, IsCacheMiss(err))

		require.NoError(t, c.Set(ctx, KeyOperatorList, []byte(`[]`), time.Minute))
		got, err := c.Get(ctx, KeyOperatorList)
		require.NoError(t, err)
		assert.Equal(t, []byte(`[]`), got)

		ok, err := c.Exists(ctx, KeyOperatorList)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, c.Delete(ctx, KeyOperatorList))
		ok, err = c.Exists(ctx, KeyOperatorList)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCache_Clear(t *testing.T) {
	backends(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		require.NoError(t, c.Set(ctx, OperatorKey("BashOperator"), []byte("a"), 0))
		require.NoError(t, c.Set(ctx, OperatorKey("EmailOperator"), []byte("b"), 0))

		require.NoError(t, c.Clear(ctx))

		for _, k := range []string{OperatorKey("BashOperator"), OperatorKey("EmailOperator")} {
			ok, err := c.Exists(ctx, k)
			require.NoError(t, err)
			assert.False(t, ok, k)
		}
	})
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := setupMemory(t)
	now := time.Now()
	c.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))

	now = now.Add(2 * time.Second)
	_, err := c.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryCache_CopiesValues(t *testing.T) {
	c := setupMemory(t)
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value, 0))
	value[0] = 'x'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestMemoryCache_CanceledContext(t *testing.T) {
	c := setupMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, 0), context.Canceled)
}

func TestRedisCache_TTL(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	assert.Equal(t, DefaultCacheConfig().DefaultTTL, mr.TTL("windmill:k"))

	mr.FastForward(10 * time.Minute)
	_, err := c.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestNew(t *testing.T) {
	c, err := New(Options{Backend: "memory", Config: DefaultCacheConfig()})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)
	_ = c.Close()

	mr := miniredis.RunT(t)
	c, err = New(Options{Backend: "redis", Config: DefaultCacheConfig(), Redis: RedisConfig{Addr: mr.Addr()}})
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, c)
	_ = c.Close()

	_, err = New(Options{Backend: "memcached"})
	assert.Error(t, err)
}

func TestGetOrLoad(t *testing.T) {
	c := setupMemory(t)
	ctx := context.Background()

	calls := 0
	load := func(context.Context) ([]byte, error) {
		calls++
		return []byte("payload"), nil
	}

	v, hit, err := GetOrLoad(ctx, c, "k", time.Minute, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("payload"), v)

	v, hit, err = GetOrLoad(ctx, c, "k", time.Minute, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("payload"), v)
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, _, err = GetOrLoad(ctx, c, "other", time.Minute, func(context.Context) ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestETag(t *testing.T) {
	etag := GenerateETag([]byte("content"))
	assert.Equal(t, etag, GenerateETag([]byte("content")))
	assert.NotEqual(t, etag, GenerateETag([]byte("other")))
	assert.Len(t, etag, 34)

	assert.Equal(t, []string{`"a"`, `W/"b"`}, ParseIfNoneMatch(` "a", W/"b", bogus`))
	assert.Equal(t, []string{"*"}, ParseIfNoneMatch("*"))
	assert.Nil(t, ParseIfNoneMatch(""))

	assert.True(t, MatchesETag(`"a"`, []string{`W/"a"`}))
	assert.True(t, MatchesETag(`"a"`, []string{"*"}))
	assert.False(t, MatchesETag(`"a"`, []string{`"b"`}))

	t.Run("not modified", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("If-None-Match", etag)
		w := httptest.NewRecorder()
		assert.True(t, NotModified(w, r, etag))
		assert.Equal(t, http.StatusNotModified, w.Code)
		assert.Equal(t, etag, w.Header().Get("ETag"))
	})

	t.Run("modified", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("If-None-Match", `"stale"`)
		w := httptest.NewRecorder()
		assert.False(t, NotModified(w, r, etag))
		assert.Equal(t, etag, w.Header().Get("ETag"))
	})
}
