package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/windmill-io/windmill/internal/web/auth"
	"github.com/windmill-io/windmill/internal/web/ratelimit"
)

type stubLimiter struct {
	keys []string
	info *ratelimit.Info
	err  error
}

func (s *stubLimiter) Allow(_ context.Context, key string) (*ratelimit.Info, error) {
	s.keys = append(s.keys, key)
	return s.info, s.err
}

func TestRateLimit(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		l := &stubLimiter{info: &ratelimit.Info{Limit: 10, Remaining: 9, Allowed: true, ResetAt: time.Now()}}
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		RateLimit(l, zap.NewNop())(ok()).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, []string{"ip:10.0.0.1"}, l.keys)
	})

	t.Run("exceeded", func(t *testing.T) {
		l := &stubLimiter{info: &ratelimit.Info{Limit: 10, ResetAt: time.Now().Add(30 * time.Second)}}
		w := httptest.NewRecorder()
		RateLimit(l, zap.NewNop())(ok()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
		assert.Contains(t, w.Body.String(), "too_many_requests")
	})

	t.Run("limiter error lets the request through", func(t *testing.T) {
		l := &stubLimiter{err: errors.New("redis down")}
		w := httptest.NewRecorder()
		RateLimit(l, zap.NewNop())(ok()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("keyed by token subject", func(t *testing.T) {
		tokens, err := auth.NewTokenService("secret", time.Hour)
		require.NoError(t, err)
		token, err := tokens.GenerateToken("ci", []string{auth.ScopeRead})
		require.NoError(t, err)

		l := &stubLimiter{info: &ratelimit.Info{Limit: 1, Allowed: true}}
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		Auth(tokens)(RateLimit(l, zap.NewNop())(ok())).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"sub:ci"}, l.keys)
	})

	t.Run("nil limiter", func(t *testing.T) {
		w := httptest.NewRecorder()
		RateLimit(nil, zap.NewNop())(ok()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
