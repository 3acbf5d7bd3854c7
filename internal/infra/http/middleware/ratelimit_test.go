package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisinfra "github.com/vexguard/api/internal/infra/redis"
	"github.com/vexguard/api/pkg/domain/apikey"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/logger"
)

type fakePathLimiter struct {
	keys   []string
	result *redisinfra.RateLimitResult
	err    error
}

func (f *fakePathLimiter) Allow(_ context.Context, key string) (*redisinfra.RateLimitResult, error) {
	f.keys = append(f.keys, key)
	return f.result, f.err
}

func (f *fakePathLimiter) Limit() int { return 60 }

func allowedResult() *redisinfra.RateLimitResult {
	return &redisinfra.RateLimitResult{
		Allowed:   true,
		Remaining: 59,
		ResetAt:   time.Now().Add(time.Minute),
	}
}

func okHandler(hits *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyRateLimitKeysByKeyPrefix(t *testing.T) {
	key, err := apikey.NewAPIKey(shared.NewID(), shared.NewID(), "plugin", "hash", "vx_live_abcd", nil)
	require.NoError(t, err)

	limiter := &fakePathLimiter{result: allowedResult()}
	hits := 0
	mw := APIKeyRateLimit(limiter, "ide_analyze", logger.NewNop())(okHandler(&hits))

	req := httptest.NewRequest(http.MethodPost, "/ide/analyze", nil)
	req = req.WithContext(context.WithValue(req.Context(), apiKeyContextKey, key))
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, hits)
	require.Len(t, limiter.keys, 1)
	assert.Equal(t, "key:vx_live_abcd", limiter.keys[0])
	assert.Equal(t, "60", rec.Header().Get("X-RateLimit-Limit"))
}

func TestAPIKeyRateLimitFallsBackToClientIP(t *testing.T) {
	limiter := &fakePathLimiter{result: allowedResult()}
	hits := 0
	mw := APIKeyRateLimit(limiter, "ide_analyze", logger.NewNop())(okHandler(&hits))

	req := httptest.NewRequest(http.MethodPost, "/ide/analyze", nil)
	req.Header.Set("X-Real-IP", "203.0.113.7")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, 1, hits)
	require.Len(t, limiter.keys, 1)
	assert.Equal(t, "ip:203.0.113.7", limiter.keys[0])
}

func TestAPIKeyRateLimitDenied(t *testing.T) {
	limiter := &fakePathLimiter{result: &redisinfra.RateLimitResult{
		Allowed: false,
		ResetAt: time.Now().Add(30 * time.Second),
		RetryAt: time.Now().Add(30 * time.Second),
	}}
	hits := 0
	mw := APIKeyRateLimit(limiter, "ide_patch", logger.NewNop())(okHandler(&hits))

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ide/patch-suggestion", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 0, hits)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestAPIKeyRateLimitFailsOpen(t *testing.T) {
	limiter := &fakePathLimiter{err: assert.AnError}
	hits := 0
	mw := APIKeyRateLimit(limiter, "fp_patterns", logger.NewNop())(okHandler(&hits))

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ide/false-positive-patterns", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, hits)
}
