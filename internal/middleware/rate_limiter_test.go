package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowWithinLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 5})

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("user-a"))
	}
	assert.False(t, rl.Allow("user-a"))

	// A different key has its own window.
	assert.True(t, rl.Allow("user-b"))
}

func TestMiddlewareReturns429(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 2})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/v1/moderate", nil)
		req.Header.Set("X-User-ID", "u-1")
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/moderate", nil)
	req.Header.Set("X-User-ID", "u-1")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestMiddlewareFallsBackToClientIP(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 1})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Same IP, different source port: same window.
	req2 := httptest.NewRequest("GET", "/healthz", nil)
	req2.RemoteAddr = "10.0.0.1:6000"
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestStats(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{})
	rl.Allow("a")
	rl.Allow("b")

	stats := rl.Stats()
	assert.Equal(t, 2, stats["active_windows"])
	assert.Equal(t, 600, stats["max_calls_per_min"])
}
