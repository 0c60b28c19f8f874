package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RPS: 1, Burst: 2}, discardLogger())
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("1.1.1.1"))
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RPS: 1, Burst: 1}, discardLogger())
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{}, discardLogger())
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("1.1.1.1"))
	}
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RPS: 1, Burst: 1, IdleTTL: time.Minute}, discardLogger())
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("1.1.1.1")
	now = now.Add(2 * time.Minute)
	rl.Allow("2.2.2.2")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "1.1.1.1")
	assert.Contains(t, rl.visitors, "2.2.2.2")
}

func TestRateLimiter_Middleware429(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RPS: 0.5, Burst: 1}, discardLogger())
	h := rl.Middleware(http.HandlerFunc(okHandler))

	first := serveFrom(h, "10.0.0.1:1", "/api/v1/products")
	second := serveFrom(h, "10.0.0.1:2", "/api/v1/products")

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "2", second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), `"RATE_LIMITED"`)
	assert.Contains(t, second.Body.String(), `"retryable":true`)
}
