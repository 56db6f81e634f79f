package comm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRateLimiterAllowsUpToCeiling(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute, zap.NewNop())

	allowed, retryAfter := limiter.CheckAndConsume("a")
	assert.True(t, allowed)
	assert.Zero(t, retryAfter)

	allowed, _ = limiter.CheckAndConsume("a")
	assert.True(t, allowed)

	allowed, retryAfter = limiter.CheckAndConsume("a")
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestRateLimiterIsPerAgent(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute, zap.NewNop())

	allowed, _ := limiter.CheckAndConsume("a")
	assert.True(t, allowed)
	allowed, _ = limiter.CheckAndConsume("a")
	assert.False(t, allowed)

	// A different agent has its own bucket.
	allowed, _ = limiter.CheckAndConsume("b")
	assert.True(t, allowed)
}

func TestRateLimiterDenyDoesNotConsume(t *testing.T) {
	limiter := NewRateLimiter(1, time.Hour, zap.NewNop())

	allowed, _ := limiter.CheckAndConsume("a")
	assert.True(t, allowed)

	// Repeated denials must not push the retry hint further out.
	_, first := limiter.CheckAndConsume("a")
	_, second := limiter.CheckAndConsume("a")
	assert.Greater(t, first, time.Duration(0))
	assert.LessOrEqual(t, second, first)
}

func TestRateLimiterDefaults(t *testing.T) {
	limiter := NewRateLimiter(0, 0, nil)
	assert.Equal(t, 1, limiter.Ceiling())
	assert.Equal(t, time.Second, limiter.Window())
}
