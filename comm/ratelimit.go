package comm

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter bounds how many sends each agent may perform per window,
// using one token bucket per agent id. The bucket holds `ceiling` tokens
// and refills at ceiling-per-window, so a full window's worth of sends may
// happen back to back but the (ceiling+1)-th within the window is denied.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	ceiling  int
	window   time.Duration
	logger   *zap.Logger
}

// NewRateLimiter creates a limiter allowing `ceiling` sends per `window`
// for every agent id.
func NewRateLimiter(ceiling int, window time.Duration, logger *zap.Logger) *RateLimiter {
	if ceiling <= 0 {
		ceiling = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		ceiling:  ceiling,
		window:   window,
		logger:   logger.Named("ratelimit"),
	}
}

func (l *RateLimiter) limiterFor(agentID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[agentID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.ceiling)/l.window.Seconds()), l.ceiling)
		l.limiters[agentID] = lim
	}
	return lim
}

// CheckAndConsume atomically decides one send attempt for agentID. On
// allow it consumes a slot and returns (true, 0). On deny nothing is
// consumed and the returned duration tells the caller when a retry is
// expected to succeed. The underlying limiter serializes concurrent
// callers, so two racing sends can never both win the last slot.
func (l *RateLimiter) CheckAndConsume(agentID string) (bool, time.Duration) {
	reservation := l.limiterFor(agentID).Reserve()
	if !reservation.OK() {
		return false, l.window
	}
	delay := reservation.Delay()
	if delay > 0 {
		// The slot would only become available in the future; give it back
		// and report the wait instead.
		reservation.Cancel()
		l.logger.Debug("Send throttled",
			zap.String("agentID", agentID),
			zap.Duration("retryAfter", delay),
		)
		return false, delay
	}
	return true, 0
}

// Ceiling returns the configured per-window send ceiling.
func (l *RateLimiter) Ceiling() int {
	return l.ceiling
}

// Window returns the configured window length.
func (l *RateLimiter) Window() time.Duration {
	return l.window
}
