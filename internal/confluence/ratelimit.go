package confluence

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces remote API requests with a token bucket and honors
// server-imposed backoff from 429 responses. Backoff sleeps are local to
// the waiting call and never block unrelated in-flight requests.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// NewRateLimiter creates a limiter allowing rps sustained requests per
// second with the given burst. Non-positive inputs fall back to 5/5.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 5
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request can be made without exceeding the rate limit.
// It also respects any backoff period set by RecordRateLimit.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if until := time.Until(retryAt); until > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(until):
		}
	}

	return r.limiter.Wait(ctx)
}

// RecordRateLimit registers a server-supplied backoff hint after a 429
// response. Subsequent Wait calls sleep until the hint elapses.
func (r *RateLimiter) RecordRateLimit(d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if at := time.Now().Add(d); at.After(r.retryAt) {
		r.retryAt = at
	}
}
