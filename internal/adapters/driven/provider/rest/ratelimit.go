package rest

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default pacing for outbound feed requests.
const (
	DefaultRequestsPerSecond = 5.0
	DefaultBurst             = 10

	// defaultBackoff applies when a 429 arrives without a Retry-After.
	defaultBackoff = 60 * time.Second
)

// rateLimiter paces requests with a token bucket and honors
// server-directed backoff from 429 responses.
type rateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// wait blocks until a request may be sent. Any backoff period set by
// recordRetryAfter elapses first, then the token bucket.
func (r *rateLimiter) wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if time.Now().Before(retryAt) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(retryAt)):
		}
	}

	return r.limiter.Wait(ctx)
}

// recordRetryAfter sets a backoff period after a 429 response.
// Non-positive seconds fall back to defaultBackoff.
func (r *rateLimiter) recordRetryAfter(seconds int) {
	backoff := time.Duration(seconds) * time.Second
	if seconds <= 0 {
		backoff = defaultBackoff
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryAt = time.Now().Add(backoff)
}

// allow reports whether a request could be sent right now without blocking.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}
	return r.limiter.Allow()
}
