package util

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket that replenishes at a fixed per-minute rate
// and holds a single token, so calls are spaced evenly.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter that allows perMinute operations per
// minute. A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
	}
}

// Wait blocks until a rate-limit token is available or the context is
// cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

// Allow reports whether a token is available right now, consuming it if so.
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.Allow()
}
