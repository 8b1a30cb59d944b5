// Package pacing decides how fast dispatch workers send events: either as
// fast as possible under an optional global rate cap, or with a random
// human-observable delay between each worker's sends.
package pacing

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter caps sends per second across all workers of a run.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows rps sends per second with a burst of rps.
// A zero rps disables limiting.
func NewRateLimiter(rps int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.limiter.Limit() == 0 {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// RPS returns the configured rate.
func (r *RateLimiter) RPS() int {
	return int(r.limiter.Limit())
}
