package main

import "golang.org/x/time/rate"

// rateLimiter wraps golang.org/x/time/rate for per-participant control
// channel throttling. This replaces the hand-rolled timestamp-bucket limiter
// the earlier room implementation used: x/time/rate already sat in the
// dependency graph and gives correct token-bucket burst behavior for free.
type rateLimiter struct {
	lim *rate.Limiter
}

func newRateLimiter(perSecond float64) *rateLimiter {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether one more control message may be admitted right now.
func (r *rateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.lim.Allow()
}
