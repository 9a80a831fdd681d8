package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// rpsLimiter spaces model requests so one generation run cannot exceed the
// provider's request quota. The bucket starts full, so the first burst
// requests of a run go out at once.
type rpsLimiter struct {
	lim *rate.Limiter
}

// newRPSLimiter returns nil when rps <= 0; Acquire on nil never waits.
func newRPSLimiter(rps float64, burst int) *rpsLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &rpsLimiter{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Acquire waits for a request slot. It fails without waiting when ctx's
// deadline would pass before a slot frees up.
func (l *rpsLimiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.lim.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("llm: rate limit: %w", err)
	}
	return nil
}
