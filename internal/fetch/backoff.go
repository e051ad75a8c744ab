package fetch

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy bounds the retries of a single page request. Rate-limit signals
// and transient failures share it.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is used for zero-valued Policy fields.
var DefaultPolicy = Policy{
	MaxAttempts: 5,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    30 * time.Second,
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Ceiling returns the exponential backoff ceiling after the given failed
// attempt (1-based): BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (p Policy) Ceiling(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay || d <= 0 {
			return p.MaxDelay
		}
	}
	return min(d, p.MaxDelay)
}

// Delay applies full jitter to the ceiling for attempt. A platform hint
// (Retry-After) raises the result, still capped at MaxDelay.
func (p Policy) Delay(attempt int, hint time.Duration, jitter func(time.Duration) time.Duration) time.Duration {
	d := jitter(p.Ceiling(attempt))
	if hint > d {
		d = min(hint, p.MaxDelay)
	}
	return d
}

// fullJitter returns a uniformly random duration in [0, d].
func fullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d) + 1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
