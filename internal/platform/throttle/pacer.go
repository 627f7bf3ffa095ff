// Package throttle spaces outbound calls to respect external rate limits.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer hands out call slots at a fixed interval. The first Wait returns
// immediately; every later Wait returns no earlier than Interval after the
// slot handed out before it. Pacer is safe for concurrent use.
type Pacer struct {
	interval time.Duration
	limiter  *rate.Limiter
}

// NewPacer builds a pacer. A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval < 0 {
		interval = 0
	}
	p := &Pacer{interval: interval}
	if interval > 0 {
		// Burst 1: no two slots closer than interval.
		p.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return p
}

// Interval returns the configured spacing.
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}

// Wait blocks until the caller's slot arrives or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}

// reserve books the next slot as of now and returns how long to wait for it.
func (p *Pacer) reserve(now time.Time) time.Duration {
	return p.limiter.ReserveN(now, 1).DelayFrom(now)
}

// Each calls fn for every item in order, pacing successive calls. Errors
// returned by fn are collected per index and never stop the iteration. When
// ctx ends, remaining items are reported with ctx's error without calling fn.
func Each[T any](ctx context.Context, p *Pacer, items []T, fn func(context.Context, int, T) error) []error {
	errs := make([]error, len(items))
	for i, item := range items {
		if err := p.Wait(ctx); err != nil {
			for j := i; j < len(items); j++ {
				errs[j] = err
			}
			return errs
		}
		errs[i] = fn(ctx, i, item)
	}
	return errs
}
