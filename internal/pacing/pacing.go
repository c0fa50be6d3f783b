// Package pacing spaces out outbound calls to providers that ask for polite
// request rates.
package pacing

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Scheduler blocks until the next call may start.
type Scheduler interface {
	Wait(ctx context.Context) error
}

// Interval lets one call through immediately and then at most one call per
// interval.
type Interval struct {
	lim *rate.Limiter
}

// NewInterval creates a fixed-interval scheduler. A non-positive interval
// never blocks.
func NewInterval(every time.Duration) *Interval {
	if every <= 0 {
		return &Interval{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Interval{lim: rate.NewLimiter(rate.Every(every), 1)}
}

// Wait blocks until the next slot or until ctx is done.
func (i *Interval) Wait(ctx context.Context) error {
	return i.lim.Wait(ctx)
}

// Each runs fn for every item in order, pacing the calls through s. It stops
// early only if ctx is done.
func Each[T any](ctx context.Context, s Scheduler, items []T, fn func(T)) error {
	for _, item := range items {
		if err := s.Wait(ctx); err != nil {
			return err
		}
		fn(item)
	}
	return nil
}
