// Package concurrency provides the bounded-parallelism primitive shared by
// workflows that fan out over collections of items (search results, lenses,
// enrichment batches). It wraps golang.org/x/sync/semaphore rather than
// the buffered-channel idiom; every unit of work acquires a weight of 1.
package concurrency

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds the number of concurrent units of work. The zero value is
// not usable; construct with NewLimiter.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter constructs a Limiter that admits at most max concurrent units
// of weight 1. A max of 0 or less means unbounded concurrency.
func NewLimiter(max int) *Limiter {
	if max <= 0 {
		return &Limiter{}
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(max))}
}

// Acquire blocks until a slot is available or ctx is done. Release must be
// called exactly once for every successful Acquire.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.sem == nil {
		return nil
	}
	return l.sem.Acquire(ctx, 1)
}

// Release returns a slot acquired via Acquire.
func (l *Limiter) Release() {
	if l.sem == nil {
		return
	}
	l.sem.Release(1)
}

// Run acquires a slot, runs fn, and releases the slot regardless of fn's
// outcome. It returns ctx.Err() without running fn if the slot could not be
// acquired before cancellation.
func (l *Limiter) Run(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
