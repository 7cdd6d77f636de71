package turn

import (
	"context"
	"sync/atomic"
)

// Gate is the per-turn mutating-tool gate from spec.md §4.4/§9: a
// single-permit semaphore held for the duration of one mutating handler's
// Handle invocation. Release happens on every exit path, including
// cancellation, so acquire and release counts always match (spec.md §8's
// testable property).
type Gate struct {
	sem      chan struct{}
	acquired int64
	released int64
}

// NewGate creates an unheld single-permit gate.
func NewGate() *Gate {
	return &Gate{sem: make(chan struct{}, 1)}
}

// Acquire blocks until the single permit is available or ctx is cancelled.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		atomic.AddInt64(&g.acquired, 1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns the permit. Safe to call even if Acquire never
// succeeded only when paired correctly by the caller; callers must not
// double-release.
func (g *Gate) Release() {
	<-g.sem
	atomic.AddInt64(&g.released, 1)
}

// Counts returns the (acquired, released) totals, for verifying the
// acquire==release invariant in tests.
func (g *Gate) Counts() (acquired, released int64) {
	return atomic.LoadInt64(&g.acquired), atomic.LoadInt64(&g.released)
}
