package bulk

// limiter.go implements concurrency control for per-batch work.
//
// Batch submission and reconciliation fan out across independent batches;
// the limiter uses a semaphore pattern to bound that fan-out to a
// configurable worker count so a large dataset cannot exhaust sockets or
// memory. WaitForDrain blocks until all in-flight work completes, which the
// orchestrator uses to join its workers on every exit path.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWorkersBusy is returned when all worker slots are occupied and the
// optional wait timeout expires.
var ErrWorkersBusy = errors.New("all workers busy")

// DefaultMaxWorkers is the default bound for parallel batch work.
const DefaultMaxWorkers = 4

// WorkerLimiter bounds concurrent batch work using a semaphore pattern.
type WorkerLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration // <= 0 waits indefinitely

	mu     sync.RWMutex
	active int
}

// NewWorkerLimiter creates a limiter allowing at most maxWorkers concurrent
// slots. If maxWait is positive, Acquire fails with ErrWorkersBusy after
// waiting that long; otherwise it blocks until a slot frees or the context
// is cancelled.
func NewWorkerLimiter(maxWorkers int, maxWait time.Duration) *WorkerLimiter {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	return &WorkerLimiter{
		semaphore: make(chan struct{}, maxWorkers),
		maxWait:   maxWait,
	}
}

// Acquire obtains a worker slot. The caller MUST call Release when the work
// completes (use defer).
func (l *WorkerLimiter) Acquire(ctx context.Context) error {
	waitCtx := ctx
	if l.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.maxWait)
		defer cancel()
	}

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrWorkersBusy
	}
}

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire.
func (l *WorkerLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of currently occupied slots.
func (l *WorkerLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxWorkers returns the configured bound.
func (l *WorkerLimiter) MaxWorkers() int {
	return cap(l.semaphore)
}

// WaitForDrain blocks until all slots are released or the context is
// cancelled.
func (l *WorkerLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}
