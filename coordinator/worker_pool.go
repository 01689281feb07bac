package coordinator

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned when submitting to a closed coordinator.
var ErrClosed = errors.New("coordinator: closed")

// WorkerPool bounds the number of concurrent partition searches with a
// weighted semaphore. Each task runs on its own goroutine once a slot
// frees up, so query fan-out cannot pile thousands of goroutines onto
// the scheduler under load.
type WorkerPool struct {
	sem    *semaphore.Weighted
	weight int64
	mu     sync.Mutex
	closed bool
}

// NewWorkerPool creates a pool admitting up to numWorkers concurrent
// tasks. numWorkers <= 0 defaults to GOMAXPROCS.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	return &WorkerPool{
		sem:    semaphore.NewWeighted(int64(numWorkers)),
		weight: int64(numWorkers),
	}
}

// Submit starts task once a slot is free, returning when it is running.
// Returns ErrClosed after Close and the context error if ctx ends while
// every slot is taken.
func (wp *WorkerPool) Submit(ctx context.Context, task func()) error {
	if wp.isClosed() {
		return ErrClosed
	}
	if err := wp.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	// Close may have won every other slot while we waited.
	if wp.isClosed() {
		wp.sem.Release(1)
		return ErrClosed
	}

	go func() {
		defer wp.sem.Release(1)
		task()
	}()
	return nil
}

func (wp *WorkerPool) isClosed() bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.closed
}

// Close marks the pool closed and waits for in-flight tasks to finish.
// Safe to call more than once.
func (wp *WorkerPool) Close() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	wp.mu.Unlock()

	// Draining the full weight waits out every running task. The slots
	// are handed back so submitters blocked in Acquire wake up and see
	// the closed flag instead of deadlocking.
	_ = wp.sem.Acquire(context.Background(), wp.weight)
	wp.sem.Release(wp.weight)
}
