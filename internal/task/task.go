// Package task models simulated backend latency: work that reports a pending
// state right away and resolves once, later. There is no cancellation.
package task

import (
	"context"
	"sync"
	"time"
)

type State string

const (
	StatePending  State = "pending"
	StateResolved State = "resolved"
	StateFailed   State = "failed"
)

type Future[T any] struct {
	done chan struct{}

	mu    sync.Mutex
	state State
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{}), state: StatePending}
}

// After runs fn in its own goroutine once delay has elapsed.
func After[T any](delay time.Duration, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		v, err := fn()
		f.resolve(v, err)
	}()
	return f
}

// Resolved returns a future that is already complete.
func Resolved[T any](v T, err error) *Future[T] {
	f := newFuture[T]()
	f.resolve(v, err)
	return f
}

func (f *Future[T]) resolve(v T, err error) {
	f.mu.Lock()
	f.value, f.err = v, err
	if err != nil {
		f.state = StateFailed
	} else {
		f.state = StateResolved
	}
	f.mu.Unlock()
	close(f.done)
}

func (f *Future[T]) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx ends. Giving up on the wait
// does not stop the underlying work.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
