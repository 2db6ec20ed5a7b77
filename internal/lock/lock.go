// Package lock guards critical sections per entity id. A second caller for
// an id that is already held is turned away instead of queued, which is how
// the dashboards keep one action per record in flight at a time.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var ErrLockNotAcquired = errors.New("record is busy with another action")

type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// DefaultWait bounds how long Wait queues behind a busy key.
const DefaultWait = 5 * time.Second

// Wait runs fn under key like WithLock, but a busy key is retried with
// exponential backoff until it is free, ctx ends or maxWait elapses. Other
// errors from fn are returned as is, without a retry.
func Wait(ctx context.Context, l Locker, key string, maxWait time.Duration, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := l.WithLock(ctx, key, fn)
		if err != nil && !errors.Is(err, ErrLockNotAcquired) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(maxWait))
	return err
}

type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

func (m *Memory) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, busy := m.held[key]; busy {
		m.mu.Unlock()
		return ErrLockNotAcquired
	}
	m.held[key] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.held, key)
		m.mu.Unlock()
	}()

	return fn(ctx)
}

// Busy reports whether key is currently held.
func (m *Memory) Busy(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}
