package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRejectsNestedHolder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.WithLock(ctx, "TR-1", func(ctx context.Context) error {
		if !m.Busy("TR-1") {
			t.Fatal("expected key to be held inside the critical section")
		}
		if err := m.WithLock(ctx, "TR-1", func(context.Context) error { return nil }); !errors.Is(err, ErrLockNotAcquired) {
			t.Fatalf("expected ErrLockNotAcquired, got %v", err)
		}
		return m.WithLock(ctx, "TR-2", func(context.Context) error { return nil })
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Busy("TR-1") {
		t.Fatal("key still held after release")
	}
}

func TestMemoryReleasesOnError(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")

	if err := m.WithLock(context.Background(), "k", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}
	if m.Busy("k") {
		t.Fatal("key still held after failed fn")
	}
}

func TestMemoryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewMemory().WithLock(ctx, "k", func(context.Context) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected context.Canceled without running fn, got err=%v called=%v", err, called)
	}
}

func TestWaitQueuesBehindHolder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	acquired := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = m.WithLock(ctx, "APT-1", func(context.Context) error {
			close(acquired)
			<-release
			return nil
		})
	}()
	<-acquired

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	ran := false
	err := Wait(ctx, m, "APT-1", time.Second, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected wait to succeed once the holder left, got %v", err)
	}
	if !ran {
		t.Fatal("fn never ran")
	}
}

func TestWaitGivesUpAfterMaxWait(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.WithLock(ctx, "APT-1", func(ctx context.Context) error {
		return Wait(ctx, m, "APT-1", 30*time.Millisecond, func(context.Context) error {
			t.Fatal("fn must not run while the key is held")
			return nil
		})
	})
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
}

func TestWaitDoesNotRetryFnErrors(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")
	calls := 0

	err := Wait(context.Background(), m, "k", time.Second, func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}
