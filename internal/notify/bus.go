// Package notify fans change events out to loosely coupled listeners. It is
// a best-effort convenience channel: listener failures are logged, never
// returned to the operation that produced the event.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EntityAppointment  = "appointment"
	EntityTestRequest  = "test_request"
	EntitySample       = "sample_collection"
	EntityReport       = "lab_report"
	EntityAvailability = "availability"
	EntityNotification = "notification"
)

type Event struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Origin     string    `json:"origin,omitempty"`
	Payload    any       `json:"payload,omitempty"`
}

type Listener interface {
	OnEvent(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(ctx context.Context, ev Event) error

func (f ListenerFunc) OnEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Publisher is what the stores and the workflow engine depend on.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

type Bus struct {
	logger zerolog.Logger
	now    func() time.Time
	origin string

	mu        sync.RWMutex
	listeners map[string]Listener
}

func NewBus(logger zerolog.Logger, now func() time.Time) *Bus {
	if now == nil {
		now = time.Now
	}
	return &Bus{
		logger:    logger,
		now:       now,
		origin:    uuid.NewString(),
		listeners: make(map[string]Listener),
	}
}

// Origin identifies this process on events it publishes.
func (b *Bus) Origin() string {
	return b.origin
}

// Subscribe registers l under name and returns a function removing it.
func (b *Bus) Subscribe(name string, l Listener) func() {
	b.mu.Lock()
	b.listeners[name] = l
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, name)
		b.mu.Unlock()
	}
}

// Publish delivers ev to every listener synchronously. Order across
// listeners is not defined.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}
	if ev.Origin == "" {
		ev.Origin = b.origin
	}

	b.mu.RLock()
	targets := make(map[string]Listener, len(b.listeners))
	for name, l := range b.listeners {
		targets[name] = l
	}
	b.mu.RUnlock()

	for name, l := range targets {
		if err := deliver(ctx, l, ev); err != nil {
			b.logger.Error().Err(err).
				Str("listener", name).
				Str("entity", ev.EntityType+"/"+ev.EntityID).
				Str("action", ev.Action).
				Msg("failed to deliver change event")
		}
	}
}

func deliver(ctx context.Context, l Listener, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.OnEvent(ctx, ev)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
