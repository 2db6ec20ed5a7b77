package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-workflow-scheduling/internal/apperr"
	"github.com/hackgods/clinical-workflow-scheduling/internal/kv"
)

const (
	NotificationsKey    = "notifications"
	DefaultLogRetention = 20
)

// NotificationEvent is the user-facing record of a change. It lives for the
// session; the user may mark it read or delete it.
type NotificationEvent struct {
	ID               string    `json:"id"`
	Category         string    `json:"category"`
	Message          string    `json:"message"`
	Timestamp        time.Time `json:"timestamp"`
	Read             bool      `json:"read"`
	RelatedEntityRef string    `json:"related_entity_ref"`
}

// Log keeps the most recent notifications newest-first and mirrors them to
// the key-value store after every change.
type Log struct {
	store  kv.Store
	limit  int
	logger zerolog.Logger

	mu     sync.Mutex
	events []NotificationEvent
}

func NewLog(store kv.Store, limit int, logger zerolog.Logger) *Log {
	if limit <= 0 {
		limit = DefaultLogRetention
	}
	return &Log{store: store, limit: limit, logger: logger}
}

// Load restores the persisted log, trimming it to the retention limit.
func (l *Log) Load(ctx context.Context) error {
	var saved []NotificationEvent
	if _, err := kv.GetJSON(ctx, l.store, NotificationsKey, &saved); err != nil {
		return err
	}
	if len(saved) > l.limit {
		saved = saved[:l.limit]
	}

	l.mu.Lock()
	l.events = saved
	l.mu.Unlock()
	return nil
}

func (l *Log) OnEvent(ctx context.Context, ev Event) error {
	n := NotificationEvent{
		ID:               ev.ID,
		Category:         ev.EntityType,
		Message:          ev.Message,
		Timestamp:        ev.Timestamp,
		RelatedEntityRef: ev.EntityType + "/" + ev.EntityID,
	}
	if n.Message == "" {
		n.Message = fmt.Sprintf("%s %s %s", ev.EntityType, ev.EntityID, ev.Action)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append([]NotificationEvent{n}, l.events...)
	if len(l.events) > l.limit {
		l.events = l.events[:l.limit]
	}
	return l.persistLocked(ctx)
}

func (l *Log) List() []NotificationEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]NotificationEvent, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Log) UnreadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, e := range l.events {
		if !e.Read {
			n++
		}
	}
	return n
}

func (l *Log) MarkRead(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.events {
		if l.events[i].ID == id {
			l.events[i].Read = true
			l.saveLocked(ctx)
			return nil
		}
	}
	return apperr.NotFound("notification", id)
}

func (l *Log) MarkAllRead(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.events {
		l.events[i].Read = true
	}
	l.saveLocked(ctx)
}

// Delete removes a notification. Deleting an unknown id is a no-op.
func (l *Log) Delete(ctx context.Context, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.events {
		if l.events[i].ID == id {
			l.events = append(l.events[:i], l.events[i+1:]...)
			l.saveLocked(ctx)
			return
		}
	}
}

func (l *Log) persistLocked(ctx context.Context) error {
	if err := kv.SetJSON(ctx, l.store, NotificationsKey, l.events); err != nil {
		return fmt.Errorf("persist notifications: %w", err)
	}
	return nil
}

func (l *Log) saveLocked(ctx context.Context) {
	if err := l.persistLocked(ctx); err != nil {
		l.logger.Error().Err(err).Msg("failed to persist notification log")
	}
}
