package notify

import (
	"context"
	"fmt"
	"sync"
)

// Hub hands events to open views over buffered channels. A view that stops
// draining its channel misses events rather than stalling the publisher.
type Hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe returns the event channel and a function that closes it.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) OnEvent(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%d slow subscribers missed event %s", dropped, ev.ID)
	}
	return nil
}
