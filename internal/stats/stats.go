// Package stats derives the dashboard summary counters. The counters are a
// view over the live entity set: Tracker caches them incrementally, Compute
// rebuilds them from scratch, and the two must always agree.
package stats

import "sync"

type Counts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Urgent     int `json:"urgent"`
}

func (c Counts) Add(o Counts) Counts {
	return Counts{
		Pending:    c.Pending + o.Pending,
		InProgress: c.InProgress + o.InProgress,
		Completed:  c.Completed + o.Completed,
		Urgent:     c.Urgent + o.Urgent,
	}
}

func (c Counts) Sub(o Counts) Counts {
	return Counts{
		Pending:    c.Pending - o.Pending,
		InProgress: c.InProgress - o.InProgress,
		Completed:  c.Completed - o.Completed,
		Urgent:     c.Urgent - o.Urgent,
	}
}

// Compute sums classify over items.
func Compute[T any](items []T, classify func(T) Counts) Counts {
	var total Counts
	for _, it := range items {
		total = total.Add(classify(it))
	}
	return total
}

// Tracker remembers each entity's last contribution so an update only
// touches the difference.
type Tracker struct {
	mu      sync.RWMutex
	byID    map[string]Counts
	total   Counts
	updates int
}

func NewTracker() *Tracker {
	return &Tracker{byID: make(map[string]Counts)}
}

// Set records c as id's current contribution.
func (t *Tracker) Set(id string, c Counts) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total = t.total.Sub(t.byID[id]).Add(c)
	t.byID[id] = c
	t.updates++
}

func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.byID[id]
	if !ok {
		return
	}
	t.total = t.total.Sub(prev)
	delete(t.byID, id)
	t.updates++
}

func (t *Tracker) Total() Counts {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total
}

// Updates counts the Set and Remove calls applied so far.
func (t *Tracker) Updates() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updates
}
