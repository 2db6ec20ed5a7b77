package clock

import (
	"sync"
	"time"
)

// Clock supplies "now" to date and workflow logic so that it stays testable.
type Clock interface {
	Now() time.Time
}

type system struct {
	loc *time.Location
}

// System returns a clock reading wall time in loc. A nil loc means time.Local.
func System(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return system{loc: loc}
}

func (s system) Now() time.Time {
	return time.Now().In(s.loc)
}

// Manual is a clock that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
