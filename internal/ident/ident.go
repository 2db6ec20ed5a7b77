// Package ident issues timestamp-derived identifiers that are strictly
// increasing within a process, even when the clock stalls or steps back.
package ident

import (
	"fmt"
	"sync"

	"github.com/hackgods/clinical-workflow-scheduling/internal/clock"
)

type Sequence struct {
	prefix string
	clock  clock.Clock

	mu   sync.Mutex
	last int64
}

func NewSequence(prefix string, c clock.Clock) *Sequence {
	return &Sequence{prefix: prefix, clock: c}
}

// Next returns "<prefix>-<n>" where n is the current unix time in
// milliseconds, bumped past the previously issued value when needed.
func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.clock.Now().UnixMilli()
	if n <= s.last {
		n = s.last + 1
	}
	s.last = n

	return fmt.Sprintf("%s-%d", s.prefix, n)
}

// Observe makes sure future ids sort after an id issued by an earlier run,
// so restored records never collide with new ones.
func (s *Sequence) Observe(id string) {
	var n int64
	if _, err := fmt.Sscanf(id, s.prefix+"-%d", &n); err != nil {
		return
	}

	s.mu.Lock()
	if n > s.last {
		s.last = n
	}
	s.mu.Unlock()
}
