package ident

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hackgods/clinical-workflow-scheduling/internal/clock"
)

func seqValue(t *testing.T, id, prefix string) int64 {
	t.Helper()
	n, err := strconv.ParseInt(strings.TrimPrefix(id, prefix+"-"), 10, 64)
	if err != nil {
		t.Fatalf("unexpected id format %q: %v", id, err)
	}
	return n
}

func TestSequenceMonotonicWithFrozenClock(t *testing.T) {
	c := clock.NewManual(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	seq := NewSequence("APT", c)

	seen := make(map[string]bool)
	var prev int64
	for i := 0; i < 100; i++ {
		id := seq.Next()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true

		n := seqValue(t, id, "APT")
		if n <= prev {
			t.Fatalf("id %d not greater than previous %d", n, prev)
		}
		prev = n
	}
}

func TestSequenceSurvivesClockStepBack(t *testing.T) {
	c := clock.NewManual(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	seq := NewSequence("TR", c)

	first := seqValue(t, seq.Next(), "TR")
	c.Advance(-time.Hour)
	second := seqValue(t, seq.Next(), "TR")

	if second <= first {
		t.Fatalf("expected %d > %d after clock step back", second, first)
	}
}

func TestSequenceObserve(t *testing.T) {
	c := clock.NewManual(time.UnixMilli(1000))
	seq := NewSequence("APT", c)

	seq.Observe("APT-5000")
	seq.Observe("garbage")
	seq.Observe("APT-10")

	if got := seqValue(t, seq.Next(), "APT"); got != 5001 {
		t.Fatalf("expected 5001, got %d", got)
	}
}
