package stats

import (
	"fmt"
	"math/rand"
	"testing"
)

type item struct {
	id    string
	state int // 0 pending, 1 in progress, 2 completed, 3 gone
	hot   bool
}

func classify(it item) Counts {
	var c Counts
	switch it.state {
	case 0:
		c.Pending = 1
	case 1:
		c.InProgress = 1
	case 2:
		c.Completed = 1
	}
	if it.hot && it.state < 2 {
		c.Urgent = 1
	}
	return c
}

func TestTrackerMatchesCompute(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tracker := NewTracker()
	live := make(map[string]item)

	for step := 0; step < 2000; step++ {
		id := fmt.Sprintf("e-%d", rng.Intn(50))
		if rng.Intn(10) == 0 {
			delete(live, id)
			tracker.Remove(id)
		} else {
			it := item{id: id, state: rng.Intn(3), hot: rng.Intn(4) == 0}
			live[id] = it
			tracker.Set(id, classify(it))
		}

		all := make([]item, 0, len(live))
		for _, it := range live {
			all = append(all, it)
		}
		if want, got := Compute(all, classify), tracker.Total(); want != got {
			t.Fatalf("step %d: cached %+v != recomputed %+v", step, got, want)
		}
	}
}

func TestTrackerRemoveUnknownIsNoop(t *testing.T) {
	tracker := NewTracker()
	tracker.Set("a", Counts{Pending: 1})
	tracker.Remove("b")

	if got := tracker.Total(); got != (Counts{Pending: 1}) {
		t.Fatalf("unexpected total %+v", got)
	}
	if tracker.Updates() != 1 {
		t.Fatalf("expected 1 update, got %d", tracker.Updates())
	}
}

func TestCountsArithmetic(t *testing.T) {
	a := Counts{Pending: 2, InProgress: 1, Completed: 3, Urgent: 1}
	b := Counts{Pending: 1, Urgent: 1}
	if got := a.Add(b).Sub(b); got != a {
		t.Fatalf("add then sub changed value: %+v", got)
	}
}
