package labflow

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// QueueAssignment is the bench slot handed out when a request is accepted.
type QueueAssignment struct {
	Technician          string    `json:"technician"`
	Station             string    `json:"station"`
	Position            int       `json:"queue_position"`
	EstimatedStart      time.Time `json:"estimated_start"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
}

func (q QueueAssignment) valid(now time.Time) bool {
	return strings.TrimSpace(q.Technician) != "" &&
		strings.TrimSpace(q.Station) != "" &&
		q.Position > 0 &&
		q.EstimatedStart.After(now) &&
		q.EstimatedCompletion.After(q.EstimatedStart)
}

type Allocation struct {
	Request    TestRequest
	Active     int
	Turnaround time.Duration
	Now        time.Time
}

// Allocator decides who runs an accepted request, where and when.
type Allocator interface {
	Allocate(a Allocation) (QueueAssignment, error)
}

var ErrEmptyPool = errors.New("allocator needs at least one technician and one station")

// DefaultSlot is the bench time reserved per queued request.
const DefaultSlot = 15 * time.Minute

// PoolAllocator hands out technicians and stations round-robin and queues
// the request behind everything already accepted.
type PoolAllocator struct {
	technicians []string
	stations    []string
	slot        time.Duration

	mu   sync.Mutex
	next int
}

func NewPoolAllocator(technicians, stations []string, slot time.Duration) (*PoolAllocator, error) {
	techs := compact(technicians)
	sts := compact(stations)
	if len(techs) == 0 || len(sts) == 0 {
		return nil, ErrEmptyPool
	}
	if slot <= 0 {
		slot = DefaultSlot
	}
	return &PoolAllocator{technicians: techs, stations: sts, slot: slot}, nil
}

func (p *PoolAllocator) Allocate(a Allocation) (QueueAssignment, error) {
	p.mu.Lock()
	n := p.next
	p.next++
	p.mu.Unlock()

	position := a.Active + 1

	wait := time.Duration(position) * p.slot
	switch a.Request.Urgency {
	case UrgencyUrgent:
		wait = p.slot
	case UrgencyHigh:
		wait = (wait + p.slot) / 2
	}

	turnaround := a.Turnaround
	if turnaround <= 0 {
		turnaround = defaultTestType.Turnaround
	}

	start := a.Now.Add(wait)
	return QueueAssignment{
		Technician:          p.technicians[n%len(p.technicians)],
		Station:             p.stations[n%len(p.stations)],
		Position:            position,
		EstimatedStart:      start,
		EstimatedCompletion: start.Add(turnaround),
	}, nil
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
