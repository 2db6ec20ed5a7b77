package appointment

import (
	"context"
	"sort"
	"sync"

	"github.com/hackgods/clinical-workflow-scheduling/internal/apperr"
	"github.com/hackgods/clinical-workflow-scheduling/internal/calendar"
)

type MemoryRepository struct {
	mu      sync.RWMutex
	buckets map[calendar.DateKey][]Appointment
	index   map[string]calendar.DateKey
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		buckets: make(map[calendar.DateKey][]Appointment),
		index:   make(map[string]calendar.DateKey),
	}
}

func (r *MemoryRepository) Insert(_ context.Context, a Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[a.ID]; exists {
		return apperr.Validation("appointment %s already exists", a.ID)
	}
	r.buckets[a.Date] = append(r.buckets[a.Date], a)
	r.index[a.ID] = a.Date
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, _, ok := r.findLocked(id)
	if !ok {
		return Appointment{}, apperr.NotFound("appointment", id)
	}
	return a, nil
}

func (r *MemoryRepository) Replace(_ context.Context, a Appointment) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, pos, ok := r.findLocked(a.ID)
	if !ok {
		return Appointment{}, apperr.NotFound("appointment", a.ID)
	}

	if prev.Date == a.Date {
		r.buckets[a.Date][pos] = a
		return prev, nil
	}

	r.dropLocked(prev.Date, pos)
	r.buckets[a.Date] = append(r.buckets[a.Date], a)
	r.index[a.ID] = a.Date
	return prev, nil
}

func (r *MemoryRepository) Remove(_ context.Context, id string) (Appointment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, pos, ok := r.findLocked(id)
	if !ok {
		return Appointment{}, false, nil
	}
	r.dropLocked(a.Date, pos)
	delete(r.index, id)
	return a, true, nil
}

func (r *MemoryRepository) ListByDate(_ context.Context, date calendar.DateKey) ([]Appointment, error) {
	r.mu.RLock()
	out := make([]Appointment, len(r.buckets[date]))
	copy(out, r.buckets[date])
	r.mu.RUnlock()

	sortByTime(out)
	return out, nil
}

func (r *MemoryRepository) Search(ctx context.Context, query string) ([]Appointment, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, a := range all {
		if a.Matches(query) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) All(_ context.Context) ([]Appointment, error) {
	r.mu.RLock()
	out := make([]Appointment, 0, len(r.index))
	for _, bucket := range r.buckets {
		out = append(out, bucket...)
	}
	r.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

func (r *MemoryRepository) findLocked(id string) (Appointment, int, bool) {
	date, ok := r.index[id]
	if !ok {
		return Appointment{}, -1, false
	}
	for i, a := range r.buckets[date] {
		if a.ID == id {
			return a, i, true
		}
	}
	return Appointment{}, -1, false
}

func (r *MemoryRepository) dropLocked(date calendar.DateKey, pos int) {
	bucket := r.buckets[date]
	bucket = append(bucket[:pos:pos], bucket[pos+1:]...)
	if len(bucket) == 0 {
		delete(r.buckets, date)
		return
	}
	r.buckets[date] = bucket
}

func sortByTime(list []Appointment) {
	sort.SliceStable(list, func(i, j int) bool {
		ki, kj := list[i].SortKey(), list[j].SortKey()
		if ki != kj {
			return ki < kj
		}
		return list[i].ID < list[j].ID
	})
}

func sortNewestFirst(list []Appointment) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
}
