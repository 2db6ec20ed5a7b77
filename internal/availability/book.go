package availability

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-workflow-scheduling/internal/apperr"
	"github.com/hackgods/clinical-workflow-scheduling/internal/calendar"
	"github.com/hackgods/clinical-workflow-scheduling/internal/kv"
)

const (
	keyPrefix    = "availability:"
	providersKey = "availability_providers"
)

// Book holds the declared availability of every provider, one DaySchedule per date.
type Book struct {
	store  kv.Store
	logger zerolog.Logger

	mu   sync.Mutex
	days map[string]map[calendar.DateKey]DaySchedule
}

func NewBook(store kv.Store, logger zerolog.Logger) *Book {
	return &Book{
		store:  store,
		logger: logger,
		days:   make(map[string]map[calendar.DateKey]DaySchedule),
	}
}

// Load restores a provider's schedule from the store, replacing what is in memory.
func (b *Book) Load(ctx context.Context, provider string) error {
	var saved []DaySchedule
	found, err := kv.GetJSON(ctx, b.store, keyPrefix+provider, &saved)
	if err != nil || !found {
		return err
	}

	days := make(map[calendar.DateKey]DaySchedule, len(saved))
	for _, ds := range saved {
		days[ds.Date.Key()] = ds
	}

	b.mu.Lock()
	b.days[provider] = days
	b.mu.Unlock()
	return nil
}

// Restore loads every provider that has ever declared a schedule.
func (b *Book) Restore(ctx context.Context) error {
	var providers []string
	if _, err := kv.GetJSON(ctx, b.store, providersKey, &providers); err != nil {
		return err
	}
	for _, p := range providers {
		if err := b.Load(ctx, p); err != nil {
			return fmt.Errorf("load availability for %s: %w", p, err)
		}
	}
	return nil
}

// Providers lists the providers with at least one declared date.
func (b *Book) Providers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.providersLocked()
}

func (b *Book) providersLocked() []string {
	out := make([]string, 0, len(b.days))
	for p := range b.days {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Declare replaces the provider's schedule for ds.Date.
func (b *Book) Declare(ctx context.Context, provider string, ds DaySchedule) error {
	if provider == "" {
		return apperr.Validation("provider is required")
	}
	if err := ds.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.days[provider] == nil {
		b.days[provider] = make(map[calendar.DateKey]DaySchedule)
		if err := kv.SetJSON(ctx, b.store, providersKey, b.providersLocked()); err != nil {
			b.logger.Error().Err(err).Str("provider", provider).Msg("failed to persist provider index")
		}
	}
	b.days[provider][ds.Date.Key()] = ds.clone()
	b.persistLocked(ctx, provider)
	return nil
}

// Day returns the provider's schedule for key. Unknown dates yield an empty schedule.
func (b *Book) Day(provider string, key calendar.DateKey) DaySchedule {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dayLocked(provider, key)
}

func (b *Book) dayLocked(provider string, key calendar.DateKey) DaySchedule {
	if ds, ok := b.days[provider][key]; ok {
		return ds.clone()
	}
	d, _ := key.Date()
	return DaySchedule{Date: d, Slots: []TimeSlot{}}
}

func (b *Book) Available(provider string, key calendar.DateKey) []TimeSlot {
	return AvailableSlots(b.Day(provider, key))
}

// Reserve books one slot. On failure the stored schedule is unchanged.
func (b *Book) Reserve(ctx context.Context, provider string, key calendar.DateKey, t string, ch Channel) (DaySchedule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	updated, err := BookSlot(b.dayLocked(provider, key), t, ch)
	if err != nil {
		return DaySchedule{}, err
	}
	b.days[provider][key] = updated
	b.persistLocked(ctx, provider)
	return updated.clone(), nil
}

// Release frees a slot booked earlier through Reserve.
func (b *Book) Release(ctx context.Context, provider string, key calendar.DateKey, t string, ch Channel) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	updated, err := ReleaseSlot(b.dayLocked(provider, key), t, ch)
	if err != nil {
		return err
	}
	b.days[provider][key] = updated
	b.persistLocked(ctx, provider)
	return nil
}

// FullyBookedDates lists the declared dates of the month with no open slot left.
func (b *Book) FullyBookedDates(provider string, year int, month time.Month) []calendar.DateKey {
	first := calendar.NewDate(year, month, 1)

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []calendar.DateKey
	for key, ds := range b.days[provider] {
		if ds.Date.Year == first.Year && ds.Date.Month == first.Month && IsDateFullyBooked(ds) {
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (b *Book) persistLocked(ctx context.Context, provider string) {
	saved := make([]DaySchedule, 0, len(b.days[provider]))
	for _, ds := range b.days[provider] {
		saved = append(saved, ds)
	}
	sort.Slice(saved, func(i, j int) bool { return saved[i].Date.Key() < saved[j].Date.Key() })

	if err := kv.SetJSON(ctx, b.store, keyPrefix+provider, saved); err != nil {
		b.logger.Error().Err(err).Str("provider", provider).Msg("failed to persist availability")
	}
}
