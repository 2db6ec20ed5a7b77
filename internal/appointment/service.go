package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-workflow-scheduling/internal/apperr"
	"github.com/hackgods/clinical-workflow-scheduling/internal/availability"
	"github.com/hackgods/clinical-workflow-scheduling/internal/calendar"
	"github.com/hackgods/clinical-workflow-scheduling/internal/clock"
	"github.com/hackgods/clinical-workflow-scheduling/internal/ident"
	"github.com/hackgods/clinical-workflow-scheduling/internal/kv"
	"github.com/hackgods/clinical-workflow-scheduling/internal/lock"
	"github.com/hackgods/clinical-workflow-scheduling/internal/notify"
	"github.com/hackgods/clinical-workflow-scheduling/internal/stats"
)

// SnapshotKey is where the full appointment list is mirrored, newest first.
const SnapshotKey = "appointments"

const (
	EventAppointmentCreated     = "created"
	EventAppointmentUpdated     = "updated"
	EventAppointmentRescheduled = "rescheduled"
	EventAppointmentDeleted     = "deleted"
)

type Deps struct {
	Repo      Repository
	Schedules *availability.Book
	Locker    lock.Locker
	Store     kv.Store
	Publisher notify.Publisher
	Clock     clock.Clock
	Logger    zerolog.Logger
}

// Service is the only writer of appointment records.
type Service struct {
	repo      Repository
	schedules *availability.Book
	locker    lock.Locker
	store     kv.Store
	publisher notify.Publisher
	clock     clock.Clock
	logger    zerolog.Logger

	ids     *ident.Sequence
	tracker *stats.Tracker

	// snapMu orders snapshot writes across records.
	snapMu sync.Mutex
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clock.System(nil)
	}
	if d.Locker == nil {
		d.Locker = lock.NewMemory()
	}
	if d.Store == nil {
		d.Store = kv.NewMemoryStore()
	}
	if d.Publisher == nil {
		d.Publisher = notify.Nop{}
	}
	return &Service{
		repo:      d.Repo,
		schedules: d.Schedules,
		locker:    d.Locker,
		store:     d.Store,
		publisher: d.Publisher,
		clock:     d.Clock,
		logger:    d.Logger,
		ids:       ident.NewSequence("APT", d.Clock),
		tracker:   stats.NewTracker(),
	}
}

// Restore loads the persisted snapshot when the repository starts empty and
// primes the statistics cache from whatever the repository then holds.
func (s *Service) Restore(ctx context.Context) error {
	existing, err := s.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}

	if len(existing) == 0 {
		var saved []Appointment
		if _, err := kv.GetJSON(ctx, s.store, SnapshotKey, &saved); err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		for _, a := range saved {
			if err := s.repo.Insert(ctx, a); err != nil {
				s.logger.Error().Err(err).Str("appointment_id", a.ID).Msg("skipping snapshot record")
				continue
			}
			existing = append(existing, a)
		}
	}

	for _, a := range existing {
		s.ids.Observe(a.ID)
		s.tracker.Set(a.ID, Classify(a))
	}
	return nil
}

// Create validates the draft and stores it in its date bucket.
func (s *Service) Create(ctx context.Context, d Draft) (Appointment, error) {
	a, err := d.build()
	if err != nil {
		return Appointment{}, err
	}
	return s.insert(ctx, a)
}

// Book reserves the provider's matching slot and creates the appointment.
// If the slot is taken nothing is created; if creation fails the slot is
// handed back.
func (s *Service) Book(ctx context.Context, d Draft) (Appointment, error) {
	if s.schedules == nil {
		return Appointment{}, errors.New("booking requires a schedule book")
	}
	if d.ProviderRef == "" {
		return Appointment{}, apperr.Validation("provider is required to book a slot")
	}
	if d.Channel == "" {
		return Appointment{}, apperr.Validation("channel is required to book a slot")
	}

	a, err := d.build()
	if err != nil {
		return Appointment{}, err
	}
	a.SlotBooked = true

	var created Appointment
	err = s.locker.WithLock(ctx, slotKey(a), func(lockCtx context.Context) error {
		if _, err := s.schedules.Reserve(lockCtx, a.ProviderRef, a.Date, a.Time, a.Channel); err != nil {
			return err
		}

		var insertErr error
		created, insertErr = s.insert(lockCtx, a)
		if insertErr != nil {
			s.releaseSlot(lockCtx, a)
			return insertErr
		}
		return nil
	})
	if err != nil {
		return Appointment{}, err
	}
	return created, nil
}

func (s *Service) insert(ctx context.Context, a Appointment) (Appointment, error) {
	now := s.clock.Now()
	a.ID = s.ids.Next()
	a.CreatedAt = now
	a.UpdatedAt = now

	var c change
	err := s.locker.WithLock(ctx, recordKey(a.ID), func(lockCtx context.Context) error {
		if err := s.repo.Insert(lockCtx, a); err != nil {
			return err
		}
		s.tracker.Set(a.ID, Classify(a))
		c = s.commitLocked(lockCtx, a, EventAppointmentCreated, fmt.Sprintf("Appointment booked for %s on %s at %s", a.PatientName, a.Date, a.Time), a.Date)
		return nil
	})
	if err != nil {
		return Appointment{}, err
	}

	s.publish(ctx, c)
	return a, nil
}

// Update applies the patch. A date change moves the record to its new bucket
// in the same repository call that rewrites it.
func (s *Service) Update(ctx context.Context, id string, p Patch) (Appointment, error) {
	var updated Appointment
	var c change

	err := s.locker.WithLock(ctx, recordKey(id), func(lockCtx context.Context) error {
		current, err := s.repo.Get(lockCtx, id)
		if err != nil {
			return err
		}

		next, err := current.apply(p)
		if err != nil {
			return err
		}
		next.UpdatedAt = s.clock.Now()

		moved := s.schedules != nil && current.SlotBooked && (next.Date != current.Date || !calendar.SameTime(next.Time, current.Time) || next.Channel != current.Channel)
		if moved {
			if _, err := s.schedules.Reserve(lockCtx, next.ProviderRef, next.Date, next.Time, next.Channel); err != nil {
				return err
			}
		}

		prev, err := s.repo.Replace(lockCtx, next)
		if err != nil {
			if moved {
				s.releaseSlot(lockCtx, next)
			}
			return err
		}
		if moved {
			s.releaseSlot(lockCtx, prev)
		}

		s.tracker.Set(next.ID, Classify(next))
		if prev.Date != next.Date || prev.Time != next.Time {
			msg := fmt.Sprintf("Appointment for %s moved to %s at %s", next.PatientName, next.Date, next.Time)
			c = s.commitLocked(lockCtx, next, EventAppointmentRescheduled, msg, prev.Date, next.Date)
		} else {
			msg := fmt.Sprintf("Appointment for %s is now %s", next.PatientName, next.Status)
			c = s.commitLocked(lockCtx, next, EventAppointmentUpdated, msg, next.Date)
		}

		updated = next
		return nil
	})
	if err != nil {
		return Appointment{}, err
	}

	s.publish(ctx, c)
	return updated, nil
}

// Reschedule moves an appointment to a new date and time.
func (s *Service) Reschedule(ctx context.Context, id, date, t string) (Appointment, error) {
	return s.Update(ctx, id, Patch{Date: &date, Time: &t})
}

// SetStatus changes only the status.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (Appointment, error) {
	st := string(status)
	return s.Update(ctx, id, Patch{Status: &st})
}

// Delete removes the appointment. Deleting an id that is already gone is not
// an error, and a delete racing another action on the same id waits for it
// rather than reporting the record as busy.
func (s *Service) Delete(ctx context.Context, id string) error {
	var c change
	var found bool

	err := lock.Wait(ctx, s.locker, recordKey(id), lock.DefaultWait, func(lockCtx context.Context) error {
		removed, ok, err := s.repo.Remove(lockCtx, id)
		if err != nil || !ok {
			return err
		}

		found = true
		if removed.SlotBooked {
			s.releaseSlot(lockCtx, removed)
		}
		s.tracker.Remove(id)
		c = s.commitLocked(lockCtx, removed, EventAppointmentDeleted, fmt.Sprintf("Appointment for %s on %s removed", removed.PatientName, removed.Date), removed.Date)
		return nil
	})
	if err != nil {
		return err
	}
	if found {
		s.publish(ctx, c)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (Appointment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByDate(ctx context.Context, date string) ([]Appointment, error) {
	d, err := calendar.ParseDateKey(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByDate(ctx, d.Key())
}

func (s *Service) Search(ctx context.Context, query string) ([]Appointment, error) {
	return s.repo.Search(ctx, query)
}

func (s *Service) All(ctx context.Context) ([]Appointment, error) {
	return s.repo.All(ctx)
}

// Stats returns the cached counters.
func (s *Service) Stats() stats.Counts {
	return s.tracker.Total()
}

// RecomputeStats derives the counters from the stored records.
func (s *Service) RecomputeStats(ctx context.Context) (stats.Counts, error) {
	all, err := s.repo.All(ctx)
	if err != nil {
		return stats.Counts{}, err
	}
	return stats.Compute(all, Classify), nil
}

type DayView struct {
	calendar.GridCell
	Appointments int  `json:"appointments"`
	FullyBooked  bool `json:"fully_booked"`
}

// MonthView is the calendar grid annotated with per-day appointment counts
// and, when provider is set, which days have no open slots left.
func (s *Service) MonthView(ctx context.Context, year int, month time.Month, provider string) ([]DayView, error) {
	cells := calendar.BuildMonthGrid(year, month, s.clock.Now())

	all, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	perDay := make(map[calendar.DateKey]int)
	for _, a := range all {
		if provider == "" || a.ProviderRef == provider {
			perDay[a.Date]++
		}
	}

	full := make(map[calendar.DateKey]bool)
	if s.schedules != nil && provider != "" {
		for _, c := range cells {
			ds := s.schedules.Day(provider, c.Key)
			full[c.Key] = len(ds.Slots) > 0 && availability.IsDateFullyBooked(ds)
		}
	}

	out := make([]DayView, len(cells))
	for i, c := range cells {
		out[i] = DayView{GridCell: c, Appointments: perDay[c.Key], FullyBooked: full[c.Key]}
	}
	return out, nil
}

// change is a committed mutation waiting to be announced.
type change struct {
	appt    Appointment
	action  string
	msg     string
	at      time.Time
	buckets map[calendar.DateKey][]Appointment
}

// commitLocked mirrors the list to the store and captures the new contents of
// the changed buckets. Callers hold the record lock, so two writers on one id
// cannot persist out of order.
func (s *Service) commitLocked(ctx context.Context, a Appointment, action, msg string, dates ...calendar.DateKey) change {
	s.snapMu.Lock()
	all, err := s.repo.All(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read appointments for snapshot")
	} else if err := kv.SetJSON(ctx, s.store, SnapshotKey, all); err != nil {
		s.logger.Error().Err(err).Str("appointment_id", a.ID).Msg("failed to persist appointment snapshot")
	}
	s.snapMu.Unlock()

	buckets := make(map[calendar.DateKey][]Appointment, len(dates))
	for _, d := range dates {
		list, err := s.repo.ListByDate(ctx, d)
		if err != nil {
			s.logger.Error().Err(err).Str("date", string(d)).Msg("failed to list bucket for event")
			continue
		}
		buckets[d] = list
	}

	return change{appt: a, action: action, msg: msg, at: s.clock.Now(), buckets: buckets}
}

func (s *Service) publish(ctx context.Context, c change) {
	s.publisher.Publish(ctx, notify.Event{
		EntityType: notify.EntityAppointment,
		EntityID:   c.appt.ID,
		Action:     c.action,
		Message:    c.msg,
		Timestamp:  c.at,
		Payload:    c.buckets,
	})
}

func (s *Service) releaseSlot(ctx context.Context, a Appointment) {
	if s.schedules == nil {
		return
	}
	if err := s.schedules.Release(ctx, a.ProviderRef, a.Date, a.Time, a.Channel); err != nil {
		s.logger.Error().Err(err).
			Str("appointment_id", a.ID).
			Str("provider", a.ProviderRef).
			Msg("failed to release slot")
	}
}

func recordKey(id string) string {
	return "appointment:" + id
}

func slotKey(a Appointment) string {
	return fmt.Sprintf("slot:%s:%s:%s:%s", a.ProviderRef, a.Date, a.SortKey(), a.Channel)
}
