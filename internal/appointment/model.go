package appointment

import (
	"strings"
	"time"

	"github.com/hackgods/clinical-workflow-scheduling/internal/apperr"
	"github.com/hackgods/clinical-workflow-scheduling/internal/availability"
	"github.com/hackgods/clinical-workflow-scheduling/internal/calendar"
	"github.com/hackgods/clinical-workflow-scheduling/internal/stats"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusUrgent     Status = "urgent"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusScheduled, StatusConfirmed, StatusPending, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusUrgent:
		return st, nil
	default:
		return "", apperr.Validation("unknown appointment status %q", s)
	}
}

const DefaultDurationMinutes = 30

type Appointment struct {
	ID              string               `json:"id"`
	PatientRef      string               `json:"patient_ref"`
	PatientName     string               `json:"patient_name"`
	ProviderRef     string               `json:"provider_ref"`
	Title           string               `json:"title"`
	Date            calendar.DateKey     `json:"date"`
	Time            string               `json:"time"`
	DurationMinutes int                  `json:"duration_minutes"`
	Type            string               `json:"type"`
	Channel         availability.Channel `json:"channel"`
	Status          Status               `json:"status"`
	Notes           string               `json:"notes,omitempty"`
	SlotBooked      bool                 `json:"slot_booked"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// SortKey is the 24h "HH:MM" form of Time; display strings do not sort.
func (a Appointment) SortKey() string {
	if k, err := calendar.NormalizeTime(a.Time); err == nil {
		return k
	}
	return a.Time
}

// Matches is the free-text search rule: a case-insensitive substring match
// on patient name, display time, type or title.
func (a Appointment) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	for _, field := range []string{a.PatientName, a.Time, a.Type, a.Title} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Draft is the booking form as submitted.
type Draft struct {
	PatientRef      string `json:"patient_ref"`
	PatientName     string `json:"patient_name"`
	ProviderRef     string `json:"provider_ref"`
	Title           string `json:"title"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Type            string `json:"type"`
	Channel         string `json:"channel"`
	Status          string `json:"status"`
	Notes           string `json:"notes"`
}

// Patch carries the fields to change; nil means keep.
type Patch struct {
	PatientName     *string `json:"patient_name,omitempty"`
	Title           *string `json:"title,omitempty"`
	Date            *string `json:"date,omitempty"`
	Time            *string `json:"time,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	Type            *string `json:"type,omitempty"`
	Channel         *string `json:"channel,omitempty"`
	Status          *string `json:"status,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

func (d Draft) build() (Appointment, error) {
	if strings.TrimSpace(d.PatientRef) == "" && strings.TrimSpace(d.PatientName) == "" {
		return Appointment{}, apperr.Validation("patient is required")
	}
	if strings.TrimSpace(d.Date) == "" {
		return Appointment{}, apperr.Validation("date is required")
	}
	if strings.TrimSpace(d.Time) == "" {
		return Appointment{}, apperr.Validation("time is required")
	}

	a := Appointment{
		PatientRef:      strings.TrimSpace(d.PatientRef),
		PatientName:     strings.TrimSpace(d.PatientName),
		ProviderRef:     strings.TrimSpace(d.ProviderRef),
		Title:           strings.TrimSpace(d.Title),
		DurationMinutes: d.DurationMinutes,
		Type:            strings.TrimSpace(d.Type),
		Channel:         availability.ChannelInPerson,
		Status:          StatusScheduled,
		Notes:           d.Notes,
	}
	if a.PatientRef == "" {
		a.PatientRef = a.PatientName
	}
	if a.PatientName == "" {
		a.PatientName = a.PatientRef
	}
	if a.DurationMinutes == 0 {
		a.DurationMinutes = DefaultDurationMinutes
	}

	patch := Patch{Date: &d.Date, Time: &d.Time}
	if d.Channel != "" {
		patch.Channel = &d.Channel
	}
	if d.Status != "" {
		patch.Status = &d.Status
	}
	return a.apply(patch)
}

// apply returns a copy of a with p applied, or a validation error.
func (a Appointment) apply(p Patch) (Appointment, error) {
	out := a

	if p.PatientName != nil {
		name := strings.TrimSpace(*p.PatientName)
		if name == "" {
			return a, apperr.Validation("patient name cannot be blank")
		}
		out.PatientName = name
	}
	if p.Title != nil {
		out.Title = strings.TrimSpace(*p.Title)
	}
	if p.Date != nil {
		d, err := calendar.ParseDateKey(strings.TrimSpace(*p.Date))
		if err != nil {
			return a, err
		}
		out.Date = d.Key()
	}
	if p.Time != nil {
		display, err := calendar.DisplayTime(*p.Time)
		if err != nil {
			return a, err
		}
		out.Time = display
	}
	if p.DurationMinutes != nil {
		out.DurationMinutes = *p.DurationMinutes
	}
	if out.DurationMinutes <= 0 {
		return a, apperr.Validation("duration must be positive")
	}
	if p.Type != nil {
		out.Type = strings.TrimSpace(*p.Type)
	}
	if p.Channel != nil {
		ch, err := availability.ParseChannel(*p.Channel)
		if err != nil {
			return a, err
		}
		out.Channel = ch
	}
	if p.Status != nil {
		st, err := ParseStatus(*p.Status)
		if err != nil {
			return a, err
		}
		out.Status = st
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}

	return out, nil
}

// Classify maps an appointment onto the dashboard counters.
func Classify(a Appointment) stats.Counts {
	switch a.Status {
	case StatusScheduled, StatusConfirmed, StatusPending:
		return stats.Counts{Pending: 1}
	case StatusInProgress:
		return stats.Counts{InProgress: 1}
	case StatusCompleted:
		return stats.Counts{Completed: 1}
	case StatusUrgent:
		return stats.Counts{Urgent: 1}
	default:
		return stats.Counts{}
	}
}
