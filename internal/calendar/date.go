package calendar

import (
	"fmt"
	"time"

	"github.com/hackgods/clinical-workflow-scheduling/internal/apperr"
)

// DateKey is the canonical YYYY-MM-DD form used to bucket date-scoped records.
type DateKey string

// CalendarDate is a calendar-local day with no time zone attached.
type CalendarDate struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

func NewDate(year int, month time.Month, day int) CalendarDate {
	// Normalizes overflow the same way time.Date does (Feb 30 -> Mar 1 or 2).
	t := time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	return CalendarDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) CalendarDate {
	y, m, d := t.Date()
	return CalendarDate{Year: y, Month: m, Day: d}
}

func (d CalendarDate) Key() DateKey {
	return DateKey(fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day))
}

func (d CalendarDate) String() string {
	return string(d.Key())
}

// AddDays moves by n days. Noon UTC is used internally so DST never shifts the result.
func (d CalendarDate) AddDays(n int) CalendarDate {
	return NewDate(d.Year, d.Month, d.Day+n)
}

func (d CalendarDate) Weekday() time.Weekday {
	return d.anchor().Weekday()
}

func (d CalendarDate) Before(o CalendarDate) bool {
	return d.anchor().Before(o.anchor())
}

func (d CalendarDate) Equal(o CalendarDate) bool {
	return d.Year == o.Year && d.Month == o.Month && d.Day == o.Day
}

func (d CalendarDate) anchor() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)
}

// ParseDateKey validates s as a real calendar date in YYYY-MM-DD form.
func ParseDateKey(s string) (CalendarDate, error) {
	if len(s) != len("2006-01-02") {
		return CalendarDate{}, apperr.Validation("date %q must be formatted YYYY-MM-DD", s)
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return CalendarDate{}, apperr.Validation("date %q is not a valid calendar date", s)
	}
	return DateOf(t), nil
}

func (k DateKey) Date() (CalendarDate, error) {
	return ParseDateKey(string(k))
}

func (k DateKey) Valid() bool {
	_, err := ParseDateKey(string(k))
	return err == nil
}
