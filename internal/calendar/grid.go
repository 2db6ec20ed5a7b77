package calendar

import (
	"fmt"
	"time"
)

// GridSize is six full weeks, enough for any month.
const GridSize = 42

type GridCell struct {
	Date           CalendarDate `json:"date"`
	Key            DateKey      `json:"key"`
	IsCurrentMonth bool         `json:"is_current_month"`
	IsToday        bool         `json:"is_today"`
}

// BuildMonthGrid lays out the month as 42 consecutive days starting on the
// Sunday on or before the 1st. "Today" is whatever calendar day now falls on
// in now's location; nothing here reads the wall clock.
func BuildMonthGrid(year int, month time.Month, now time.Time) []GridCell {
	first := NewDate(year, month, 1)
	today := DateOf(now)

	start := first.AddDays(-int(first.Weekday()))

	cells := make([]GridCell, 0, GridSize)
	for i := 0; i < GridSize; i++ {
		d := start.AddDays(i)
		cells = append(cells, GridCell{
			Date:           d,
			Key:            d.Key(),
			IsCurrentMonth: d.Year == first.Year && d.Month == first.Month,
			IsToday:        d.Equal(today),
		})
	}

	return cells
}

// MonthLabel renders "March 2024".
func MonthLabel(year int, month time.Month) string {
	first := NewDate(year, month, 1)
	return fmt.Sprintf("%s %d", first.Month, first.Year)
}

func WeekdayHeaders() []string {
	return []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
}
