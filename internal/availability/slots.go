package availability

import (
	"fmt"

	"github.com/hackgods/clinical-workflow-scheduling/internal/apperr"
	"github.com/hackgods/clinical-workflow-scheduling/internal/calendar"
)

type Channel string

const (
	ChannelInPerson Channel = "in-person"
	ChannelVideo    Channel = "video"
	ChannelPhone    Channel = "phone"
)

func ParseChannel(s string) (Channel, error) {
	switch c := Channel(s); c {
	case ChannelInPerson, ChannelVideo, ChannelPhone:
		return c, nil
	case "":
		return "", apperr.Validation("channel is required")
	default:
		return "", apperr.Validation("unknown channel %q", s)
	}
}

type TimeSlot struct {
	Time      string  `json:"time"`
	Available bool    `json:"available"`
	Channel   Channel `json:"channel"`
}

type DaySchedule struct {
	Date  calendar.CalendarDate `json:"date"`
	Slots []TimeSlot            `json:"slots"`
}

// Validate rejects unknown channels, unparsable times and duplicate (time, channel) pairs.
func (ds DaySchedule) Validate() error {
	seen := make(map[string]struct{}, len(ds.Slots))
	for _, s := range ds.Slots {
		if _, err := ParseChannel(string(s.Channel)); err != nil {
			return err
		}
		norm, err := calendar.NormalizeTime(s.Time)
		if err != nil {
			return err
		}
		k := norm + "|" + string(s.Channel)
		if _, dup := seen[k]; dup {
			return apperr.Validation("duplicate slot %s (%s) on %s", s.Time, s.Channel, ds.Date)
		}
		seen[k] = struct{}{}
	}
	return nil
}

func (ds DaySchedule) clone() DaySchedule {
	out := DaySchedule{Date: ds.Date, Slots: make([]TimeSlot, len(ds.Slots))}
	copy(out.Slots, ds.Slots)
	return out
}

func (ds DaySchedule) find(t string, ch Channel) int {
	for i, s := range ds.Slots {
		if s.Channel == ch && calendar.SameTime(s.Time, t) {
			return i
		}
	}
	return -1
}

// AvailableSlots keeps the declared order; it never re-sorts.
func AvailableSlots(ds DaySchedule) []TimeSlot {
	out := make([]TimeSlot, 0, len(ds.Slots))
	for _, s := range ds.Slots {
		if s.Available {
			out = append(out, s)
		}
	}
	return out
}

func IsDateFullyBooked(ds DaySchedule) bool {
	return len(AvailableSlots(ds)) == 0
}

// BookSlot returns a copy of ds with the matching slot taken. ds itself is
// left untouched so callers can tell whether anything changed.
func BookSlot(ds DaySchedule, t string, ch Channel) (DaySchedule, error) {
	i := ds.find(t, ch)
	if i < 0 || !ds.Slots[i].Available {
		return ds, apperr.SlotUnavailable(ds.Date.String(), t, string(ch))
	}
	out := ds.clone()
	out.Slots[i].Available = false
	return out, nil
}

// ReleaseSlot frees a previously booked slot. Releasing a slot that is
// already free, or that does not exist, is reported so the caller can log it.
func ReleaseSlot(ds DaySchedule, t string, ch Channel) (DaySchedule, error) {
	i := ds.find(t, ch)
	if i < 0 {
		return ds, apperr.NotFound("slot", fmt.Sprintf("%s %s %s", ds.Date, t, ch))
	}
	if ds.Slots[i].Available {
		return ds, nil
	}
	out := ds.clone()
	out.Slots[i].Available = true
	return out, nil
}
