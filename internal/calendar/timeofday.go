package calendar

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hackgods/clinical-workflow-scheduling/internal/apperr"
)

// NormalizeTime turns a display time such as "9:00 AM" or "14:30" into the
// zero-padded 24h form "HH:MM", which sorts correctly as a string.
func NormalizeTime(s string) (string, error) {
	h, m, err := parseTimeOfDay(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// DisplayTime renders a time in the 12h "9:00 AM" form used across the dashboards.
func DisplayTime(s string) (string, error) {
	h, m, err := parseTimeOfDay(s)
	if err != nil {
		return "", err
	}

	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, m, suffix), nil
}

// SameTime reports whether a and b denote the same time of day.
func SameTime(a, b string) bool {
	na, errA := NormalizeTime(a)
	nb, errB := NormalizeTime(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return na == nb
}

func parseTimeOfDay(s string) (int, int, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if raw == "" {
		return 0, 0, apperr.Validation("time is required")
	}

	meridiem := ""
	for _, suffix := range []string{"AM", "PM"} {
		if strings.HasSuffix(raw, suffix) {
			meridiem = suffix
			raw = strings.TrimSpace(strings.TrimSuffix(raw, suffix))
			break
		}
	}

	hs, ms, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, 0, apperr.Validation("time %q must look like 9:00 AM or 14:30", s)
	}
	h, errH := strconv.Atoi(hs)
	m, errM := strconv.Atoi(ms)
	if errH != nil || errM != nil || len(ms) != 2 || m < 0 || m > 59 {
		return 0, 0, apperr.Validation("time %q must look like 9:00 AM or 14:30", s)
	}

	switch meridiem {
	case "":
		if h < 0 || h > 23 {
			return 0, 0, apperr.Validation("time %q has an hour outside 0-23", s)
		}
	default:
		if h < 1 || h > 12 {
			return 0, 0, apperr.Validation("time %q has an hour outside 1-12", s)
		}
		if h == 12 {
			h = 0
		}
		if meridiem == "PM" {
			h += 12
		}
	}

	return h, m, nil
}
