// Package apperr holds the error taxonomy shared by the scheduling and lab
// workflow packages. Every error returned by a domain operation wraps exactly
// one of the sentinels below and carries a message fit for direct display.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
	ErrSlotUnavailable   = errors.New("slot unavailable")
)

// Validation reports a missing or malformed required field.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InvalidTransition reports an action attempted from a state that does not permit it.
func InvalidTransition(entity string, from any, action string) error {
	return fmt.Errorf("%w: cannot %s %s in status %v", ErrInvalidTransition, action, entity, from)
}

// NotFound reports an id with no live record.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

// SlotUnavailable reports a booking attempt on a taken or missing slot.
func SlotUnavailable(date, time, channel string) error {
	return fmt.Errorf("%w: %s %s (%s)", ErrSlotUnavailable, date, time, channel)
}

// Kind returns the sentinel wrapped by err, or nil when err is outside the taxonomy.
func Kind(err error) error {
	for _, s := range []error{ErrValidation, ErrInvalidTransition, ErrNotFound, ErrSlotUnavailable} {
		if errors.Is(err, s) {
			return s
		}
	}
	return nil
}
