package apperr

import (
	"errors"
	"strings"
	"testing"
)

func TestConstructorsWrapSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
		msg  string
	}{
		{"validation", Validation("patient is required"), ErrValidation, "patient is required"},
		{"transition", InvalidTransition("test request", "Accepted", "accept"), ErrInvalidTransition, "cannot accept test request in status Accepted"},
		{"not found", NotFound("appointment", "APT-1"), ErrNotFound, `appointment "APT-1"`},
		{"slot", SlotUnavailable("2024-02-15", "9:00 AM", "video"), ErrSlotUnavailable, "2024-02-15 9:00 AM (video)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Fatalf("expected %v to wrap %v", tt.err, tt.want)
			}
			if !strings.Contains(tt.err.Error(), tt.msg) {
				t.Fatalf("expected message to contain %q, got %q", tt.msg, tt.err.Error())
			}
			if Kind(tt.err) != tt.want {
				t.Fatalf("Kind() = %v, want %v", Kind(tt.err), tt.want)
			}
		})
	}
}

func TestKindOutsideTaxonomy(t *testing.T) {
	if Kind(errors.New("boom")) != nil {
		t.Fatal("expected nil kind for foreign error")
	}
}
