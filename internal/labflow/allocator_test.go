package labflow

import (
	"errors"
	"testing"
	"time"
)

func TestNewPoolAllocatorRejectsEmptyPools(t *testing.T) {
	tests := []struct {
		name        string
		technicians []string
		stations    []string
	}{
		{"no technicians", nil, []string{"S1"}},
		{"blank technicians", []string{" ", ""}, []string{"S1"}},
		{"no stations", []string{"T1"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPoolAllocator(tt.technicians, tt.stations, 0); !errors.Is(err, ErrEmptyPool) {
				t.Fatalf("expected ErrEmptyPool, got %v", err)
			}
		})
	}
}

func TestPoolAllocatorRoundRobin(t *testing.T) {
	p, err := NewPoolAllocator([]string{"T1", "T2"}, []string{"S1", "S2", "S3"}, 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	var techs, stations []string
	for i := 0; i < 4; i++ {
		qa, err := p.Allocate(Allocation{Request: TestRequest{Urgency: UrgencyNormal}, Active: i, Turnaround: time.Hour, Now: now})
		if err != nil {
			t.Fatal(err)
		}
		techs = append(techs, qa.Technician)
		stations = append(stations, qa.Station)

		if qa.Position != i+1 {
			t.Fatalf("position %d, want %d", qa.Position, i+1)
		}
		if want := now.Add(time.Duration(i+1) * 10 * time.Minute); !qa.EstimatedStart.Equal(want) {
			t.Fatalf("start %v, want %v", qa.EstimatedStart, want)
		}
		if !qa.EstimatedCompletion.Equal(qa.EstimatedStart.Add(time.Hour)) {
			t.Fatalf("completion %v not one turnaround after start", qa.EstimatedCompletion)
		}
	}

	if got := techs[0] + techs[1] + techs[2] + techs[3]; got != "T1T2T1T2" {
		t.Fatalf("technicians %v", techs)
	}
	if got := stations[0] + stations[1] + stations[2] + stations[3]; got != "S1S2S3S1" {
		t.Fatalf("stations %v", stations)
	}
}

func TestPoolAllocatorUrgencyShortensWait(t *testing.T) {
	p, _ := NewPoolAllocator([]string{"T1"}, []string{"S1"}, 10*time.Minute)
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	start := func(u Urgency) time.Duration {
		qa, _ := p.Allocate(Allocation{Request: TestRequest{Urgency: u}, Active: 5, Now: now})
		if !qa.valid(now) {
			t.Fatalf("invalid assignment %+v", qa)
		}
		return qa.EstimatedStart.Sub(now)
	}

	normal, high, urgent := start(UrgencyNormal), start(UrgencyHigh), start(UrgencyUrgent)
	if !(urgent < high && high < normal) {
		t.Fatalf("waits not ordered by urgency: urgent %v, high %v, normal %v", urgent, high, normal)
	}
}
