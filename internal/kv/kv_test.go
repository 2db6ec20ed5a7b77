package kv

import (
	"context"
	"testing"
)

func TestMemoryStoreMissingKeyIsNull(t *testing.T) {
	s := NewMemoryStore()

	raw, err := s.Get(context.Background(), "appointments")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw != nil {
		t.Fatalf("expected nil for missing key, got %s", raw)
	}

	var dst []string
	found, err := GetJSON(context.Background(), s, "appointments", &dst)
	if err != nil || found {
		t.Fatalf("expected not found, got found=%v err=%v", found, err)
	}
}

func TestMemoryStoreRoundTripIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	in := []string{"a", "b"}
	if err := SetJSON(ctx, s, "k", in); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, _ := s.Get(ctx, "k")
	raw[0] = 'X'

	var out []string
	found, err := GetJSON(ctx, s, "k", &out)
	if err != nil || !found {
		t.Fatalf("expected value, found=%v err=%v", found, err)
	}
	if len(out) != 2 || out[0] != "a" || out[1] != "b" {
		t.Fatalf("unexpected value %v", out)
	}
}

func TestGetJSONDecodeError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "k", []byte(`{not json`))

	var out map[string]any
	if _, err := GetJSON(ctx, s, "k", &out); err == nil {
		t.Fatal("expected decode error")
	}
}
