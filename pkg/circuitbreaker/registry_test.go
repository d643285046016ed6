package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func TestRegistryReturnsSameBreaker(t *testing.T) {
	r := NewRegistry(5, time.Minute)

	a := r.Get("orders")
	b := r.Get("orders")
	if a != b {
		t.Error("Expected the same breaker instance for the same name")
	}

	c := r.Get("billing")
	if a == c {
		t.Error("Expected distinct breakers for distinct names")
	}
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry(0, 0)
	cb := r.Get("defaults")

	testErr := errors.New("down")
	for i := 0; i < 4; i++ {
		_, _ = cb.Execute(func() (any, error) { return nil, testErr })
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected CLOSED below the default threshold of 5, got %v", cb.State())
	}
	_, _ = cb.Execute(func() (any, error) { return nil, testErr })
	if cb.State() != StateOpen {
		t.Errorf("Expected OPEN at the default threshold, got %v", cb.State())
	}
}

func TestRegistrySnapshots(t *testing.T) {
	r := NewRegistry(2, time.Minute)
	r.Get("orders")
	r.Get("billing")

	snaps := r.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(snaps))
	}
	names := map[string]bool{}
	for _, s := range snaps {
		names[s.Name] = true
		if s.State != "CLOSED" {
			t.Errorf("Expected fresh breaker %s to be CLOSED, got %s", s.Name, s.State)
		}
	}
	if !names["orders"] || !names["billing"] {
		t.Errorf("Expected snapshots for both breakers, got %v", names)
	}
}
