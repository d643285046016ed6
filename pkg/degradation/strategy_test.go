package degradation

import (
	"testing"
)

func TestLevelFromDegradedShare(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		degraded []string
		expected Level
	}{
		{"No degradation", 4, nil, LevelNormal},
		{"Single database", 4, []string{"a"}, LevelMinor},
		{"Two of four", 4, []string{"a", "b"}, LevelMajor},
		{"Three of four", 4, []string{"a", "b", "c"}, LevelCritical},
		{"All degraded", 4, []string{"a", "b", "c", "d"}, LevelEmergency},
		{"Only database degraded", 1, []string{"a"}, LevelEmergency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.total)
			for _, db := range tt.degraded {
				m.Enter(db, "breaker open")
			}
			if got := m.CurrentLevel(); got != tt.expected {
				t.Errorf("Expected level %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestEnterResetRoundTrip(t *testing.T) {
	m := NewManager(2)

	m.Enter("orders", "error burst")
	if !m.IsDegraded("orders") {
		t.Error("Expected orders degraded after Enter")
	}
	if m.IsDegraded("billing") {
		t.Error("Expected billing unaffected")
	}

	recs := m.Records()
	if len(recs) != 1 || recs[0].Reason != "error burst" {
		t.Errorf("Unexpected records: %v", recs)
	}

	m.Reset("orders")
	if m.IsDegraded("orders") {
		t.Error("Expected orders cleared after Reset")
	}
	if m.CurrentLevel() != LevelNormal {
		t.Errorf("Expected level normal after reset, got %v", m.CurrentLevel())
	}
}

func TestReEnterKeepsStartTime(t *testing.T) {
	m := NewManager(2)

	m.Enter("orders", "first")
	since := m.Records()[0].Since

	m.Enter("orders", "second")
	recs := m.Records()
	if recs[0].Reason != "second" {
		t.Errorf("Expected refreshed reason, got %q", recs[0].Reason)
	}
	if !recs[0].Since.Equal(since) {
		t.Error("Expected original start time preserved on re-enter")
	}
}

func TestResetAll(t *testing.T) {
	m := NewManager(3)
	m.Enter("a", "x")
	m.Enter("b", "x")

	m.ResetAll()
	if len(m.Records()) != 0 {
		t.Errorf("Expected no records after ResetAll, got %d", len(m.Records()))
	}
	if m.CurrentLevel() != LevelNormal {
		t.Errorf("Expected normal level, got %v", m.CurrentLevel())
	}
}

func TestStrategiesFollowLevel(t *testing.T) {
	m := NewManager(4)
	readPref := NewReadPreferenceStrategy()
	retrySupp := NewRetrySuppressionStrategy(3)
	pause := NewNonEssentialWorkStrategy()
	m.RegisterStrategy(readPref)
	m.RegisterStrategy(retrySupp)
	m.RegisterStrategy(pause)

	m.Enter("a", "x") // minor
	if !readPref.IsActive() {
		t.Error("Expected read preference active at minor")
	}
	if retrySupp.IsActive() {
		t.Error("Expected retry suppression inactive at minor")
	}

	m.Enter("b", "x") // major
	if !retrySupp.IsActive() {
		t.Error("Expected retry suppression active at major")
	}
	if retrySupp.CurrentRetries() != 1 {
		t.Errorf("Expected retry budget 1 at major, got %d", retrySupp.CurrentRetries())
	}
	if pause.IsActive() {
		t.Error("Expected non-essential work running at major")
	}

	m.Enter("c", "x") // critical
	if !pause.IsActive() {
		t.Error("Expected non-essential work paused at critical")
	}
	if retrySupp.CurrentRetries() != 0 {
		t.Errorf("Expected retry budget 0 at critical, got %d", retrySupp.CurrentRetries())
	}

	m.ResetAll()
	if readPref.IsActive() || retrySupp.IsActive() || pause.IsActive() {
		t.Error("Expected all strategies deactivated after ResetAll")
	}
	if retrySupp.CurrentRetries() != 3 {
		t.Errorf("Expected retry budget restored to 3, got %d", retrySupp.CurrentRetries())
	}
}
