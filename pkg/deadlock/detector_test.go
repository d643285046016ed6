package deadlock

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDetectMatchesVendorPhrases(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		matched bool
	}{
		{"Postgres phrasing", errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"), true},
		{"MySQL phrasing", errors.New("Error 1213: Deadlock found when trying to get lock"), true},
		{"Lock wait timeout", errors.New("Lock wait timeout exceeded; try restarting transaction"), true},
		{"SQL Server phrasing", errors.New("Transaction (Process ID 52) was chosen as the victim of deadlock"), true},
		{"Plain connection error", errors.New("connection refused"), false},
		{"Nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(10)
			got := d.Detect("orders", tt.err, "UPDATE accounts SET balance = 1 WHERE id = 2")
			if got != tt.matched {
				t.Errorf("Detect(%v) = %v, expected %v", tt.err, got, tt.matched)
			}
		})
	}
}

func TestDetectRecordsNormalizedPattern(t *testing.T) {
	d := NewDetector(10)
	dlErr := errors.New("deadlock detected")

	d.Detect("orders", dlErr, "UPDATE accounts SET balance = 100 WHERE id = 1")
	d.Detect("orders", dlErr, "UPDATE accounts SET balance = 55 WHERE id = 9")
	d.Detect("orders", dlErr, "DELETE FROM sessions WHERE expired_at < '2026-01-01'")

	stats := d.Statistics()
	if stats.Total != 3 {
		t.Errorf("Expected 3 events, got %d", stats.Total)
	}
	if stats.Last24h != 3 {
		t.Errorf("Expected 3 events in last 24h, got %d", stats.Last24h)
	}
	// The two UPDATEs differ only in literals and share a pattern.
	if stats.MostFrequentCount != 2 {
		t.Errorf("Expected most frequent pattern count 2, got %d", stats.MostFrequentCount)
	}
	if stats.MostFrequentPattern != "UPDATE accounts SET balance = N WHERE id = N" {
		t.Errorf("Unexpected most frequent pattern: %q", stats.MostFrequentPattern)
	}
}

func TestRingBufferBound(t *testing.T) {
	d := NewDetector(5)
	dlErr := errors.New("deadlock detected")

	for i := 0; i < 12; i++ {
		d.Detect("orders", dlErr, fmt.Sprintf("UPDATE t%d SET x = 1", i))
	}

	stats := d.Statistics()
	if stats.Total != 5 {
		t.Errorf("Expected history bounded at 5, got %d", stats.Total)
	}

	events := d.RecentEvents(time.Time{})
	if len(events) != 5 {
		t.Fatalf("Expected 5 retained events, got %d", len(events))
	}
	// Oldest retained event is the 8th insert (t7).
	if events[0].Pattern != "UPDATE t7 SET x = N" {
		t.Errorf("Unexpected retained pattern: %q", events[0].Pattern)
	}
}

func TestEvictedEventsDropFromFrequency(t *testing.T) {
	d := NewDetector(2)
	dlErr := errors.New("deadlock detected")

	d.Detect("orders", dlErr, "UPDATE a SET x = 1")
	d.Detect("orders", dlErr, "UPDATE b SET x = 1")
	d.Detect("orders", dlErr, "UPDATE c SET x = 1") // evicts the "a" event

	stats := d.Statistics()
	if stats.MostFrequentCount != 1 {
		t.Errorf("Expected all retained patterns at count 1, got %d", stats.MostFrequentCount)
	}
	if stats.Total != 2 {
		t.Errorf("Expected 2 retained events, got %d", stats.Total)
	}
}

func TestRecentEventsCutoff(t *testing.T) {
	d := NewDetector(10)
	dlErr := errors.New("deadlock detected")
	d.Detect("orders", dlErr, "UPDATE a SET x = 1")

	if got := d.RecentEvents(time.Now().Add(time.Hour)); len(got) != 0 {
		t.Errorf("Expected no events after a future cutoff, got %d", len(got))
	}
	if got := d.RecentEvents(time.Now().Add(-time.Hour)); len(got) != 1 {
		t.Errorf("Expected 1 event after a past cutoff, got %d", len(got))
	}
}
