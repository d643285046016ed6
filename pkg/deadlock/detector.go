// Package deadlock recognizes deadlock errors across database engines and
// keeps a bounded history of events for pattern analysis.
package deadlock

import (
	"strings"
	"sync"
	"time"

	"github.com/dbvigil/dbvigil/pkg/metrics"
	"github.com/dbvigil/dbvigil/pkg/sqlanalyze"
)

// Vendor-agnostic phrases that identify a deadlock or lock-wait failure.
var deadlockPhrases = []string{
	"deadlock found",
	"deadlock detected",
	"lock wait timeout",
	"lock timeout",
	"could not obtain lock",
	"victim of deadlock",
}

// Event records one detected deadlock, keyed by the normalized pattern of
// the query that lost.
type Event struct {
	Database  string    `json:"database"`
	Pattern   string    `json:"pattern"`
	Timestamp time.Time `json:"timestamp"`
}

// Statistics summarizes detector history.
type Statistics struct {
	Total               int    `json:"total"`
	Last24h             int    `json:"last_24h"`
	MostFrequentPattern string `json:"most_frequent_pattern,omitempty"`
	MostFrequentCount   int    `json:"most_frequent_count,omitempty"`
}

// Detector matches errors against deadlock phrases and tracks events in a
// fixed-size ring.
type Detector struct {
	mu       sync.Mutex
	events   []Event // ring buffer
	next     int
	filled   bool
	byPattern map[string]int
}

func NewDetector(historySize int) *Detector {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Detector{
		events:    make([]Event, historySize),
		byPattern: make(map[string]int),
	}
}

// Detect reports whether err is a deadlock. Matches are recorded against
// the normalized pattern of query.
func (d *Detector) Detect(database string, err error, query string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	matched := false
	for _, phrase := range deadlockPhrases {
		if strings.Contains(msg, phrase) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	pattern := sqlanalyze.Normalize(query)

	d.mu.Lock()
	old := d.events[d.next]
	if d.filled && old.Pattern != "" {
		// Overwritten ring slot no longer counts toward pattern frequency.
		if n := d.byPattern[old.Pattern] - 1; n > 0 {
			d.byPattern[old.Pattern] = n
		} else {
			delete(d.byPattern, old.Pattern)
		}
	}
	d.events[d.next] = Event{Database: database, Pattern: pattern, Timestamp: time.Now()}
	d.next++
	if d.next == len(d.events) {
		d.next = 0
		d.filled = true
	}
	d.byPattern[pattern]++
	d.mu.Unlock()

	metrics.DBDeadlocksTotal.WithLabelValues(database).Inc()
	return true
}

// Statistics reports totals, the last-24h count, and the most frequent
// query pattern among retained events.
func (d *Detector) Statistics() Statistics {
	d.mu.Lock()
	defer d.mu.Unlock()

	var stats Statistics
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, e := range d.events {
		if e.Timestamp.IsZero() {
			continue
		}
		stats.Total++
		if e.Timestamp.After(cutoff) {
			stats.Last24h++
		}
	}
	for pattern, count := range d.byPattern {
		if count > stats.MostFrequentCount {
			stats.MostFrequentCount = count
			stats.MostFrequentPattern = pattern
		}
	}
	return stats
}

// RecentEvents returns retained events newer than cutoff, oldest first.
func (d *Detector) RecentEvents(cutoff time.Time) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Event, 0, len(d.events))
	// Walk the ring in insertion order.
	start := 0
	if d.filled {
		start = d.next
	}
	for i := 0; i < len(d.events); i++ {
		e := d.events[(start+i)%len(d.events)]
		if e.Timestamp.IsZero() || !e.Timestamp.After(cutoff) {
			continue
		}
		out = append(out, e)
	}
	return out
}
