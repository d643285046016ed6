package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheHitRatio(t *testing.T) {
	tests := []struct {
		name     string
		hit      int64
		read     int64
		expected float64
	}{
		{"all hits", 900, 0, 100},
		{"mixed", 90, 10, 90},
		{"all misses", 0, 50, 0},
		{"no activity reports healthy", 0, 0, 100},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, CacheHitRatio(tc.hit, tc.read), 0.001)
		})
	}
}

func TestConnectionStatsUsagePercent(t *testing.T) {
	stats := ConnectionStats{Total: 75, MaxConnections: 100}
	assert.InDelta(t, 75.0, stats.UsagePercent(), 0.001)

	// Unknown limit must not divide by zero.
	stats = ConnectionStats{Total: 10}
	assert.Zero(t, stats.UsagePercent())
}
