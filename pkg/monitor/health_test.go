package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func healthySnapshot() *DatabaseMetrics {
	return &DatabaseMetrics{
		Database: "orders",
		Connections: ConnectionMetrics{
			Total: 10, MaxConnections: 100, UsagePercent: 10,
		},
		Queries: QueryMetrics{AverageQueryTimeMs: 50},
		System:  SystemMetrics{CPUPercent: 20, MemoryPercent: 30, DiskPercent: 40},
		Engine:  EngineMetrics{CacheHitRatioPercent: 99},
	}
}

func TestHealthScorePerfect(t *testing.T) {
	m := healthySnapshot()
	assert.Equal(t, 100.0, computeHealthScore(m))
}

func TestHealthScoreDeductions(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*DatabaseMetrics)
		expected float64
	}{
		{"connection saturation", func(m *DatabaseMetrics) { m.Connections.UsagePercent = 95 }, 70},
		{"elevated connections", func(m *DatabaseMetrics) { m.Connections.UsagePercent = 80 }, 85},
		{"very slow queries", func(m *DatabaseMetrics) { m.Queries.AverageQueryTimeMs = 2500 }, 75},
		{"slow query flood", func(m *DatabaseMetrics) { m.Queries.SlowQueriesPerMinute = 25 }, 85},
		{"replication lag", func(m *DatabaseMetrics) {
			m.Replication = ReplicationMetrics{IsReplica: true, LagSeconds: 90}
		}, 80},
		{"cpu saturation", func(m *DatabaseMetrics) { m.System.CPUPercent = 97 }, 85},
		{"disk pressure", func(m *DatabaseMetrics) { m.System.DiskPercent = 92 }, 85},
		{"cold cache", func(m *DatabaseMetrics) { m.Engine.CacheHitRatioPercent = 70 }, 90},
		{"mild cache shortfall", func(m *DatabaseMetrics) { m.Engine.CacheHitRatioPercent = 85 }, 97},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := healthySnapshot()
			tc.mutate(m)
			assert.Equal(t, tc.expected, computeHealthScore(m))
		})
	}
}

func TestHealthScoreFloorsAtZero(t *testing.T) {
	m := &DatabaseMetrics{
		Connections: ConnectionMetrics{UsagePercent: 99},
		Queries:     QueryMetrics{AverageQueryTimeMs: 5000, SlowQueriesPerMinute: 100},
		Replication: ReplicationMetrics{IsReplica: true, LagSeconds: 300},
		System:      SystemMetrics{CPUPercent: 99, MemoryPercent: 99, DiskPercent: 99},
		Engine:      EngineMetrics{CacheHitRatioPercent: 10},
	}
	assert.Equal(t, 0.0, computeHealthScore(m))
}

func TestDeriveStatus(t *testing.T) {
	m := healthySnapshot()
	m.HealthScore = computeHealthScore(m)
	assert.Equal(t, StatusHealthy, deriveStatus(m))

	m = healthySnapshot()
	m.Connections.UsagePercent = 80
	m.HealthScore = computeHealthScore(m)
	assert.Equal(t, StatusWarning, deriveStatus(m))

	m = healthySnapshot()
	m.Connections.UsagePercent = 95
	m.HealthScore = computeHealthScore(m)
	assert.Equal(t, StatusCritical, deriveStatus(m))

	m = healthySnapshot()
	m.Replication = ReplicationMetrics{IsReplica: true, LagSeconds: 200}
	m.HealthScore = computeHealthScore(m)
	assert.Equal(t, StatusCritical, deriveStatus(m))
}

func TestMetricValueLookup(t *testing.T) {
	m := healthySnapshot()
	m.HealthScore = 88

	v, ok := m.MetricValue("connection_usage_percent")
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)

	v, ok = m.MetricValue("cache_hit_ratio_percent")
	assert.True(t, ok)
	assert.Equal(t, 99.0, v)

	// Not a replica, lag does not apply.
	_, ok = m.MetricValue("replication_lag_seconds")
	assert.False(t, ok)

	_, ok = m.MetricValue("no_such_metric")
	assert.False(t, ok)
}
