// Package monitor polls every configured database for health signals,
// evaluates alert thresholds against the latest snapshot and drives bounded
// automatic recovery for critical conditions.
package monitor

import (
	"time"
)

// HealthStatus is the derived condition of one database.
type HealthStatus string

const (
	StatusHealthy     HealthStatus = "healthy"
	StatusWarning     HealthStatus = "warning"
	StatusCritical    HealthStatus = "critical"
	StatusUnreachable HealthStatus = "unreachable"
)

// ConnectionMetrics is the pg_stat_activity view of one snapshot.
type ConnectionMetrics struct {
	Total             int     `json:"total"`
	Active            int     `json:"active"`
	Idle              int     `json:"idle"`
	IdleInTransaction int     `json:"idle_in_transaction"`
	MaxConnections    int     `json:"max_connections"`
	UsagePercent      float64 `json:"usage_percent"`
}

// QueryMetrics carries latency and slow-query signals. AverageQueryTimeMs is
// the pool's rolling acquire-to-release measurement.
type QueryMetrics struct {
	AverageQueryTimeMs   float64 `json:"average_query_time_ms"`
	SlowQueriesPerMinute float64 `json:"slow_queries_per_minute"`
}

// ReplicationMetrics reports replay lag on standbys.
type ReplicationMetrics struct {
	IsReplica  bool    `json:"is_replica"`
	LagSeconds float64 `json:"lag_seconds"`
}

// SystemMetrics is the host resource sample taken with the snapshot.
type SystemMetrics struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
	Load1         float64 `json:"load1"`
}

// EngineMetrics carries engine-internal counters.
type EngineMetrics struct {
	CacheHitRatioPercent float64 `json:"cache_hit_ratio_percent"`
	XactCommit           int64   `json:"xact_commit"`
	XactRollback         int64   `json:"xact_rollback"`
	Deadlocks            int64   `json:"deadlocks"`
	TempFiles            int64   `json:"temp_files"`
	TupFetched           int64   `json:"tup_fetched"`
	TupInserted          int64   `json:"tup_inserted"`
}

// DatabaseMetrics is one polling snapshot. Never mutated once appended.
type DatabaseMetrics struct {
	Database    string             `json:"database"`
	Timestamp   time.Time          `json:"timestamp"`
	Connections ConnectionMetrics  `json:"connections"`
	Queries     QueryMetrics       `json:"queries"`
	Replication ReplicationMetrics `json:"replication"`
	System      SystemMetrics      `json:"system"`
	Engine      EngineMetrics      `json:"engine"`
	HealthScore float64            `json:"health_score"`
	Status      HealthStatus       `json:"status"`
}

// MetricValue looks a named threshold metric up in the snapshot.
func (m *DatabaseMetrics) MetricValue(metric string) (float64, bool) {
	switch metric {
	case "connection_usage_percent":
		return m.Connections.UsagePercent, true
	case "average_query_time_ms":
		return m.Queries.AverageQueryTimeMs, true
	case "slow_queries_per_minute":
		return m.Queries.SlowQueriesPerMinute, true
	case "replication_lag_seconds":
		if !m.Replication.IsReplica {
			return 0, false
		}
		return m.Replication.LagSeconds, true
	case "cpu_usage_percent":
		return m.System.CPUPercent, true
	case "memory_usage_percent":
		return m.System.MemoryPercent, true
	case "disk_usage_percent":
		return m.System.DiskPercent, true
	case "cache_hit_ratio_percent":
		return m.Engine.CacheHitRatioPercent, true
	case "health_score":
		return m.HealthScore, true
	}
	return 0, false
}

// lowerIsWorse lists metrics whose thresholds invert: the alert fires when
// the value drops below the level.
var lowerIsWorse = map[string]bool{
	"cache_hit_ratio_percent": true,
	"health_score":            true,
}

// AlertSeverity is the threshold band an alert sits in.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is one threshold breach. At most one unresolved Alert exists per
// (database, metric) pair.
type Alert struct {
	ID             string        `json:"id"`
	Database       string        `json:"database"`
	Metric         string        `json:"metric"`
	CurrentValue   float64       `json:"current_value"`
	ThresholdValue float64       `json:"threshold_value"`
	Severity       AlertSeverity `json:"severity"`
	Message        string        `json:"message"`
	Timestamp      time.Time     `json:"timestamp"`
	Escalated      bool          `json:"escalated"`
	Resolved       bool          `json:"resolved"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
}
