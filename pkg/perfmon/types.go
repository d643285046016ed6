// Package perfmon is the longer-horizon analyst: it builds statistical
// baselines per (database, metric), detects regressions against them,
// projects capacity exhaustion from resource trends, and emits query and
// system optimization recommendations.
package perfmon

import (
	"time"
)

// Baseline is the expected-normal value for a metric, computed once from a
// stable historical window. It is never recomputed automatically, only
// replaced through ResetBaseline.
type Baseline struct {
	Database       string    `json:"database"`
	Metric         string    `json:"metric"`
	Mean           float64   `json:"mean"`
	ConfidenceLow  float64   `json:"confidence_low"`
	ConfidenceHigh float64   `json:"confidence_high"`
	SampleCount    int       `json:"sample_count"`
	ComputedAt     time.Time `json:"computed_at"`
}

// RegressionSeverity bands a regression by deviation percentage.
type RegressionSeverity string

const (
	RegressionMinor    RegressionSeverity = "minor"
	RegressionModerate RegressionSeverity = "moderate"
	RegressionMajor    RegressionSeverity = "major"
	RegressionCritical RegressionSeverity = "critical"
)

// Regression is a detected degradation of a metric against its baseline.
type Regression struct {
	ID               string             `json:"id"`
	Database         string             `json:"database"`
	Metric           string             `json:"metric"`
	BaselineValue    float64            `json:"baseline_value"`
	CurrentValue     float64            `json:"current_value"`
	DeviationPercent float64            `json:"deviation_percent"`
	Severity         RegressionSeverity `json:"severity"`
	CandidateCauses  []string           `json:"candidate_causes"`
	Timestamp        time.Time          `json:"timestamp"`
}

// QueryRecommendation is optimization advice derived from a captured slow
// query pattern.
type QueryRecommendation struct {
	ID                   string    `json:"id"`
	Database             string    `json:"database"`
	QueryHash            string    `json:"query_hash"`
	QueryText            string    `json:"query_text"`
	Priority             string    `json:"priority"`
	EstimatedImprovement float64   `json:"estimated_improvement_percent"`
	Suggestions          []string  `json:"suggestions"`
	Frequency            int       `json:"frequency"`
	Timestamp            time.Time `json:"timestamp"`
}

// SystemRecommendation is advice emitted when a resource runs sustained
// high without yet being a capacity emergency.
type SystemRecommendation struct {
	ID             string    `json:"id"`
	Database       string    `json:"database"`
	Resource       string    `json:"resource"`
	CurrentUsage   float64   `json:"current_usage"`
	Recommendation string    `json:"recommendation"`
	Timestamp      time.Time `json:"timestamp"`
}

// CapacityUrgency orders capacity recommendations for operators.
type CapacityUrgency string

const (
	UrgencyImmediate CapacityUrgency = "immediate"
	UrgencyHigh      CapacityUrgency = "high"
	UrgencyMedium    CapacityUrgency = "medium"
	UrgencyLow       CapacityUrgency = "low"
)

// CapacityRecommendation is forecast-driven scaling advice for one resource.
type CapacityRecommendation struct {
	ID              string          `json:"id"`
	Database        string          `json:"database"`
	Resource        string          `json:"resource"`
	CurrentUsage    float64         `json:"current_usage"`
	ProjectedUsage  float64         `json:"projected_usage"`
	DaysToCapacity  float64         `json:"days_to_capacity"`
	Urgency         CapacityUrgency `json:"urgency"`
	SuggestedAction string          `json:"suggested_action"`
	CostNote        string          `json:"cost_note,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// trackedMetrics are the keys whose history feeds baselines and
// regressions.
var trackedMetrics = []string{
	"connection_usage_percent",
	"average_query_time_ms",
	"slow_queries_per_minute",
	"replication_lag_seconds",
	"cpu_usage_percent",
	"memory_usage_percent",
	"disk_usage_percent",
	"cache_hit_ratio_percent",
	"health_score",
}

// higherIsBetter inverts the degradation direction: for these metrics a
// drop below baseline is the regression.
var higherIsBetter = map[string]bool{
	"cache_hit_ratio_percent": true,
	"health_score":            true,
}

// candidateCauses maps a metric to the usual suspects an operator should
// check first when it regresses.
var candidateCauses = map[string][]string{
	"connection_usage_percent": {
		"connection leak in an application",
		"pool sized below current traffic",
		"traffic growth",
	},
	"average_query_time_ms": {
		"missing or degraded index",
		"query plan change after data growth",
		"lock contention",
		"stale table statistics",
	},
	"slow_queries_per_minute": {
		"newly deployed unoptimized queries",
		"stale table statistics",
		"data volume crossed an index tipping point",
	},
	"replication_lag_seconds": {
		"long-running transaction on the primary",
		"network saturation between primary and replica",
		"replica I/O saturation",
	},
	"cpu_usage_percent": {
		"expensive queries or missing indexes",
		"background jobs competing for CPU",
		"traffic growth",
	},
	"memory_usage_percent": {
		"work_mem set too high for the connection count",
		"connection count growth",
		"cache sized beyond available memory",
	},
	"disk_usage_percent": {
		"table or index bloat",
		"WAL accumulation",
		"log or temp file growth",
	},
	"cache_hit_ratio_percent": {
		"working set outgrew shared_buffers",
		"sequential scans displacing hot pages",
		"new access pattern with poor locality",
	},
	"health_score": {
		"composite score, inspect the component metrics",
	},
}

func causesFor(metric string) []string {
	if causes, ok := candidateCauses[metric]; ok {
		return causes
	}
	return []string{"no known causes catalogued for this metric"}
}
