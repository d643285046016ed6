package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection pool metrics
var (
	PoolTotalConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbvigil_pool_total_conns",
			Help: "Total connections currently held by the pool",
		},
		[]string{"database", "role"},
	)

	PoolIdleConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbvigil_pool_idle_conns",
			Help: "Idle connections currently held by the pool",
		},
		[]string{"database", "role"},
	)

	PoolInUseConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbvigil_pool_in_use_conns",
			Help: "Connections currently checked out of the pool",
		},
		[]string{"database", "role"},
	)

	PoolAcquiresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvigil_pool_acquires_total",
			Help: "Total connection acquire attempts",
		},
		[]string{"database", "result"},
	)

	PoolAcquireDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbvigil_pool_acquire_duration_seconds",
			Help:    "Time spent waiting for a connection",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		},
		[]string{"database"},
	)

	PoolExhaustionWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvigil_pool_exhaustion_warnings_total",
			Help: "Times pool utilization exceeded the exhaustion warning level",
		},
		[]string{"database"},
	)

	PoolRebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvigil_pool_rebuilds_total",
			Help: "Times an unhealthy pool was rebuilt",
		},
		[]string{"database", "result"},
	)

	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvigil_queries_total",
			Help: "Total measured queries by operation and result",
		},
		[]string{"database", "operation", "result", "role"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbvigil_query_duration_seconds",
			Help:    "Measured query duration by operation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"database", "operation", "role"},
	)
)

// Database health metrics, fed by the monitor loop
var (
	DBHealthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbvigil_db_health_score",
			Help: "Composite database health score (0-100)",
		},
		[]string{"database"},
	)

	DBHealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbvigil_db_health_status",
			Help: "Database health status (0=unreachable, 1=critical, 2=warning, 3=healthy)",
		},
		[]string{"database"},
	)

	DBConnectionUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbvigil_db_connection_usage_percent",
			Help: "Backend connections in use as a percentage of max_connections",
		},
		[]string{"database"},
	)

	DBAverageQueryTime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbvigil_db_average_query_time_seconds",
			Help: "Rolling average query latency observed through the pool",
		},
		[]string{"database"},
	)

	DBReplicationLag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbvigil_db_replication_lag_seconds",
			Help: "Replication lag reported by the engine",
		},
		[]string{"database"},
	)

	DBCacheHitRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbvigil_db_cache_hit_ratio",
			Help: "Buffer cache hit ratio (0-1)",
		},
		[]string{"database"},
	)

	DBDeadlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvigil_db_deadlocks_total",
			Help: "Deadlocks detected",
		},
		[]string{"database"},
	)

	SystemResourceUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbvigil_system_resource_usage_percent",
			Help: "Host resource usage sampled alongside database metrics",
		},
		[]string{"database", "resource"}, // resource: cpu, memory, disk
	)
)

// Error handling metrics
var (
	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvigil_db_errors_total",
			Help: "Database errors seen by the error handler",
		},
		[]string{"database", "category", "severity"},
	)

	RecoveryActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvigil_recovery_actions_total",
			Help: "Recovery actions executed",
		},
		[]string{"database", "action", "result"},
	)

	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvigil_retry_attempts_total",
			Help: "Retry attempts made for transient errors",
		},
		[]string{"database"},
	)
)

// Circuit breaker metrics
var (
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbvigil_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvigil_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "to"},
	)
)

// Alerting metrics
var (
	AlertsActiveCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbvigil_alerts_active_current",
			Help: "Currently active alerts",
		},
		[]string{"severity"},
	)

	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvigil_alerts_total",
			Help: "Alerts raised",
		},
		[]string{"database", "severity"},
	)

	AlertDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvigil_alert_deliveries_total",
			Help: "Alert delivery attempts per channel",
		},
		[]string{"channel", "result"},
	)

	AlertDeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbvigil_alert_delivery_duration_seconds",
			Help:    "Duration of alert delivery attempts",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"channel"},
	)
)

// Slow query and performance analysis metrics
var (
	SlowQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvigil_slow_queries_total",
			Help: "Slow queries captured by the analyzer",
		},
		[]string{"database", "severity"},
	)

	RegressionsDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvigil_regressions_detected_total",
			Help: "Performance regressions detected against baselines",
		},
		[]string{"database", "severity"},
	)

	BaselinesEstablished = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbvigil_baselines_established",
			Help: "Performance baselines currently established",
		},
		[]string{"database"},
	)

	CapacityDaysRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbvigil_capacity_days_remaining",
			Help: "Projected days until a resource reaches capacity (-1 when no growth trend)",
		},
		[]string{"database", "resource"},
	)
)

// Archive store metrics
var (
	ArchiveOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvigil_archive_operations_total",
			Help: "Local archive store operations",
		},
		[]string{"operation", "result"},
	)

	ArchiveRowsPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbvigil_archive_rows_pruned_total",
			Help: "Rows removed from the archive by retention pruning",
		},
		[]string{"table"},
	)
)

// Degradation metrics
var (
	DegradationActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbvigil_degradation_active",
			Help: "Whether degraded mode is active for a database (0 or 1)",
		},
		[]string{"database"},
	)
)
