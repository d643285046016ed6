package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dbvigil/dbvigil/helpers"
)

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Output string `toml:"output"` // Log output: "stderr", "stdout", "syslog", or file path
	Format string `toml:"format"` // Log format: "json" or "console"
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", "error"
}

// DatabaseEndpointConfig holds configuration for a single database endpoint
type DatabaseEndpointConfig struct {
	// List of database hosts for runtime failover/load balancing
	// Examples:
	//   Single host: ["db.example.com"]
	//   Multiple hosts: ["db1", "db2", "db3"]
	//   With ports: ["db1:5432", "db2:5433"]
	Hosts           []string    `toml:"hosts"`
	Port            interface{} `toml:"port"` // Database port (default: "5432"), can be string or integer
	User            string      `toml:"user"`
	Password        string      `toml:"password"`
	Name            string      `toml:"name"`
	TLSMode         bool        `toml:"tls"`
	MaxConns        int         `toml:"max_conns"`          // Maximum number of connections in the pool
	MinConns        int         `toml:"min_conns"`          // Minimum number of connections in the pool
	MaxConnLifetime string      `toml:"max_conn_lifetime"`  // Maximum lifetime of a connection
	MaxConnIdleTime string      `toml:"max_conn_idle_time"` // Maximum idle time before a connection is closed
	QueryTimeout    string      `toml:"query_timeout"`      // Per-endpoint timeout for individual queries (e.g., "30s")
}

// GetMaxConnLifetime parses the max connection lifetime duration for an endpoint
func (e *DatabaseEndpointConfig) GetMaxConnLifetime() (time.Duration, error) {
	if e.MaxConnLifetime == "" {
		return time.Hour, nil
	}
	return helpers.ParseDuration(e.MaxConnLifetime)
}

// GetMaxConnIdleTime parses the max connection idle time duration for an endpoint
func (e *DatabaseEndpointConfig) GetMaxConnIdleTime() (time.Duration, error) {
	if e.MaxConnIdleTime == "" {
		return 30 * time.Minute, nil
	}
	return helpers.ParseDuration(e.MaxConnIdleTime)
}

// GetQueryTimeout parses the query timeout duration for an endpoint.
func (e *DatabaseEndpointConfig) GetQueryTimeout() (time.Duration, error) {
	if e.QueryTimeout == "" {
		return 0, nil // Zero duration if not set, caller applies the global default.
	}
	return helpers.ParseDuration(e.QueryTimeout)
}

// GetPort normalizes the Port field, which TOML may decode as either a
// string or an integer, into a port string.
func (e *DatabaseEndpointConfig) GetPort() (string, error) {
	switch p := e.Port.(type) {
	case nil:
		return "5432", nil
	case string:
		if p == "" {
			return "5432", nil
		}
		return p, nil
	case int64:
		return strconv.FormatInt(p, 10), nil
	case int:
		return strconv.Itoa(p), nil
	default:
		return "", fmt.Errorf("invalid port type %T", e.Port)
	}
}

// MonitoredDatabaseConfig describes one database under management. The write
// endpoint is required; the read endpoint is optional and falls back to write.
type MonitoredDatabaseConfig struct {
	Alias       string                  `toml:"alias"`        // Unique name used in metrics, alerts and the API
	Write       *DatabaseEndpointConfig `toml:"write"`        // Primary endpoint
	Read        *DatabaseEndpointConfig `toml:"read"`         // Read replica endpoint (optional)
	MaxOverflow int                     `toml:"max_overflow"` // Connections allowed beyond max_conns during spikes
}

// PoolConfig holds pool manager configuration shared across databases
type PoolConfig struct {
	HealthCheckInterval string  `toml:"health_check_interval"` // How often pools are probed (default: "30s")
	AcquireTimeout      string  `toml:"acquire_timeout"`       // Maximum wait for a connection (default: "10s")
	QueryTimeout        string  `toml:"query_timeout"`         // Default timeout for queries (default: "30s")
	TargetUtilization   float64 `toml:"target_utilization"`    // Sizing advisor target, fraction of pool size (default: 0.75)
	LogQueries          bool    `toml:"log_queries"`           // Trace every statement at debug level
}

// GetHealthCheckInterval parses the pool health check interval
func (p *PoolConfig) GetHealthCheckInterval() (time.Duration, error) {
	if p.HealthCheckInterval == "" {
		return 30 * time.Second, nil
	}
	return helpers.ParseDuration(p.HealthCheckInterval)
}

// GetAcquireTimeout parses the connection acquire timeout
func (p *PoolConfig) GetAcquireTimeout() (time.Duration, error) {
	if p.AcquireTimeout == "" {
		return 10 * time.Second, nil
	}
	return helpers.ParseDuration(p.AcquireTimeout)
}

// GetQueryTimeout parses the default query timeout
func (p *PoolConfig) GetQueryTimeout() (time.Duration, error) {
	if p.QueryTimeout == "" {
		return 30 * time.Second, nil
	}
	return helpers.ParseDuration(p.QueryTimeout)
}

// GetTargetUtilization returns the sizing advisor target with a default of 0.75
func (p *PoolConfig) GetTargetUtilization() float64 {
	if p.TargetUtilization <= 0 || p.TargetUtilization > 1 {
		return 0.75
	}
	return p.TargetUtilization
}

// ThresholdConfig defines warning/critical levels for a single metric
type ThresholdConfig struct {
	Metric    string  `toml:"metric" json:"metric"`       // Metric name, e.g. "connection_usage_percent"
	Warning   float64 `toml:"warning" json:"warning"`     // Warning level
	Critical  float64 `toml:"critical" json:"critical"`   // Critical level
	Frequency string  `toml:"frequency" json:"frequency"` // Minimum interval between repeat alerts (default: "5m")
	Duration  string  `toml:"duration" json:"duration"`   // How long the metric must stay above level before alerting (default: "0s")
}

// GetFrequency parses the minimum re-alert interval
func (t *ThresholdConfig) GetFrequency() (time.Duration, error) {
	if t.Frequency == "" {
		return 5 * time.Minute, nil
	}
	return helpers.ParseDuration(t.Frequency)
}

// GetDuration parses the sustained-breach duration
func (t *ThresholdConfig) GetDuration() (time.Duration, error) {
	if t.Duration == "" {
		return 0, nil
	}
	return helpers.ParseDuration(t.Duration)
}

// MonitorConfig holds database monitor configuration
type MonitorConfig struct {
	Enabled         bool              `toml:"enabled"`          // Master switch for metric collection (default: true)
	MetricsInterval string            `toml:"metrics_interval"` // Metric collection interval (default: "30s")
	AlertInterval   string            `toml:"alert_interval"`   // Threshold evaluation interval (default: "10s")
	HistoryLimit    int               `toml:"history_limit"`    // Metric snapshots kept in memory per database (default: 2880)
	Thresholds      []ThresholdConfig `toml:"thresholds"`       // Per-metric alert thresholds
}

// GetMetricsInterval parses the metric collection interval
func (m *MonitorConfig) GetMetricsInterval() (time.Duration, error) {
	if m.MetricsInterval == "" {
		return 30 * time.Second, nil
	}
	return helpers.ParseDuration(m.MetricsInterval)
}

// GetAlertInterval parses the threshold evaluation interval
func (m *MonitorConfig) GetAlertInterval() (time.Duration, error) {
	if m.AlertInterval == "" {
		return 10 * time.Second, nil
	}
	return helpers.ParseDuration(m.AlertInterval)
}

// GetHistoryLimit returns the in-memory snapshot bound, default 2880
// (24 hours at the default 30s interval).
func (m *MonitorConfig) GetHistoryLimit() int {
	if m.HistoryLimit <= 0 {
		return 2880
	}
	return m.HistoryLimit
}

// RecoveryConfig holds automatic recovery configuration
type RecoveryConfig struct {
	Enabled             bool   `toml:"enabled"`                // Allow automated recovery actions (default: true)
	MaxActions          int    `toml:"max_actions"`            // Maximum actions per database and action type per window (default: 3)
	Window              string `toml:"window"`                 // Rate limit window (default: "10m")
	IdleConnectionAge   string `toml:"idle_connection_age"`    // Idle backends older than this are terminated (default: "10m")
	LongRunningQueryAge string `toml:"long_running_query_age"` // Queries older than this are cancelled (default: "5m")
}

// GetWindow parses the recovery rate limit window
func (r *RecoveryConfig) GetWindow() (time.Duration, error) {
	if r.Window == "" {
		return 10 * time.Minute, nil
	}
	return helpers.ParseDuration(r.Window)
}

// GetIdleConnectionAge parses the idle backend age cutoff
func (r *RecoveryConfig) GetIdleConnectionAge() (time.Duration, error) {
	if r.IdleConnectionAge == "" {
		return 10 * time.Minute, nil
	}
	return helpers.ParseDuration(r.IdleConnectionAge)
}

// GetLongRunningQueryAge parses the long-running query age cutoff
func (r *RecoveryConfig) GetLongRunningQueryAge() (time.Duration, error) {
	if r.LongRunningQueryAge == "" {
		return 5 * time.Minute, nil
	}
	return helpers.ParseDuration(r.LongRunningQueryAge)
}

// GetMaxActions returns the per-window action budget, default 3
func (r *RecoveryConfig) GetMaxActions() int {
	if r.MaxActions <= 0 {
		return 3
	}
	return r.MaxActions
}

// ErrorHandlingConfig holds error classification and retry configuration
type ErrorHandlingConfig struct {
	MaxRetryAttempts      int    `toml:"max_retry_attempts"`      // Upper bound on retries for transient errors (default: 3)
	RetryBaseDelay        string `toml:"retry_base_delay"`        // First retry delay, doubled per attempt (default: "100ms")
	RetryMaxDelay         string `toml:"retry_max_delay"`         // Cap on the retry delay (default: "5s")
	CircuitErrorThreshold int    `toml:"circuit_error_threshold"` // Errors within the window that force the breaker open (default: 10)
	CircuitErrorWindow    string `toml:"circuit_error_window"`    // Window for the error-burst count (default: "5m")
}

// GetMaxRetryAttempts returns the retry budget, default 3
func (e *ErrorHandlingConfig) GetMaxRetryAttempts() int {
	if e.MaxRetryAttempts <= 0 {
		return 3
	}
	return e.MaxRetryAttempts
}

// GetRetryBaseDelay parses the initial retry delay
func (e *ErrorHandlingConfig) GetRetryBaseDelay() (time.Duration, error) {
	if e.RetryBaseDelay == "" {
		return 100 * time.Millisecond, nil
	}
	return helpers.ParseDuration(e.RetryBaseDelay)
}

// GetRetryMaxDelay parses the retry delay cap
func (e *ErrorHandlingConfig) GetRetryMaxDelay() (time.Duration, error) {
	if e.RetryMaxDelay == "" {
		return 5 * time.Second, nil
	}
	return helpers.ParseDuration(e.RetryMaxDelay)
}

// GetCircuitErrorThreshold returns the error-burst count, default 10
func (e *ErrorHandlingConfig) GetCircuitErrorThreshold() int {
	if e.CircuitErrorThreshold <= 0 {
		return 10
	}
	return e.CircuitErrorThreshold
}

// GetCircuitErrorWindow parses the error-burst window
func (e *ErrorHandlingConfig) GetCircuitErrorWindow() (time.Duration, error) {
	if e.CircuitErrorWindow == "" {
		return 5 * time.Minute, nil
	}
	return helpers.ParseDuration(e.CircuitErrorWindow)
}

// CircuitBreakerConfig holds per-database circuit breaker configuration
type CircuitBreakerConfig struct {
	FailureThreshold uint32 `toml:"failure_threshold"` // Consecutive failures before the breaker opens (default: 5)
	RecoveryTimeout  string `toml:"recovery_timeout"`  // How long the breaker stays open before a trial call (default: "60s")
}

// GetFailureThreshold returns the trip threshold, default 5
func (c *CircuitBreakerConfig) GetFailureThreshold() uint32 {
	if c.FailureThreshold == 0 {
		return 5
	}
	return c.FailureThreshold
}

// GetRecoveryTimeout parses the open-state timeout
func (c *CircuitBreakerConfig) GetRecoveryTimeout() (time.Duration, error) {
	if c.RecoveryTimeout == "" {
		return 60 * time.Second, nil
	}
	return helpers.ParseDuration(c.RecoveryTimeout)
}

// DeadlockConfig holds deadlock detector configuration
type DeadlockConfig struct {
	HistorySize int `toml:"history_size"` // Deadlock events kept in memory (default: 1000)
}

// GetHistorySize returns the event history bound, default 1000
func (d *DeadlockConfig) GetHistorySize() int {
	if d.HistorySize <= 0 {
		return 1000
	}
	return d.HistorySize
}

// SlowQueryConfig holds slow query analyzer configuration
type SlowQueryConfig struct {
	MaxEntries int    `toml:"max_entries"` // Distinct query patterns kept (default: 500)
	Threshold  string `toml:"threshold"`   // Running statements older than this are analyzed (default: "2s")
}

// GetMaxEntries returns the pattern bound, default 500
func (s *SlowQueryConfig) GetMaxEntries() int {
	if s.MaxEntries <= 0 {
		return 500
	}
	return s.MaxEntries
}

// GetThreshold parses the slow statement threshold
func (s *SlowQueryConfig) GetThreshold() (time.Duration, error) {
	if s.Threshold == "" {
		return 2 * time.Second, nil
	}
	return helpers.ParseDuration(s.Threshold)
}

// PerformanceConfig holds baseline/regression/capacity analysis configuration
type PerformanceConfig struct {
	Enabled              bool    `toml:"enabled"`               // Master switch for performance analysis (default: true)
	Interval             string  `toml:"interval"`              // Analysis cycle interval (default: "60s")
	DegradationThreshold float64 `toml:"degradation_threshold"` // Fractional deviation that counts as regression (default: 0.15)
	BaselineMinSamples   int     `toml:"baseline_min_samples"`  // Samples required before a baseline is computed (default: 50)
	BaselineWindowStart  string  `toml:"baseline_window_start"` // Stable window near edge, age of newest sample (default: "24h")
	BaselineWindowEnd    string  `toml:"baseline_window_end"`   // Stable window far edge, age of oldest sample (default: "48h")
	MetricsRetention     string  `toml:"metrics_retention"`     // Rolling history retention (default: "7d")
	RegressionRetention  string  `toml:"regression_retention"`  // Regression record retention (default: "30d")
	TrendWindow          string  `toml:"trend_window"`          // Window used for capacity trend fitting (default: "24h")
	ProjectionDays       int     `toml:"projection_days"`       // Days ahead to project capacity (default: 30)
	CPUCritical          float64 `toml:"cpu_critical"`          // CPU percent that demands immediate action (default: 90)
	MemoryCritical       float64 `toml:"memory_critical"`       // Memory percent that demands immediate action (default: 90)
	DiskCritical         float64 `toml:"disk_critical"`         // Disk percent that demands immediate action (default: 90)
	ConnectionsCritical  float64 `toml:"connections_critical"`  // Connection usage percent that demands immediate action (default: 90)
}

// GetInterval parses the analysis cycle interval
func (p *PerformanceConfig) GetInterval() (time.Duration, error) {
	if p.Interval == "" {
		return time.Minute, nil
	}
	return helpers.ParseDuration(p.Interval)
}

// GetDegradationThreshold returns the regression threshold, default 0.15
func (p *PerformanceConfig) GetDegradationThreshold() float64 {
	if p.DegradationThreshold <= 0 || p.DegradationThreshold >= 1 {
		return 0.15
	}
	return p.DegradationThreshold
}

// GetBaselineMinSamples returns the baseline sample floor, default 50
func (p *PerformanceConfig) GetBaselineMinSamples() int {
	if p.BaselineMinSamples <= 0 {
		return 50
	}
	return p.BaselineMinSamples
}

// GetBaselineWindowStart parses the near edge of the stable baseline window
func (p *PerformanceConfig) GetBaselineWindowStart() (time.Duration, error) {
	if p.BaselineWindowStart == "" {
		return 24 * time.Hour, nil
	}
	return helpers.ParseDuration(p.BaselineWindowStart)
}

// GetBaselineWindowEnd parses the far edge of the stable baseline window
func (p *PerformanceConfig) GetBaselineWindowEnd() (time.Duration, error) {
	if p.BaselineWindowEnd == "" {
		return 48 * time.Hour, nil
	}
	return helpers.ParseDuration(p.BaselineWindowEnd)
}

// GetMetricsRetention parses the rolling history retention
func (p *PerformanceConfig) GetMetricsRetention() (time.Duration, error) {
	if p.MetricsRetention == "" {
		return 7 * 24 * time.Hour, nil
	}
	return helpers.ParseDuration(p.MetricsRetention)
}

// GetRegressionRetention parses the regression record retention
func (p *PerformanceConfig) GetRegressionRetention() (time.Duration, error) {
	if p.RegressionRetention == "" {
		return 30 * 24 * time.Hour, nil
	}
	return helpers.ParseDuration(p.RegressionRetention)
}

// GetTrendWindow parses the capacity trend window
func (p *PerformanceConfig) GetTrendWindow() (time.Duration, error) {
	if p.TrendWindow == "" {
		return 24 * time.Hour, nil
	}
	return helpers.ParseDuration(p.TrendWindow)
}

// GetProjectionDays returns the projection horizon, default 30
func (p *PerformanceConfig) GetProjectionDays() int {
	if p.ProjectionDays <= 0 {
		return 30
	}
	return p.ProjectionDays
}

// GetResourceCritical returns the critical threshold for a resource type,
// defaulting to 90 percent.
func (p *PerformanceConfig) GetResourceCritical(resource string) float64 {
	var v float64
	switch resource {
	case "cpu":
		v = p.CPUCritical
	case "memory":
		v = p.MemoryCritical
	case "disk":
		v = p.DiskCritical
	case "connections":
		v = p.ConnectionsCritical
	}
	if v <= 0 || v > 100 {
		return 90
	}
	return v
}

// EmailChannelConfig holds SMTP alert delivery configuration
type EmailChannelConfig struct {
	Enabled    bool     `toml:"enabled"`
	Host       string   `toml:"host"`        // SMTP server host
	Port       int      `toml:"port"`        // SMTP server port (default: 587)
	Username   string   `toml:"username"`    // SMTP AUTH username (empty disables AUTH)
	Password   string   `toml:"password"`    // SMTP AUTH password
	From       string   `toml:"from"`        // Envelope and header sender
	Recipients []string `toml:"recipients"`  // Alert recipients
	StartTLS   bool     `toml:"starttls"`    // Use STARTTLS (default: true when port != 465)
	Severities []string `toml:"severities"`  // Severities this channel accepts (default: all)
}

// GetPort returns the SMTP port, default 587
func (e *EmailChannelConfig) GetPort() int {
	if e.Port <= 0 {
		return 587
	}
	return e.Port
}

// WebhookChannelConfig holds HTTP webhook alert delivery configuration
type WebhookChannelConfig struct {
	Enabled    bool     `toml:"enabled"`
	URL        string   `toml:"url"`         // Webhook endpoint
	AuthToken  string   `toml:"auth_token"`  // Bearer token (optional)
	Timeout    string   `toml:"timeout"`     // Request timeout (default: "30s")
	Severities []string `toml:"severities"`  // Severities this channel accepts (default: all)
}

// GetTimeout parses the webhook request timeout
func (w *WebhookChannelConfig) GetTimeout() (time.Duration, error) {
	if w.Timeout == "" {
		return 30 * time.Second, nil
	}
	return helpers.ParseDuration(w.Timeout)
}

// ChatChannelConfig holds chat webhook (Slack-compatible) alert delivery configuration
type ChatChannelConfig struct {
	Enabled    bool     `toml:"enabled"`
	WebhookURL string   `toml:"webhook_url"` // Incoming webhook URL
	Channel    string   `toml:"channel"`     // Channel override (optional)
	Timeout    string   `toml:"timeout"`     // Request timeout (default: "30s")
	Severities []string `toml:"severities"`  // Severities this channel accepts (default: all)
}

// GetTimeout parses the chat request timeout
func (c *ChatChannelConfig) GetTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 30 * time.Second, nil
	}
	return helpers.ParseDuration(c.Timeout)
}

// AlertingConfig holds multi-channel alert dispatch configuration
type AlertingConfig struct {
	Enabled          bool                 `toml:"enabled"` // Master switch for outbound alerting (default: true)
	Email            EmailChannelConfig   `toml:"email"`
	Webhook          WebhookChannelConfig `toml:"webhook"`
	Chat             ChatChannelConfig    `toml:"chat"`
	BreakerThreshold uint32               `toml:"breaker_threshold"` // Consecutive channel failures before its breaker opens (default: 3)
	BreakerTimeout   string               `toml:"breaker_timeout"`   // Channel breaker open duration (default: "60s")
}

// GetBreakerThreshold returns the channel breaker trip threshold, default 3
func (a *AlertingConfig) GetBreakerThreshold() uint32 {
	if a.BreakerThreshold == 0 {
		return 3
	}
	return a.BreakerThreshold
}

// GetBreakerTimeout parses the channel breaker open duration
func (a *AlertingConfig) GetBreakerTimeout() (time.Duration, error) {
	if a.BreakerTimeout == "" {
		return 60 * time.Second, nil
	}
	return helpers.ParseDuration(a.BreakerTimeout)
}

// StoreConfig holds the local archive database configuration
type StoreConfig struct {
	Enabled          bool   `toml:"enabled"`           // Persist resolved alerts and handled errors (default: true)
	Path             string `toml:"path"`              // SQLite file path (default: "/var/lib/dbvigil/archive.db")
	Retention        string `toml:"retention"`         // How long archived alerts/errors are kept (default: "90d")
	PruneInterval    string `toml:"prune_interval"`    // How often expired rows are pruned (default: "12h")
	MigrationTimeout string `toml:"migration_timeout"` // Timeout for schema migrations at startup (default: "2m")
}

// GetPath returns the archive path with a default
func (s *StoreConfig) GetPath() string {
	if s.Path == "" {
		return "/var/lib/dbvigil/archive.db"
	}
	return s.Path
}

// GetRetention parses the archive retention window
func (s *StoreConfig) GetRetention() (time.Duration, error) {
	if s.Retention == "" {
		return 90 * 24 * time.Hour, nil
	}
	return helpers.ParseDuration(s.Retention)
}

// GetPruneInterval parses the prune cycle interval
func (s *StoreConfig) GetPruneInterval() (time.Duration, error) {
	if s.PruneInterval == "" {
		return 12 * time.Hour, nil
	}
	return helpers.ParseDuration(s.PruneInterval)
}

// GetMigrationTimeout parses the migration timeout
func (s *StoreConfig) GetMigrationTimeout() (time.Duration, error) {
	if s.MigrationTimeout == "" {
		return 2 * time.Minute, nil
	}
	return helpers.ParseDuration(s.MigrationTimeout)
}

// APIConfig holds the HTTP API server configuration
type APIConfig struct {
	Start  bool   `toml:"start"`   // Start the HTTP API server (default: true)
	Addr   string `toml:"addr"`    // Listen address (default: ":8080")
	APIKey string `toml:"api_key"` // Bearer key required on every request (empty disables auth)
}

// GetAddr returns the listen address with a default
func (a *APIConfig) GetAddr() string {
	if a.Addr == "" {
		return ":8080"
	}
	return a.Addr
}

// Config holds all configuration for the application.
type Config struct {
	Logging        LoggingConfig       `toml:"logging"`
	Pool           PoolConfig          `toml:"pool"`
	Monitor        MonitorConfig       `toml:"monitor"`
	Recovery       RecoveryConfig      `toml:"recovery"`
	ErrorHandling  ErrorHandlingConfig `toml:"error_handling"`
	CircuitBreaker CircuitBreakerConfig `toml:"circuit_breaker"`
	Deadlock       DeadlockConfig      `toml:"deadlock"`
	SlowQuery      SlowQueryConfig     `toml:"slow_query"`
	Performance    PerformanceConfig   `toml:"performance"`
	Alerting       AlertingConfig      `toml:"alerting"`
	Store          StoreConfig         `toml:"store"`
	API            APIConfig           `toml:"api"`

	// Monitored database instances (top-level array of tables)
	Databases []MonitoredDatabaseConfig `toml:"database"`
}

// NewDefaultConfig creates a Config struct with default values.
func NewDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
		Pool: PoolConfig{
			HealthCheckInterval: "30s",
			AcquireTimeout:      "10s",
			QueryTimeout:        "30s",
			TargetUtilization:   0.75,
		},
		Monitor: MonitorConfig{
			Enabled:         true,
			MetricsInterval: "30s",
			AlertInterval:   "10s",
			HistoryLimit:    2880,
			Thresholds: []ThresholdConfig{
				{Metric: "connection_usage_percent", Warning: 70, Critical: 85, Frequency: "5m"},
				{Metric: "average_query_time_ms", Warning: 500, Critical: 2000, Frequency: "5m"},
				{Metric: "slow_queries_per_minute", Warning: 5, Critical: 20, Frequency: "5m"},
				{Metric: "replication_lag_seconds", Warning: 10, Critical: 60, Frequency: "5m"},
				{Metric: "cpu_usage_percent", Warning: 80, Critical: 95, Frequency: "5m", Duration: "1m"},
				{Metric: "memory_usage_percent", Warning: 80, Critical: 95, Frequency: "5m", Duration: "1m"},
				{Metric: "disk_usage_percent", Warning: 80, Critical: 90, Frequency: "15m"},
				{Metric: "cache_hit_ratio_percent", Warning: 90, Critical: 80, Frequency: "15m"},
			},
		},
		Recovery: RecoveryConfig{
			Enabled:             true,
			MaxActions:          3,
			Window:              "10m",
			IdleConnectionAge:   "10m",
			LongRunningQueryAge: "5m",
		},
		ErrorHandling: ErrorHandlingConfig{
			MaxRetryAttempts:      3,
			RetryBaseDelay:        "100ms",
			RetryMaxDelay:         "5s",
			CircuitErrorThreshold: 10,
			CircuitErrorWindow:    "5m",
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  "60s",
		},
		Deadlock: DeadlockConfig{
			HistorySize: 1000,
		},
		SlowQuery: SlowQueryConfig{
			MaxEntries: 500,
		},
		Performance: PerformanceConfig{
			Enabled:              true,
			Interval:             "60s",
			DegradationThreshold: 0.15,
			BaselineMinSamples:   50,
			BaselineWindowStart:  "24h",
			BaselineWindowEnd:    "48h",
			MetricsRetention:     "7d",
			RegressionRetention:  "30d",
			TrendWindow:          "24h",
			ProjectionDays:       30,
			CPUCritical:          90,
			MemoryCritical:       90,
			DiskCritical:         90,
			ConnectionsCritical:  90,
		},
		Alerting: AlertingConfig{
			Enabled: true,
			Email: EmailChannelConfig{
				Port:     587,
				StartTLS: true,
			},
			Webhook: WebhookChannelConfig{
				Timeout: "30s",
			},
			Chat: ChatChannelConfig{
				Timeout: "30s",
			},
			BreakerThreshold: 3,
			BreakerTimeout:   "60s",
		},
		Store: StoreConfig{
			Enabled:          true,
			Path:             "/var/lib/dbvigil/archive.db",
			Retention:        "90d",
			PruneInterval:    "12h",
			MigrationTimeout: "2m",
		},
		API: APIConfig{
			Start: true,
			Addr:  ":8080",
		},
	}
}

var validSeverities = map[string]bool{
	"info": true, "low": true, "medium": true, "warning": true,
	"high": true, "critical": true,
}

// Validate checks the configuration for inconsistencies that would make the
// process misbehave at runtime. It is called once after loading.
func (c *Config) Validate() error {
	if len(c.Databases) == 0 {
		return fmt.Errorf("no [[database]] sections configured")
	}

	seen := make(map[string]bool, len(c.Databases))
	for i := range c.Databases {
		dbCfg := &c.Databases[i]
		if dbCfg.Alias == "" {
			return fmt.Errorf("database #%d: alias is required", i+1)
		}
		if seen[dbCfg.Alias] {
			return fmt.Errorf("database alias %q is configured twice", dbCfg.Alias)
		}
		seen[dbCfg.Alias] = true

		if dbCfg.Write == nil {
			return fmt.Errorf("database %q: [database.write] endpoint is required", dbCfg.Alias)
		}
		if err := validateEndpoint(dbCfg.Alias, "write", dbCfg.Write); err != nil {
			return err
		}
		if dbCfg.Read != nil {
			if err := validateEndpoint(dbCfg.Alias, "read", dbCfg.Read); err != nil {
				return err
			}
		}
		if dbCfg.MaxOverflow < 0 {
			return fmt.Errorf("database %q: max_overflow must not be negative", dbCfg.Alias)
		}
	}

	for i := range c.Monitor.Thresholds {
		t := &c.Monitor.Thresholds[i]
		if t.Metric == "" {
			return fmt.Errorf("threshold #%d: metric is required", i+1)
		}
		if _, err := t.GetFrequency(); err != nil {
			return fmt.Errorf("threshold %q: invalid frequency: %w", t.Metric, err)
		}
		if _, err := t.GetDuration(); err != nil {
			return fmt.Errorf("threshold %q: invalid duration: %w", t.Metric, err)
		}
	}

	if c.Alerting.Email.Enabled {
		if c.Alerting.Email.Host == "" {
			return fmt.Errorf("alerting.email: host is required when enabled")
		}
		if c.Alerting.Email.From == "" {
			return fmt.Errorf("alerting.email: from is required when enabled")
		}
		if len(c.Alerting.Email.Recipients) == 0 {
			return fmt.Errorf("alerting.email: at least one recipient is required when enabled")
		}
	}
	if c.Alerting.Webhook.Enabled && c.Alerting.Webhook.URL == "" {
		return fmt.Errorf("alerting.webhook: url is required when enabled")
	}
	if c.Alerting.Chat.Enabled && c.Alerting.Chat.WebhookURL == "" {
		return fmt.Errorf("alerting.chat: webhook_url is required when enabled")
	}
	for _, sevs := range [][]string{
		c.Alerting.Email.Severities,
		c.Alerting.Webhook.Severities,
		c.Alerting.Chat.Severities,
	} {
		for _, s := range sevs {
			if !validSeverities[strings.ToLower(s)] {
				return fmt.Errorf("invalid alert severity %q", s)
			}
		}
	}

	durationChecks := []struct {
		name string
		fn   func() (time.Duration, error)
	}{
		{"pool.health_check_interval", c.Pool.GetHealthCheckInterval},
		{"pool.acquire_timeout", c.Pool.GetAcquireTimeout},
		{"pool.query_timeout", c.Pool.GetQueryTimeout},
		{"monitor.metrics_interval", c.Monitor.GetMetricsInterval},
		{"monitor.alert_interval", c.Monitor.GetAlertInterval},
		{"recovery.window", c.Recovery.GetWindow},
		{"recovery.idle_connection_age", c.Recovery.GetIdleConnectionAge},
		{"recovery.long_running_query_age", c.Recovery.GetLongRunningQueryAge},
		{"error_handling.retry_base_delay", c.ErrorHandling.GetRetryBaseDelay},
		{"error_handling.retry_max_delay", c.ErrorHandling.GetRetryMaxDelay},
		{"error_handling.circuit_error_window", c.ErrorHandling.GetCircuitErrorWindow},
		{"circuit_breaker.recovery_timeout", c.CircuitBreaker.GetRecoveryTimeout},
		{"slow_query.threshold", c.SlowQuery.GetThreshold},
		{"performance.interval", c.Performance.GetInterval},
		{"performance.baseline_window_start", c.Performance.GetBaselineWindowStart},
		{"performance.baseline_window_end", c.Performance.GetBaselineWindowEnd},
		{"performance.metrics_retention", c.Performance.GetMetricsRetention},
		{"performance.regression_retention", c.Performance.GetRegressionRetention},
		{"performance.trend_window", c.Performance.GetTrendWindow},
		{"store.retention", c.Store.GetRetention},
		{"store.prune_interval", c.Store.GetPruneInterval},
		{"store.migration_timeout", c.Store.GetMigrationTimeout},
		{"alerting.breaker_timeout", c.Alerting.GetBreakerTimeout},
		{"alerting.webhook.timeout", c.Alerting.Webhook.GetTimeout},
		{"alerting.chat.timeout", c.Alerting.Chat.GetTimeout},
	}
	for _, check := range durationChecks {
		if _, err := check.fn(); err != nil {
			return fmt.Errorf("%s: %w", check.name, err)
		}
	}

	start, _ := c.Performance.GetBaselineWindowStart()
	end, _ := c.Performance.GetBaselineWindowEnd()
	if end <= start {
		return fmt.Errorf("performance: baseline_window_end must be greater than baseline_window_start")
	}

	return nil
}

func validateEndpoint(alias, role string, e *DatabaseEndpointConfig) error {
	if len(e.Hosts) == 0 {
		return fmt.Errorf("database %q: %s endpoint needs at least one host", alias, role)
	}
	if e.Name == "" {
		return fmt.Errorf("database %q: %s endpoint needs a database name", alias, role)
	}
	if e.User == "" {
		return fmt.Errorf("database %q: %s endpoint needs a user", alias, role)
	}
	if _, err := e.GetPort(); err != nil {
		return fmt.Errorf("database %q: %s endpoint: %w", alias, role, err)
	}
	if e.MinConns > e.MaxConns && e.MaxConns > 0 {
		return fmt.Errorf("database %q: %s endpoint: min_conns exceeds max_conns", alias, role)
	}
	for _, check := range []func() (time.Duration, error){
		e.GetMaxConnLifetime, e.GetMaxConnIdleTime, e.GetQueryTimeout,
	} {
		if _, err := check(); err != nil {
			return fmt.Errorf("database %q: %s endpoint: %w", alias, role, err)
		}
	}
	return nil
}
