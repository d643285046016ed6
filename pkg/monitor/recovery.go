package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/metrics"
)

// recoveryExecutor runs bounded automatic remediation for critical alerts.
// Actions are rate-limited per (database, action) pair.
type recoveryExecutor struct {
	cfg      config.RecoveryConfig
	provider IntrospectorProvider
	on       atomic.Bool

	mu      sync.Mutex
	actions map[string][]time.Time
}

func newRecoveryExecutor(cfg config.RecoveryConfig, provider IntrospectorProvider) *recoveryExecutor {
	r := &recoveryExecutor{
		cfg:      cfg,
		provider: provider,
		actions:  make(map[string][]time.Time),
	}
	r.on.Store(cfg.Enabled)
	return r
}

func (r *recoveryExecutor) setEnabled(enabled bool) {
	r.on.Store(enabled)
}

func (r *recoveryExecutor) enabled() bool {
	return r.on.Load()
}

// run picks the remediation matching the alert's metric. Replication lag and
// disk pressure are never auto-remediated.
func (r *recoveryExecutor) run(ctx context.Context, alert *Alert) {
	if !r.on.Load() || r.provider == nil {
		return
	}

	switch alert.Metric {
	case "connection_usage_percent":
		r.execute(ctx, alert.Database, "terminate_idle_connections", r.terminateIdleConnections)
	case "average_query_time_ms", "slow_queries_per_minute":
		r.execute(ctx, alert.Database, "cancel_long_running_queries", r.cancelLongRunningQueries)
	case "cache_hit_ratio_percent":
		r.execute(ctx, alert.Database, "reset_engine_stats", r.resetEngineStats)
	case "replication_lag_seconds", "disk_usage_percent":
		logger.Error("Manual intervention required",
			"database", alert.Database, "metric", alert.Metric, "value", alert.CurrentValue)
	default:
		logger.Warn("No automatic recovery for metric",
			"database", alert.Database, "metric", alert.Metric)
	}
}

func (r *recoveryExecutor) execute(ctx context.Context, database, action string, fn func(ctx context.Context, database string) error) {
	if !r.allow(database, action) {
		metrics.RecoveryActionsTotal.WithLabelValues(database, action, "rate_limited").Inc()
		logger.Warn("Recovery action rate limited", "database", database, "action", action)
		return
	}

	if err := fn(ctx, database); err != nil {
		metrics.RecoveryActionsTotal.WithLabelValues(database, action, "failure").Inc()
		logger.Error("Recovery action failed", "database", database, "action", action, "error", err)
		return
	}
	metrics.RecoveryActionsTotal.WithLabelValues(database, action, "success").Inc()
	logger.Info("Recovery action executed", "database", database, "action", action)
}

// allow enforces the per-(database, action) budget inside the rate window.
func (r *recoveryExecutor) allow(database, action string) bool {
	window, err := r.cfg.GetWindow()
	if err != nil {
		window = 10 * time.Minute
	}
	now := time.Now()
	cutoff := now.Add(-window)
	key := database + "|" + action

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.actions[key][:0]
	for _, ts := range r.actions[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= r.cfg.GetMaxActions() {
		r.actions[key] = kept
		return false
	}
	r.actions[key] = append(kept, now)
	return true
}

func (r *recoveryExecutor) terminateIdleConnections(ctx context.Context, database string) error {
	introspector, err := r.provider.Introspector(database)
	if err != nil {
		return err
	}

	idleAge, err := r.cfg.GetIdleConnectionAge()
	if err != nil {
		idleAge = 10 * time.Minute
	}
	backends, err := introspector.IdleBackends(ctx, idleAge)
	if err != nil {
		return err
	}

	for _, backend := range backends {
		ok, err := introspector.TerminateBackend(ctx, backend.PID)
		if err != nil {
			logger.Warn("Failed to terminate backend", "database", database, "pid", backend.PID, "error", err)
			continue
		}
		if ok {
			logger.Info("Terminated idle backend", "database", database, "pid", backend.PID,
				"idle_for", backend.Duration)
		}
	}
	return nil
}

func (r *recoveryExecutor) cancelLongRunningQueries(ctx context.Context, database string) error {
	introspector, err := r.provider.Introspector(database)
	if err != nil {
		return err
	}

	queryAge, err := r.cfg.GetLongRunningQueryAge()
	if err != nil {
		queryAge = 5 * time.Minute
	}
	backends, err := introspector.LongRunningQueries(ctx, queryAge)
	if err != nil {
		return err
	}

	for _, backend := range backends {
		ok, err := introspector.CancelBackend(ctx, backend.PID)
		if err != nil {
			logger.Warn("Failed to cancel backend", "database", database, "pid", backend.PID, "error", err)
			continue
		}
		if ok {
			logger.Info("Cancelled long-running query", "database", database, "pid", backend.PID,
				"running_for", backend.Duration)
		}
	}
	return nil
}

func (r *recoveryExecutor) resetEngineStats(ctx context.Context, database string) error {
	introspector, err := r.provider.Introspector(database)
	if err != nil {
		return err
	}
	return introspector.ResetEngineStats(ctx)
}
