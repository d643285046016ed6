package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/metrics"
)

func alertKey(database, metric string) string {
	return database + "|" + metric
}

// evaluateThresholds runs one alert loop pass: every configured threshold
// against every database's latest snapshot.
func (m *Monitor) evaluateThresholds(ctx context.Context, now time.Time) {
	if !m.alertingEnabled.Load() {
		return
	}

	latest := m.CurrentAll()
	thresholds := m.Thresholds()

	for database, snapshot := range latest {
		if snapshot.Status == StatusUnreachable {
			continue
		}
		for _, threshold := range thresholds {
			m.evaluateOne(ctx, database, snapshot, threshold, now)
		}
	}
}

func (m *Monitor) evaluateOne(ctx context.Context, database string, snapshot *DatabaseMetrics, threshold config.ThresholdConfig, now time.Time) {
	value, ok := snapshot.MetricValue(threshold.Metric)
	if !ok {
		return
	}

	severity, thresholdValue, breached := classifyBreach(value, threshold)
	key := alertKey(database, threshold.Metric)

	if !breached {
		m.clearBreach(key)
		m.resolveActive(ctx, key, value, now)
		return
	}

	// The breach must persist for the configured duration before alerting.
	minDuration, err := threshold.GetDuration()
	if err != nil {
		minDuration = 0
	}
	if !m.breachSustained(key, now, minDuration) {
		return
	}

	m.mu.Lock()
	if active, exists := m.active[key]; exists {
		// Escalate an active warning that crossed into critical.
		if severity == SeverityCritical && active.Severity == SeverityWarning {
			active.Severity = SeverityCritical
			active.Escalated = true
			active.CurrentValue = value
			active.ThresholdValue = thresholdValue
			active.Message = breachMessage(database, threshold.Metric, value, thresholdValue, SeverityCritical)
			m.mu.Unlock()
			metrics.AlertsActiveCurrent.WithLabelValues(string(SeverityWarning)).Dec()
			metrics.AlertsActiveCurrent.WithLabelValues(string(SeverityCritical)).Inc()
			logger.Warn("Alert escalated", "database", database, "metric", threshold.Metric, "value", value)
			m.dispatch(ctx, active)
			m.maybeRecover(ctx, active)
			return
		}
		m.mu.Unlock()
		return
	}

	frequency, err := threshold.GetFrequency()
	if err != nil {
		frequency = 5 * time.Minute
	}
	if last, ok := m.lastAlertAt[key]; ok && now.Sub(last) < frequency {
		m.mu.Unlock()
		return
	}

	alert := &Alert{
		ID:             uuid.New().String(),
		Database:       database,
		Metric:         threshold.Metric,
		CurrentValue:   value,
		ThresholdValue: thresholdValue,
		Severity:       severity,
		Message:        breachMessage(database, threshold.Metric, value, thresholdValue, severity),
		Timestamp:      now,
	}
	m.active[key] = alert
	m.lastAlertAt[key] = now
	m.mu.Unlock()

	metrics.AlertsTotal.WithLabelValues(database, string(severity)).Inc()
	metrics.AlertsActiveCurrent.WithLabelValues(string(severity)).Inc()
	logger.Warn("Alert created", "database", database, "metric", threshold.Metric,
		"severity", severity, "value", value, "threshold", thresholdValue)

	m.dispatch(ctx, alert)
	m.maybeRecover(ctx, alert)
}

// classifyBreach compares a value against the threshold pair, honoring
// inverted metrics where lower values are worse.
func classifyBreach(value float64, threshold config.ThresholdConfig) (AlertSeverity, float64, bool) {
	if lowerIsWorse[threshold.Metric] {
		switch {
		case value < threshold.Critical:
			return SeverityCritical, threshold.Critical, true
		case value < threshold.Warning:
			return SeverityWarning, threshold.Warning, true
		}
		return "", 0, false
	}

	switch {
	case value > threshold.Critical:
		return SeverityCritical, threshold.Critical, true
	case value > threshold.Warning:
		return SeverityWarning, threshold.Warning, true
	}
	return "", 0, false
}

func breachMessage(database, metric string, value, threshold float64, severity AlertSeverity) string {
	return fmt.Sprintf("%s: %s is %.2f (%s threshold %.2f)", database, metric, value, severity, threshold)
}

// breachSustained tracks when the breach began and reports whether it has
// lasted at least minDuration.
func (m *Monitor) breachSustained(key string, now time.Time, minDuration time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	since, ok := m.breachSince[key]
	if !ok {
		m.breachSince[key] = now
		since = now
	}
	return now.Sub(since) >= minDuration
}

func (m *Monitor) clearBreach(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breachSince, key)
}

// resolveActive resolves the active alert for the key exactly once.
func (m *Monitor) resolveActive(ctx context.Context, key string, value float64, now time.Time) {
	m.mu.Lock()
	alert, exists := m.active[key]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.active, key)
	alert.Resolved = true
	resolvedAt := now
	alert.ResolvedAt = &resolvedAt
	alert.CurrentValue = value

	m.alertHistory = append(m.alertHistory, alert)
	if len(m.alertHistory) > alertHistoryLimit {
		m.alertHistory = m.alertHistory[len(m.alertHistory)-alertHistoryLimit:]
	}
	m.mu.Unlock()

	metrics.AlertsActiveCurrent.WithLabelValues(string(alert.Severity)).Dec()
	logger.Info("Alert resolved", "database", alert.Database, "metric", alert.Metric, "value", value)

	if m.sink != nil {
		if err := m.sink.SendResolution(ctx, alert); err != nil {
			logger.Error("Resolution notification failed", "alert_id", alert.ID, "error", err)
		}
	}
}

func (m *Monitor) dispatch(ctx context.Context, alert *Alert) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Send(ctx, alert); err != nil {
		logger.Error("Alert dispatch failed", "alert_id", alert.ID, "error", err)
	}
}

func (m *Monitor) maybeRecover(ctx context.Context, alert *Alert) {
	if alert.Severity != SeverityCritical {
		return
	}
	m.recovery.run(ctx, alert)
}
