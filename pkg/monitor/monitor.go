package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/consts"
	"github.com/dbvigil/dbvigil/db"
	"github.com/dbvigil/dbvigil/logger"
)

// AlertSink receives created and resolved alerts. Implemented by the
// alerting dispatcher; tests use fakes.
type AlertSink interface {
	Send(ctx context.Context, alert *Alert) error
	SendResolution(ctx context.Context, alert *Alert) error
}

// IntrospectorProvider hands out the engine surface recovery actions run
// against.
type IntrospectorProvider interface {
	Introspector(database string) (db.Introspector, error)
}

const alertHistoryLimit = 1000

// Monitor owns the metrics and alert loops for all configured databases.
type Monitor struct {
	cfg       config.MonitorConfig
	databases []string
	collector Collector
	sink      AlertSink
	recovery  *recoveryExecutor

	monitoringEnabled atomic.Bool
	alertingEnabled   atomic.Bool

	mu           sync.RWMutex
	thresholds   map[string]config.ThresholdConfig
	history      map[string][]*DatabaseMetrics
	active       map[string]*Alert // keyed database|metric
	alertHistory []*Alert
	lastAlertAt  map[string]time.Time
	breachSince  map[string]time.Time
}

func NewMonitor(cfg config.MonitorConfig, recoveryCfg config.RecoveryConfig, databases []string,
	collector Collector, sink AlertSink, provider IntrospectorProvider) *Monitor {
	m := &Monitor{
		cfg:         cfg,
		databases:   databases,
		collector:   collector,
		sink:        sink,
		recovery:    newRecoveryExecutor(recoveryCfg, provider),
		thresholds:  make(map[string]config.ThresholdConfig),
		history:     make(map[string][]*DatabaseMetrics),
		active:      make(map[string]*Alert),
		lastAlertAt: make(map[string]time.Time),
		breachSince: make(map[string]time.Time),
	}
	for _, t := range cfg.Thresholds {
		m.thresholds[t.Metric] = t
	}
	m.monitoringEnabled.Store(cfg.Enabled)
	m.alertingEnabled.Store(cfg.Enabled)
	return m
}

// Start launches the metrics and alert loops. Both stop when ctx is
// cancelled and are joined through wg.
func (m *Monitor) Start(ctx context.Context, wg *sync.WaitGroup) error {
	metricsInterval, err := m.cfg.GetMetricsInterval()
	if err != nil {
		return err
	}
	alertInterval, err := m.cfg.GetAlertInterval()
	if err != nil {
		return err
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(metricsInterval)
		defer ticker.Stop()

		logger.Info("Monitor metrics loop started", "interval", metricsInterval)
		m.collectAll(ctx)
		for {
			select {
			case <-ctx.Done():
				logger.Info("Monitor metrics loop stopped")
				return
			case <-ticker.C:
				m.collectAll(ctx)
			}
		}
	}()

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(alertInterval)
		defer ticker.Stop()

		logger.Info("Monitor alert loop started", "interval", alertInterval)
		for {
			select {
			case <-ctx.Done():
				logger.Info("Monitor alert loop stopped")
				return
			case <-ticker.C:
				m.evaluateThresholds(ctx, time.Now())
			}
		}
	}()

	return nil
}

func (m *Monitor) collectAll(ctx context.Context) {
	if !m.monitoringEnabled.Load() {
		return
	}
	for _, database := range m.databases {
		snapshot, err := m.collector.Collect(ctx, database)
		if err != nil {
			logger.Error("Metric collection failed", "database", database, "error", err)
			continue
		}
		m.append(snapshot)
	}
}

func (m *Monitor) append(snapshot *DatabaseMetrics) {
	limit := m.cfg.GetHistoryLimit()

	m.mu.Lock()
	defer m.mu.Unlock()
	h := append(m.history[snapshot.Database], snapshot)
	if len(h) > limit {
		h = h[len(h)-limit:]
	}
	m.history[snapshot.Database] = h
}

// Current returns the latest snapshot for a database.
func (m *Monitor) Current(database string) (*DatabaseMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.history[database]
	if len(h) == 0 {
		return nil, consts.ErrDatabaseNotFound
	}
	return h[len(h)-1], nil
}

// CurrentAll returns the latest snapshot per database.
func (m *Monitor) CurrentAll() map[string]*DatabaseMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*DatabaseMetrics, len(m.history))
	for database, h := range m.history {
		if len(h) > 0 {
			out[database] = h[len(h)-1]
		}
	}
	return out
}

// History returns up to limit most recent snapshots, oldest first.
func (m *Monitor) History(database string, limit int) []*DatabaseMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.history[database]
	if limit <= 0 || limit > len(h) {
		limit = len(h)
	}
	out := make([]*DatabaseMetrics, limit)
	copy(out, h[len(h)-limit:])
	return out
}

// ActiveAlerts lists unresolved alerts.
func (m *Monitor) ActiveAlerts() []*Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Alert, 0, len(m.active))
	for _, a := range m.active {
		out = append(out, a)
	}
	return out
}

// AlertHistory lists resolved alerts, newest last.
func (m *Monitor) AlertHistory(limit int) []*Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.alertHistory) {
		limit = len(m.alertHistory)
	}
	out := make([]*Alert, limit)
	copy(out, m.alertHistory[len(m.alertHistory)-limit:])
	return out
}

// Thresholds returns the current threshold table.
func (m *Monitor) Thresholds() []config.ThresholdConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]config.ThresholdConfig, 0, len(m.thresholds))
	for _, t := range m.thresholds {
		out = append(out, t)
	}
	return out
}

// UpdateThreshold replaces or adds the threshold for one metric at runtime.
func (m *Monitor) UpdateThreshold(t config.ThresholdConfig) error {
	if _, err := t.GetFrequency(); err != nil {
		return err
	}
	if _, err := t.GetDuration(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds[t.Metric] = t
	logger.Info("Threshold updated", "metric", t.Metric, "warning", t.Warning, "critical", t.Critical)
	return nil
}

// Runtime switches

func (m *Monitor) SetMonitoringEnabled(enabled bool) {
	m.monitoringEnabled.Store(enabled)
	logger.Info("Monitoring toggled", "enabled", enabled)
}

func (m *Monitor) MonitoringEnabled() bool {
	return m.monitoringEnabled.Load()
}

func (m *Monitor) SetAlertingEnabled(enabled bool) {
	m.alertingEnabled.Store(enabled)
	logger.Info("Alerting toggled", "enabled", enabled)
}

func (m *Monitor) AlertingEnabled() bool {
	return m.alertingEnabled.Load()
}

func (m *Monitor) SetRecoveryEnabled(enabled bool) {
	m.recovery.setEnabled(enabled)
	logger.Info("Automatic recovery toggled", "enabled", enabled)
}

func (m *Monitor) RecoveryEnabled() bool {
	return m.recovery.enabled()
}
