package perfmon

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/alerting"
	"github.com/dbvigil/dbvigil/pkg/metrics"
	"github.com/dbvigil/dbvigil/pkg/monitor"
	"github.com/dbvigil/dbvigil/pkg/sqlanalyze"
)

// Source supplies the latest metrics snapshot per database. Implemented by
// the database monitor.
type Source interface {
	CurrentAll() map[string]*monitor.DatabaseMetrics
}

// Sink receives regression and capacity alerts.
type Sink interface {
	Send(ctx context.Context, alert *alerting.Alert) error
}

// regressionCooldown suppresses repeat regression records for the same
// (database, metric) unless the severity worsened.
const regressionCooldown = time.Hour

// systemRecCooldown suppresses repeat system recommendations per
// (database, resource).
const systemRecCooldown = time.Hour

const recommendationRetention = 30 * 24 * time.Hour

// Monitor runs the periodic performance-analysis cycle.
type Monitor struct {
	cfg      config.PerformanceConfig
	source   Source
	analyzer *sqlanalyze.Analyzer
	sink     Sink
	enabled  atomic.Bool

	mu             sync.Mutex
	history        map[string][]sample // "database|metric"
	baselines      map[string]*Baseline
	regressions    []Regression
	lastRegression map[string]RegressionSeverity
	lastRegressAt  map[string]time.Time
	queryRecs      map[string]QueryRecommendation // "database|hash"
	systemRecs     []SystemRecommendation
	lastSystemRec  map[string]time.Time // "database|resource"
	capacityRecs   map[string]CapacityRecommendation
}

func NewMonitor(cfg config.PerformanceConfig, source Source, analyzer *sqlanalyze.Analyzer, sink Sink) *Monitor {
	m := &Monitor{
		cfg:            cfg,
		source:         source,
		analyzer:       analyzer,
		sink:           sink,
		history:        make(map[string][]sample),
		baselines:      make(map[string]*Baseline),
		lastRegression: make(map[string]RegressionSeverity),
		lastRegressAt:  make(map[string]time.Time),
		queryRecs:      make(map[string]QueryRecommendation),
		lastSystemRec:  make(map[string]time.Time),
		capacityRecs:   make(map[string]CapacityRecommendation),
	}
	m.enabled.Store(cfg.Enabled)
	return m
}

func (m *Monitor) SetEnabled(on bool) { m.enabled.Store(on) }
func (m *Monitor) Enabled() bool      { return m.enabled.Load() }

// Start launches the analysis loop.
func (m *Monitor) Start(ctx context.Context, wg *sync.WaitGroup) {
	interval, err := m.cfg.GetInterval()
	if err != nil {
		interval = time.Minute
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Performance analysis loop started", "interval", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("Performance analysis loop stopped")
				return
			case <-ticker.C:
				m.RunCycle(ctx, time.Now())
			}
		}
	}()
}

// RunCycle executes one full analysis pass: sample intake, baseline
// computation, regression detection, recommendations, capacity projection,
// and retention pruning.
func (m *Monitor) RunCycle(ctx context.Context, now time.Time) {
	if !m.enabled.Load() {
		return
	}
	snapshots := m.source.CurrentAll()

	m.mu.Lock()
	for database, snap := range snapshots {
		if snap.Status == monitor.StatusUnreachable {
			continue
		}
		for _, metric := range trackedMetrics {
			value, ok := snap.MetricValue(metric)
			if !ok {
				continue
			}
			key := database + "|" + metric
			m.history[key] = append(m.history[key], sample{at: now, value: value})
		}
	}
	m.computeBaselines(now)
	alerts := m.detectRegressions(now)
	m.prune(now)
	m.mu.Unlock()

	m.updateQueryRecommendations(now)
	m.updateSystemRecommendations(snapshots, now)
	capacityAlerts := m.projectCapacity(now)

	for _, a := range append(alerts, capacityAlerts...) {
		if m.sink == nil {
			break
		}
		if err := m.sink.Send(ctx, a); err != nil {
			logger.Warn("Performance alert delivery failed",
				"database", a.Database, "metric", a.Metric, "error", err)
		}
	}
}

// computeBaselines establishes a baseline for every key that has none and
// enough samples in the stable window. Caller holds the lock.
func (m *Monitor) computeBaselines(now time.Time) {
	windowStart, err := m.cfg.GetBaselineWindowStart()
	if err != nil {
		windowStart = 24 * time.Hour
	}
	windowEnd, err := m.cfg.GetBaselineWindowEnd()
	if err != nil {
		windowEnd = 48 * time.Hour
	}
	minSamples := m.cfg.GetBaselineMinSamples()

	for key, samples := range m.history {
		if _, ok := m.baselines[key]; ok {
			continue
		}
		var window []float64
		for _, s := range samples {
			age := now.Sub(s.at)
			if age >= windowStart && age <= windowEnd {
				window = append(window, s.value)
			}
		}
		if len(window) < minSamples {
			continue
		}
		avg := mean(window)
		ci := confidenceInterval95(window, avg)
		database, metric, _ := splitKey(key)
		m.baselines[key] = &Baseline{
			Database:       database,
			Metric:         metric,
			Mean:           avg,
			ConfidenceLow:  avg - ci,
			ConfidenceHigh: avg + ci,
			SampleCount:    len(window),
			ComputedAt:     now,
		}
		metrics.BaselinesEstablished.WithLabelValues(database).Set(float64(m.baselineCount(database)))
		logger.Info("Performance baseline established",
			"database", database, "metric", metric,
			"mean", avg, "samples", len(window))
	}
}

// detectRegressions compares the recent window against each baseline and
// records degradations. Returns alerts to dispatch after the lock is
// released. Caller holds the lock.
func (m *Monitor) detectRegressions(now time.Time) []*alerting.Alert {
	threshold := m.cfg.GetDegradationThreshold() * 100
	var alerts []*alerting.Alert

	for key, baseline := range m.baselines {
		samples := m.history[key]
		if len(samples) < 10 {
			continue
		}
		recent := samples[len(samples)-10:]
		values := make([]float64, len(recent))
		for i, s := range recent {
			values[i] = s.value
		}
		current := mean(values)
		deviation := deviationPercent(baseline.Metric, baseline.Mean, current)
		if deviation <= threshold {
			continue
		}
		severity := classifyRegression(deviation)
		if last, ok := m.lastRegression[key]; ok {
			if !severityWorse(severity, last) && now.Sub(m.lastRegressAt[key]) < regressionCooldown {
				continue
			}
		}

		reg := Regression{
			ID:               uuid.NewString(),
			Database:         baseline.Database,
			Metric:           baseline.Metric,
			BaselineValue:    baseline.Mean,
			CurrentValue:     current,
			DeviationPercent: deviation,
			Severity:         severity,
			CandidateCauses:  causesFor(baseline.Metric),
			Timestamp:        now,
		}
		m.regressions = append(m.regressions, reg)
		m.lastRegression[key] = severity
		m.lastRegressAt[key] = now
		metrics.RegressionsDetectedTotal.WithLabelValues(reg.Database, string(severity)).Inc()
		logger.Warn("Performance regression detected",
			"database", reg.Database, "metric", reg.Metric,
			"baseline", baseline.Mean, "current", current,
			"deviation_percent", deviation, "severity", severity)

		if severity == RegressionMajor || severity == RegressionCritical {
			alertSeverity := "high"
			if severity == RegressionCritical {
				alertSeverity = "critical"
			}
			alerts = append(alerts, &alerting.Alert{
				ID:       reg.ID,
				Database: reg.Database,
				Metric:   reg.Metric,
				Severity: alertSeverity,
				Message: fmt.Sprintf("%s regressed %.1f%% against baseline %.2f (now %.2f)",
					reg.Metric, deviation, baseline.Mean, current),
				CurrentValue:   current,
				ThresholdValue: baseline.Mean,
				Timestamp:      now,
			})
		}
	}
	return alerts
}

// severityWorse reports whether a outranks b.
func severityWorse(a, b RegressionSeverity) bool {
	return regressionRank(a) > regressionRank(b)
}

func regressionRank(s RegressionSeverity) int {
	switch s {
	case RegressionCritical:
		return 3
	case RegressionMajor:
		return 2
	case RegressionModerate:
		return 1
	default:
		return 0
	}
}

// prune enforces the retention cutoffs. Caller holds the lock.
func (m *Monitor) prune(now time.Time) {
	metricsRetention, err := m.cfg.GetMetricsRetention()
	if err != nil {
		metricsRetention = 7 * 24 * time.Hour
	}
	cutoff := now.Add(-metricsRetention)
	for key, samples := range m.history {
		kept := samples[:0]
		for _, s := range samples {
			if s.at.After(cutoff) {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(m.history, key)
			continue
		}
		m.history[key] = kept
	}

	regRetention, err := m.cfg.GetRegressionRetention()
	if err != nil {
		regRetention = 30 * 24 * time.Hour
	}
	regCutoff := now.Add(-regRetention)
	keptRegs := m.regressions[:0]
	for _, r := range m.regressions {
		if r.Timestamp.After(regCutoff) {
			keptRegs = append(keptRegs, r)
		}
	}
	m.regressions = keptRegs

	recCutoff := now.Add(-recommendationRetention)
	for key, rec := range m.queryRecs {
		if !rec.Timestamp.After(recCutoff) {
			delete(m.queryRecs, key)
		}
	}
	keptSys := m.systemRecs[:0]
	for _, r := range m.systemRecs {
		if r.Timestamp.After(recCutoff) {
			keptSys = append(keptSys, r)
		}
	}
	m.systemRecs = keptSys
}

// ResetBaseline discards the baseline for a (database, metric) so the next
// cycles recompute it from a fresh stable window.
func (m *Monitor) ResetBaseline(database, metric string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := database + "|" + metric
	if _, ok := m.baselines[key]; !ok {
		return false
	}
	delete(m.baselines, key)
	delete(m.lastRegression, key)
	delete(m.lastRegressAt, key)
	metrics.BaselinesEstablished.WithLabelValues(database).Set(float64(m.baselineCount(database)))
	logger.Info("Performance baseline reset", "database", database, "metric", metric)
	return true
}

// baselineCount counts baselines for a database. Caller holds the lock.
func (m *Monitor) baselineCount(database string) int {
	n := 0
	for _, b := range m.baselines {
		if b.Database == database {
			n++
		}
	}
	return n
}

// Baselines returns the established baselines.
func (m *Monitor) Baselines() []Baseline {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Baseline, 0, len(m.baselines))
	for _, b := range m.baselines {
		out = append(out, *b)
	}
	return out
}

// Regressions returns up to limit most recent regressions, newest first.
func (m *Monitor) Regressions(limit int) []Regression {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.regressions)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Regression, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.regressions[i])
	}
	return out
}
