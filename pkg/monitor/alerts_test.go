package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/db"
)

type fakeSink struct {
	mu          sync.Mutex
	sent        []*Alert
	resolutions []*Alert
}

func (f *fakeSink) Send(_ context.Context, alert *Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, alert)
	return nil
}

func (f *fakeSink) SendResolution(_ context.Context, alert *Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolutions = append(f.resolutions, alert)
	return nil
}

type fakeIntrospector struct {
	idle       []db.Backend
	longOnes   []db.Backend
	terminated []int
	cancelled  []int
	statResets int
}

func (f *fakeIntrospector) ConnectionStats(context.Context) (db.ConnectionStats, error) {
	return db.ConnectionStats{}, nil
}

func (f *fakeIntrospector) LongRunningQueries(context.Context, time.Duration) ([]db.Backend, error) {
	return f.longOnes, nil
}

func (f *fakeIntrospector) IdleBackends(context.Context, time.Duration) ([]db.Backend, error) {
	return f.idle, nil
}

func (f *fakeIntrospector) EngineStats(context.Context) (db.EngineStats, error) {
	return db.EngineStats{}, nil
}

func (f *fakeIntrospector) ReplicationLag(context.Context) (time.Duration, bool, error) {
	return 0, false, nil
}

func (f *fakeIntrospector) TerminateBackend(_ context.Context, pid int) (bool, error) {
	f.terminated = append(f.terminated, pid)
	return true, nil
}

func (f *fakeIntrospector) CancelBackend(_ context.Context, pid int) (bool, error) {
	f.cancelled = append(f.cancelled, pid)
	return true, nil
}

func (f *fakeIntrospector) ResetEngineStats(context.Context) error {
	f.statResets++
	return nil
}

type fakeProvider struct {
	introspector *fakeIntrospector
}

func (f *fakeProvider) Introspector(string) (db.Introspector, error) {
	return f.introspector, nil
}

type staticCollector struct{}

func (staticCollector) Collect(_ context.Context, database string) (*DatabaseMetrics, error) {
	m := healthySnapshot()
	m.Database = database
	m.Timestamp = time.Now()
	return m, nil
}

func testMonitor(t *testing.T, thresholds []config.ThresholdConfig, sink AlertSink, provider IntrospectorProvider) *Monitor {
	t.Helper()
	cfg := config.MonitorConfig{
		Enabled:         true,
		MetricsInterval: "30s",
		AlertInterval:   "10s",
		HistoryLimit:    100,
		Thresholds:      thresholds,
	}
	recoveryCfg := config.RecoveryConfig{Enabled: true, MaxActions: 3, Window: "10m"}
	return NewMonitor(cfg, recoveryCfg, []string{"orders"}, staticCollector{}, sink, provider)
}

func connectionThreshold() []config.ThresholdConfig {
	return []config.ThresholdConfig{
		{Metric: "connection_usage_percent", Warning: 70, Critical: 85, Frequency: "5m"},
	}
}

func breachedSnapshot(usage float64) *DatabaseMetrics {
	m := healthySnapshot()
	m.Connections.UsagePercent = usage
	m.Timestamp = time.Now()
	m.HealthScore = computeHealthScore(m)
	m.Status = deriveStatus(m)
	return m
}

func TestAlertCreatedOncePerKey(t *testing.T) {
	sink := &fakeSink{}
	m := testMonitor(t, connectionThreshold(), sink, nil)
	ctx := context.Background()

	m.append(breachedSnapshot(75))
	now := time.Now()
	m.evaluateThresholds(ctx, now)
	m.evaluateThresholds(ctx, now.Add(time.Minute))

	active := m.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, SeverityWarning, active[0].Severity)
	assert.Equal(t, "connection_usage_percent", active[0].Metric)
	assert.Len(t, sink.sent, 1)
}

func TestAlertResolvedExactlyOnce(t *testing.T) {
	sink := &fakeSink{}
	m := testMonitor(t, connectionThreshold(), sink, nil)
	ctx := context.Background()

	m.append(breachedSnapshot(75))
	now := time.Now()
	m.evaluateThresholds(ctx, now)
	require.Len(t, m.ActiveAlerts(), 1)

	m.append(breachedSnapshot(40))
	m.evaluateThresholds(ctx, now.Add(time.Minute))
	m.evaluateThresholds(ctx, now.Add(2*time.Minute))

	assert.Empty(t, m.ActiveAlerts())
	require.Len(t, sink.resolutions, 1)
	assert.True(t, sink.resolutions[0].Resolved)
	assert.NotNil(t, sink.resolutions[0].ResolvedAt)

	history := m.AlertHistory(0)
	require.Len(t, history, 1)
}

func TestAlertEscalatesWarningToCritical(t *testing.T) {
	sink := &fakeSink{}
	m := testMonitor(t, connectionThreshold(), sink, nil)
	ctx := context.Background()

	m.append(breachedSnapshot(75))
	now := time.Now()
	m.evaluateThresholds(ctx, now)

	m.append(breachedSnapshot(92))
	m.evaluateThresholds(ctx, now.Add(time.Minute))

	active := m.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, SeverityCritical, active[0].Severity)
	assert.True(t, active[0].Escalated)
	assert.Len(t, sink.sent, 2)
}

func TestSustainedBreachDurationGate(t *testing.T) {
	thresholds := []config.ThresholdConfig{
		{Metric: "connection_usage_percent", Warning: 70, Critical: 85, Frequency: "5m", Duration: "1m"},
	}
	sink := &fakeSink{}
	m := testMonitor(t, thresholds, sink, nil)
	ctx := context.Background()

	m.append(breachedSnapshot(75))
	now := time.Now()
	m.evaluateThresholds(ctx, now)
	assert.Empty(t, m.ActiveAlerts())

	m.evaluateThresholds(ctx, now.Add(30*time.Second))
	assert.Empty(t, m.ActiveAlerts())

	m.evaluateThresholds(ctx, now.Add(2*time.Minute))
	assert.Len(t, m.ActiveAlerts(), 1)
}

func TestReAlertFrequencyGate(t *testing.T) {
	sink := &fakeSink{}
	m := testMonitor(t, connectionThreshold(), sink, nil)
	ctx := context.Background()

	now := time.Now()
	m.append(breachedSnapshot(75))
	m.evaluateThresholds(ctx, now)
	m.append(breachedSnapshot(40))
	m.evaluateThresholds(ctx, now.Add(time.Minute))
	require.Empty(t, m.ActiveAlerts())

	// Re-breach inside the 5m frequency window stays quiet.
	m.append(breachedSnapshot(75))
	m.evaluateThresholds(ctx, now.Add(2*time.Minute))
	assert.Empty(t, m.ActiveAlerts())

	// After the window it alerts again.
	m.evaluateThresholds(ctx, now.Add(6*time.Minute))
	assert.Len(t, m.ActiveAlerts(), 1)
}

func TestInvertedThresholdCacheHitRatio(t *testing.T) {
	thresholds := []config.ThresholdConfig{
		{Metric: "cache_hit_ratio_percent", Warning: 90, Critical: 80, Frequency: "5m"},
	}
	sink := &fakeSink{}
	m := testMonitor(t, thresholds, sink, nil)
	ctx := context.Background()

	snapshot := healthySnapshot()
	snapshot.Engine.CacheHitRatioPercent = 75
	snapshot.Timestamp = time.Now()
	m.append(snapshot)

	m.evaluateThresholds(ctx, time.Now())
	active := m.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, SeverityCritical, active[0].Severity)
}

func TestAlertingDisabledProducesNoAlerts(t *testing.T) {
	sink := &fakeSink{}
	m := testMonitor(t, connectionThreshold(), sink, nil)
	m.SetAlertingEnabled(false)

	m.append(breachedSnapshot(95))
	m.evaluateThresholds(context.Background(), time.Now())
	assert.Empty(t, m.ActiveAlerts())
	assert.Empty(t, sink.sent)
}

func TestCriticalAlertTriggersIdleConnectionRecovery(t *testing.T) {
	introspector := &fakeIntrospector{
		idle: []db.Backend{{PID: 101}, {PID: 102}},
	}
	sink := &fakeSink{}
	m := testMonitor(t, connectionThreshold(), sink, &fakeProvider{introspector: introspector})
	ctx := context.Background()

	m.append(breachedSnapshot(95))
	m.evaluateThresholds(ctx, time.Now())

	assert.Equal(t, []int{101, 102}, introspector.terminated)
}

func TestWarningAlertDoesNotTriggerRecovery(t *testing.T) {
	introspector := &fakeIntrospector{idle: []db.Backend{{PID: 101}}}
	sink := &fakeSink{}
	m := testMonitor(t, connectionThreshold(), sink, &fakeProvider{introspector: introspector})

	m.append(breachedSnapshot(75))
	m.evaluateThresholds(context.Background(), time.Now())

	assert.Empty(t, introspector.terminated)
}

func TestRecoveryRateLimit(t *testing.T) {
	introspector := &fakeIntrospector{idle: []db.Backend{{PID: 101}}}
	r := newRecoveryExecutor(config.RecoveryConfig{Enabled: true, MaxActions: 2, Window: "10m"},
		&fakeProvider{introspector: introspector})
	ctx := context.Background()

	alert := &Alert{Database: "orders", Metric: "connection_usage_percent", Severity: SeverityCritical}
	r.run(ctx, alert)
	r.run(ctx, alert)
	r.run(ctx, alert)

	// Two allowed actions, the third is rate limited.
	assert.Len(t, introspector.terminated, 2)
}

func TestRecoveryDisabled(t *testing.T) {
	introspector := &fakeIntrospector{idle: []db.Backend{{PID: 101}}}
	r := newRecoveryExecutor(config.RecoveryConfig{Enabled: false},
		&fakeProvider{introspector: introspector})

	r.run(context.Background(), &Alert{Database: "orders", Metric: "connection_usage_percent"})
	assert.Empty(t, introspector.terminated)
}

func TestReplicationLagIsManualOnly(t *testing.T) {
	introspector := &fakeIntrospector{idle: []db.Backend{{PID: 101}}}
	r := newRecoveryExecutor(config.RecoveryConfig{Enabled: true},
		&fakeProvider{introspector: introspector})

	r.run(context.Background(), &Alert{Database: "orders", Metric: "replication_lag_seconds"})
	assert.Empty(t, introspector.terminated)
	assert.Empty(t, introspector.cancelled)
}

func TestHistoryBoundedByLimit(t *testing.T) {
	m := testMonitor(t, nil, nil, nil)
	for i := 0; i < 150; i++ {
		m.append(breachedSnapshot(10))
	}
	assert.Len(t, m.History("orders", 0), 100)
}
