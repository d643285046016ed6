package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/pkg/alerting"
	"github.com/dbvigil/dbvigil/pkg/circuitbreaker"
	"github.com/dbvigil/dbvigil/pkg/deadlock"
	"github.com/dbvigil/dbvigil/pkg/degradation"
	"github.com/dbvigil/dbvigil/pkg/errorhandler"
	"github.com/dbvigil/dbvigil/pkg/monitor"
	"github.com/dbvigil/dbvigil/pkg/perfmon"
	"github.com/dbvigil/dbvigil/pkg/pool"
	"github.com/dbvigil/dbvigil/pkg/sqlanalyze"
	"github.com/dbvigil/dbvigil/store"
)

type stubCollector struct{}

func (stubCollector) Collect(ctx context.Context, database string) (*monitor.DatabaseMetrics, error) {
	return &monitor.DatabaseMetrics{
		Database:  database,
		Timestamp: time.Now(),
		Connections: monitor.ConnectionMetrics{
			Total: 20, Active: 5, Idle: 15, MaxConnections: 100, UsagePercent: 20,
		},
		HealthScore: 95,
		Status:      monitor.StatusHealthy,
	}, nil
}

type nopSink struct{}

func (nopSink) Send(ctx context.Context, alert *monitor.Alert) error           { return nil }
func (nopSink) SendResolution(ctx context.Context, alert *monitor.Alert) error { return nil }

type fixture struct {
	server   *Server
	monitor  *monitor.Monitor
	alerts   *alerting.Dispatcher
	perf     *perfmon.Monitor
	analyzer *sqlanalyze.Analyzer
}

func newFixture(t *testing.T, apiKey string, archive *store.Store) *fixture {
	t.Helper()

	pools := pool.NewManager(config.PoolConfig{}, false)
	mon := monitor.NewMonitor(config.MonitorConfig{
		Enabled: true,
		Thresholds: []config.ThresholdConfig{
			{Metric: "connection_usage_percent", Warning: 70, Critical: 85, Frequency: "5m"},
		},
	}, config.RecoveryConfig{}, []string{"orders"}, stubCollector{}, nopSink{}, nil)

	dispatcher := alerting.NewDispatcher(config.AlertingConfig{Enabled: true})
	analyzer := sqlanalyze.NewAnalyzer(100)
	perf := perfmon.NewMonitor(config.PerformanceConfig{Enabled: true}, mon, analyzer, dispatcher)

	breakers := circuitbreaker.NewRegistry(5, time.Minute)
	degraded := degradation.NewManager(1)
	handler := errorhandler.NewHandler(config.ErrorHandlingConfig{},
		deadlock.NewDetector(100), breakers, degraded, pools)

	srv := New(config.APIConfig{APIKey: apiKey}, Deps{
		Pools:       pools,
		Monitor:     mon,
		Alerts:      dispatcher,
		Perf:        perf,
		Analyzer:    analyzer,
		Errors:      handler,
		Breakers:    breakers,
		Degradation: degraded,
		Archive:     archive,
	})
	return &fixture{server: srv, monitor: mon, alerts: dispatcher, perf: perf, analyzer: analyzer}
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAuthRequiredWithKey(t *testing.T) {
	f := newFixture(t, "secret", nil)

	rec := f.do(t, "GET", "/api/v1/thresholds", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("GET", "/api/v1/thresholds", nil)
	req.Header.Set("Authorization", "Basic secret")
	rr := httptest.NewRecorder()
	f.server.routes().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rec = f.do(t, "GET", "/api/v1/thresholds", "wrong", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, "GET", "/api/v1/thresholds", "secret", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScrapeEndpointsBypassAuth(t *testing.T) {
	f := newFixture(t, "secret", nil)

	rec := f.do(t, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, "GET", "/snapshot", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dbvigil snapshot")
}

func TestAuthDisabledWithoutKey(t *testing.T) {
	f := newFixture(t, "", nil)
	rec := f.do(t, "GET", "/api/v1/thresholds", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCurrentMetricsNotFound(t *testing.T) {
	f := newFixture(t, "", nil)
	rec := f.do(t, "GET", "/api/v1/metrics/current?database=missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsHistoryRequiresDatabase(t *testing.T) {
	f := newFixture(t, "", nil)
	rec := f.do(t, "GET", "/api/v1/metrics/history", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCollectedMetricsServed(t *testing.T) {
	f := newFixture(t, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	require.NoError(t, f.monitor.Start(ctx, &wg))
	defer func() {
		cancel()
		wg.Wait()
	}()

	require.Eventually(t, func() bool {
		return len(f.monitor.CurrentAll()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	rec := f.do(t, "GET", "/api/v1/metrics/current?database=orders", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "orders", body["database"])
	assert.Equal(t, float64(95), body["health_score"])

	rec = f.do(t, "GET", "/snapshot", "", nil)
	assert.Contains(t, rec.Body.String(), "orders")
	assert.Contains(t, rec.Body.String(), "status=healthy")
}

func TestThresholdUpdateAndList(t *testing.T) {
	f := newFixture(t, "", nil)

	rec := f.do(t, "PUT", "/api/v1/thresholds", "", config.ThresholdConfig{
		Metric: "connection_usage_percent", Warning: 60, Critical: 80, Frequency: "2m",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, "GET", "/api/v1/thresholds", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"warning":60`)
}

func TestThresholdUpdateRejectsBadFrequency(t *testing.T) {
	f := newFixture(t, "", nil)
	rec := f.do(t, "PUT", "/api/v1/thresholds", "", config.ThresholdConfig{
		Metric: "connection_usage_percent", Warning: 60, Critical: 80, Frequency: "soon",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuppressionLifecycle(t *testing.T) {
	f := newFixture(t, "", nil)

	rec := f.do(t, "POST", "/api/v1/alerts/suppress", "", map[string]string{
		"database": "orders", "metric": "connection_usage_percent", "duration": "30m",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, "GET", "/api/v1/alerts/suppressions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection_usage_percent")

	rec = f.do(t, "POST", "/api/v1/alerts/suppress", "", map[string]string{
		"database": "orders", "metric": "x", "duration": "soon",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "POST", "/api/v1/alerts/suppress", "", map[string]string{"metric": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcknowledgmentLifecycle(t *testing.T) {
	f := newFixture(t, "", nil)

	rec := f.do(t, "POST", "/api/v1/alerts/alert-9/acknowledge", "", map[string]string{"by": "oncall"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "oncall", body["by"])

	rec = f.do(t, "DELETE", "/api/v1/alerts/alert-9/acknowledge", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, "DELETE", "/api/v1/alerts/alert-9/acknowledge", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestControlToggles(t *testing.T) {
	f := newFixture(t, "", nil)

	rec := f.do(t, "POST", "/api/v1/control", "", map[string]interface{}{
		"component": "monitoring", "enabled": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.monitor.MonitoringEnabled())

	rec = f.do(t, "POST", "/api/v1/control", "", map[string]interface{}{
		"component": "dispatch", "enabled": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.alerts.Enabled())

	rec = f.do(t, "POST", "/api/v1/control", "", map[string]interface{}{
		"component": "performance", "enabled": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.perf.Enabled())

	rec = f.do(t, "POST", "/api/v1/control", "", map[string]interface{}{
		"component": "flux", "enabled": true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetBaselineNotFound(t *testing.T) {
	f := newFixture(t, "", nil)
	rec := f.do(t, "POST", "/api/v1/baselines/reset", "", map[string]string{
		"database": "orders", "metric": "average_query_time_ms",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSlowQueriesFilteredByDatabase(t *testing.T) {
	f := newFixture(t, "", nil)
	f.analyzer.Analyze("orders", "SELECT * FROM orders", 3*time.Second, 5000, 10)
	f.analyzer.Analyze("billing", "SELECT * FROM invoices", 4*time.Second, 8000, 10)

	rec := f.do(t, "GET", "/api/v1/queries/slow?database=orders", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.Contains(t, rec.Body.String(), "FROM orders")
	assert.NotContains(t, rec.Body.String(), "invoices")
}

func TestBreakersIncludeAlertChannels(t *testing.T) {
	f := newFixture(t, "", nil)
	rec := f.do(t, "GET", "/api/v1/breakers", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alerting_email")
	assert.Contains(t, rec.Body.String(), "alerting_webhook")
	assert.Contains(t, rec.Body.String(), "alerting_chat")
}

func TestDegradationReset(t *testing.T) {
	f := newFixture(t, "", nil)
	rec := f.do(t, "POST", "/api/v1/degradation/reset", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "normal", body["level"])
}

func TestArchiveDisabled(t *testing.T) {
	f := newFixture(t, "", nil)
	rec := f.do(t, "GET", "/api/v1/archive/alerts", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = f.do(t, "GET", "/api/v1/archive/errors", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestArchiveServesRows(t *testing.T) {
	archive, err := store.New(config.StoreConfig{
		Path: filepath.Join(t.TempDir(), "archive.db"),
	})
	require.NoError(t, err)
	defer archive.Close()

	require.NoError(t, archive.ArchiveAlert(context.Background(), &store.ArchivedAlert{
		ID: "alert-1", Database: "orders", Metric: "connection_usage_percent",
		Severity: "critical", Message: "connection usage at 92%",
		CurrentValue: 92, ThresholdValue: 85, CreatedAt: time.Now(),
	}))

	f := newFixture(t, "", archive)
	rec := f.do(t, "GET", "/api/v1/archive/alerts?database=orders", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])
}

func TestChannelTestWithNoConfiguredChannels(t *testing.T) {
	f := newFixture(t, "", nil)
	rec := f.do(t, "POST", "/api/v1/alerts/test", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "results")
}
