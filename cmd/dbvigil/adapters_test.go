package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/pkg/alerting"
	"github.com/dbvigil/dbvigil/pkg/errorhandler"
	"github.com/dbvigil/dbvigil/pkg/monitor"
	"github.com/dbvigil/dbvigil/store"
)

func TestConvertAlertMapsFields(t *testing.T) {
	now := time.Now()
	converted := convertAlert(&monitor.Alert{
		ID:             "alert-1",
		Database:       "orders",
		Metric:         "connection_usage_percent",
		CurrentValue:   92,
		ThresholdValue: 85,
		Severity:       monitor.SeverityCritical,
		Message:        "connection usage at 92%",
		Timestamp:      now,
		Resolved:       true,
	})

	assert.Equal(t, "alert-1", converted.ID)
	assert.Equal(t, "orders", converted.Database)
	assert.Equal(t, "critical", converted.Severity)
	assert.Equal(t, float64(92), converted.CurrentValue)
	assert.Equal(t, now, converted.Timestamp)
	assert.True(t, converted.Resolved)
}

func TestSendResolutionArchivesAlert(t *testing.T) {
	archive, err := store.New(config.StoreConfig{
		Path: filepath.Join(t.TempDir(), "archive.db"),
	})
	require.NoError(t, err)
	defer archive.Close()

	sink := &alertSink{
		dispatcher: alerting.NewDispatcher(config.AlertingConfig{Enabled: true}),
		archive:    archive,
	}
	resolvedAt := time.Now()
	require.NoError(t, sink.SendResolution(context.Background(), &monitor.Alert{
		ID:         "alert-2",
		Database:   "orders",
		Metric:     "average_query_time_ms",
		Severity:   monitor.SeverityWarning,
		Message:    "query time recovered",
		Timestamp:  resolvedAt.Add(-time.Hour),
		Resolved:   true,
		ResolvedAt: &resolvedAt,
	}))

	alerts, err := archive.Alerts(context.Background(), "orders", 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "alert-2", alerts[0].ID)
	require.NotNil(t, alerts[0].ResolvedAt)
}

func TestArchiveErrorPersistsRecord(t *testing.T) {
	archive, err := store.New(config.StoreConfig{
		Path: filepath.Join(t.TempDir(), "archive.db"),
	})
	require.NoError(t, err)
	defer archive.Close()

	archiveError(archive, &errorhandler.DatabaseError{
		ID:        "err-1",
		Database:  "orders",
		Operation: "fetch_rows",
		Category:  errorhandler.CategoryDeadlock,
		Severity:  errorhandler.SeverityHigh,
		Message:   "deadlock detected",
		Action:    "retry",
		Timestamp: time.Now(),
	})

	errs, err := archive.Errors(context.Background(), "orders", 10)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "deadlock", errs[0].Category)
}
