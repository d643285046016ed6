package main

import (
	"context"
	"time"

	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/alerting"
	"github.com/dbvigil/dbvigil/pkg/errorhandler"
	"github.com/dbvigil/dbvigil/pkg/monitor"
	"github.com/dbvigil/dbvigil/store"
)

// alertSink forwards monitor alerts to the dispatcher and archives
// resolutions. Delivery failures are logged, never propagated back into the
// alert loop.
type alertSink struct {
	dispatcher *alerting.Dispatcher
	archive    *store.Store
}

func convertAlert(alert *monitor.Alert) *alerting.Alert {
	return &alerting.Alert{
		ID:             alert.ID,
		Database:       alert.Database,
		Metric:         alert.Metric,
		Severity:       string(alert.Severity),
		Message:        alert.Message,
		CurrentValue:   alert.CurrentValue,
		ThresholdValue: alert.ThresholdValue,
		Timestamp:      alert.Timestamp,
		Resolved:       alert.Resolved,
	}
}

func (s *alertSink) Send(ctx context.Context, alert *monitor.Alert) error {
	return s.dispatcher.Send(ctx, convertAlert(alert))
}

func (s *alertSink) SendResolution(ctx context.Context, alert *monitor.Alert) error {
	if s.archive != nil {
		resolvedAt := time.Now()
		if alert.ResolvedAt != nil {
			resolvedAt = *alert.ResolvedAt
		}
		archived := &store.ArchivedAlert{
			ID:             alert.ID,
			Database:       alert.Database,
			Metric:         alert.Metric,
			Severity:       string(alert.Severity),
			Message:        alert.Message,
			CurrentValue:   alert.CurrentValue,
			ThresholdValue: alert.ThresholdValue,
			CreatedAt:      alert.Timestamp,
			ResolvedAt:     &resolvedAt,
		}
		if err := s.archive.ArchiveAlert(ctx, archived); err != nil {
			logger.Error("Failed to archive resolved alert", "alert_id", alert.ID, "error", err)
		}
	}
	return s.dispatcher.SendResolution(ctx, convertAlert(alert))
}

// errorNotifier turns high and critical database errors into alerts.
type errorNotifier struct {
	dispatcher *alerting.Dispatcher
}

func (n *errorNotifier) NotifyError(ctx context.Context, dbErr *errorhandler.DatabaseError) {
	alert := &alerting.Alert{
		ID:        dbErr.ID,
		Database:  dbErr.Database,
		Metric:    "database_error_" + string(dbErr.Category),
		Severity:  string(dbErr.Severity),
		Message:   dbErr.Message,
		Timestamp: dbErr.Timestamp,
	}
	if err := n.dispatcher.Send(ctx, alert); err != nil {
		logger.Warn("Failed to dispatch error alert", "database", dbErr.Database, "error", err)
	}
}

// archiveError persists one handled error. Called from the error handler
// callback, so it must not block on the caller's context.
func archiveError(archive *store.Store, dbErr *errorhandler.DatabaseError) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	archived := &store.ArchivedError{
		ID:        dbErr.ID,
		Database:  dbErr.Database,
		Operation: dbErr.Operation,
		Category:  string(dbErr.Category),
		Severity:  string(dbErr.Severity),
		Message:   dbErr.Message,
		Action:    string(dbErr.Action),
		Attempts:  dbErr.RecoveryAttempts,
		Resolved:  dbErr.Resolved,
		CreatedAt: dbErr.Timestamp,
	}
	if err := archive.ArchiveError(ctx, archived); err != nil {
		logger.Error("Failed to archive database error", "error_id", dbErr.ID, "error", err)
	}
}
