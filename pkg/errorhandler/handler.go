// Package errorhandler classifies database failures, picks one recovery
// action per failure and executes it, recording every occurrence into a
// bounded history. It augments errors, it never swallows them.
package errorhandler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/helpers"
	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/circuitbreaker"
	"github.com/dbvigil/dbvigil/pkg/deadlock"
	"github.com/dbvigil/dbvigil/pkg/degradation"
	"github.com/dbvigil/dbvigil/pkg/metrics"
	"github.com/dbvigil/dbvigil/pkg/retry"
)

// RecoveryAction is the single remediation chosen for a failure.
type RecoveryAction string

const (
	ActionRetry              RecoveryAction = "RETRY"
	ActionReconnect          RecoveryAction = "RECONNECT"
	ActionCircuitBreak       RecoveryAction = "CIRCUIT_BREAK"
	ActionManualIntervention RecoveryAction = "MANUAL_INTERVENTION"
)

// DatabaseError records one classified failure occurrence.
type DatabaseError struct {
	ID               string         `json:"id"`
	Database         string         `json:"database"`
	Operation        string         `json:"operation"`
	Category         Category       `json:"category"`
	Severity         Severity       `json:"severity"`
	Message          string         `json:"message"`
	Query            string         `json:"query,omitempty"`
	Action           RecoveryAction `json:"action"`
	RecoveryAttempts int            `json:"recovery_attempts"`
	Resolved         bool           `json:"resolved"`
	Timestamp        time.Time      `json:"timestamp"`
}

// PoolRebuilder re-establishes the named pool. Implemented by pool.Manager.
type PoolRebuilder interface {
	Rebuild(ctx context.Context, name string) error
}

// Notifier receives high/critical errors for immediate external notification.
type Notifier interface {
	NotifyError(ctx context.Context, dbErr *DatabaseError)
}

// Callback observes every handled error.
type Callback func(dbErr *DatabaseError)

const historyLimit = 1000

// Handler is the database error orchestrator.
type Handler struct {
	cfg        config.ErrorHandlingConfig
	classifier Classifier
	deadlocks  *deadlock.Detector
	breakers   *circuitbreaker.Registry
	degraded   *degradation.Manager
	pools      PoolRebuilder
	notifier   Notifier

	mu        sync.Mutex
	history   []*DatabaseError
	recent    map[string][]time.Time // per-alias error timestamps for burst detection
	callbacks []Callback
}

func NewHandler(cfg config.ErrorHandlingConfig, detector *deadlock.Detector,
	breakers *circuitbreaker.Registry, degraded *degradation.Manager, pools PoolRebuilder) *Handler {
	return &Handler{
		cfg:        cfg,
		classifier: DefaultClassifier(),
		deadlocks:  detector,
		breakers:   breakers,
		degraded:   degraded,
		pools:      pools,
		recent:     make(map[string][]time.Time),
	}
}

// SetClassifier swaps the classification strategy.
func (h *Handler) SetClassifier(c Classifier) {
	h.classifier = c
}

// SetNotifier wires the external notification sink.
func (h *Handler) SetNotifier(n Notifier) {
	h.notifier = n
}

// RegisterCallback adds an observer invoked for every handled error.
func (h *Handler) RegisterCallback(cb Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, cb)
}

// History returns the most recent handled errors, newest last.
func (h *Handler) History(limit int) []*DatabaseError {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > len(h.history) {
		limit = len(h.history)
	}
	out := make([]*DatabaseError, limit)
	copy(out, h.history[len(h.history)-limit:])
	return out
}

// Handle runs fn through the database's circuit breaker. On failure it
// classifies the error, executes exactly one recovery action and returns
// the original error unless a retry succeeded.
func (h *Handler) Handle(ctx context.Context, database, operation, query string, fn func(ctx context.Context) error) error {
	breaker := h.breakers.Get(database)

	err := circuitbreaker.WrapWithContext(ctx, breaker, fn)
	if err == nil {
		return nil
	}
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		// Fail fast; the breaker already accounted for this.
		return err
	}

	classification, _ := h.classifier.Classify(err)
	dbErr := &DatabaseError{
		ID:        uuid.New().String(),
		Database:  database,
		Operation: operation,
		Category:  classification.Category,
		Severity:  classification.Severity,
		Message:   err.Error(),
		Query:     helpers.TruncateString(helpers.SanitizeUTF8(query), 2000),
		Timestamp: time.Now(),
	}

	isDeadlock := h.deadlocks.Detect(database, err, query)
	if isDeadlock {
		dbErr.Category = CategoryDeadlock
		if dbErr.Severity != SeverityCritical {
			dbErr.Severity = SeverityHigh
		}
	}

	h.record(dbErr)
	metrics.DBErrorsTotal.WithLabelValues(database, string(dbErr.Category), string(dbErr.Severity)).Inc()

	dbErr.Action = h.selectAction(dbErr)
	h.logError(dbErr)

	h.executeAction(ctx, breaker, dbErr, fn)

	h.notify(ctx, dbErr)

	if dbErr.Resolved {
		return nil
	}
	return err
}

// selectAction picks exactly one recovery action for a classified error.
func (h *Handler) selectAction(dbErr *DatabaseError) RecoveryAction {
	switch {
	case dbErr.Category == CategoryDeadlock:
		return ActionRetry
	case dbErr.Category == CategoryConnection:
		return ActionReconnect
	case dbErr.Category == CategoryTimeout:
		return ActionRetry
	case h.errorBurst(dbErr.Database):
		return ActionCircuitBreak
	case dbErr.Category == CategoryIntegrity:
		// Constraint problems are logic errors, never transient.
		return ActionManualIntervention
	default:
		return ActionRetry
	}
}

// errorBurst reports whether the alias accumulated enough recent errors to
// force the breaker open.
func (h *Handler) errorBurst(database string) bool {
	window, err := h.cfg.GetCircuitErrorWindow()
	if err != nil {
		window = 5 * time.Minute
	}
	cutoff := time.Now().Add(-window)

	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.recent[database][:0]
	for _, ts := range h.recent[database] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	h.recent[database] = kept

	return len(kept) >= h.cfg.GetCircuitErrorThreshold()
}

func (h *Handler) executeAction(ctx context.Context, breaker *circuitbreaker.CircuitBreaker, dbErr *DatabaseError, fn func(ctx context.Context) error) error {
	switch dbErr.Action {
	case ActionRetry:
		return h.executeRetry(ctx, breaker, dbErr, fn)

	case ActionReconnect:
		if h.pools == nil {
			metrics.RecoveryActionsTotal.WithLabelValues(dbErr.Database, string(dbErr.Action), "skipped").Inc()
			return fmt.Errorf("no pool rebuilder configured")
		}
		if err := h.pools.Rebuild(ctx, dbErr.Database); err != nil {
			metrics.RecoveryActionsTotal.WithLabelValues(dbErr.Database, string(dbErr.Action), "failure").Inc()
			logger.Error("Reconnect failed", "database", dbErr.Database, "error", err)
			return err
		}
		metrics.RecoveryActionsTotal.WithLabelValues(dbErr.Database, string(dbErr.Action), "success").Inc()
		return nil

	case ActionCircuitBreak:
		breaker.ForceOpen()
		h.degraded.Enter(dbErr.Database, fmt.Sprintf("error burst: %s", dbErr.Category))
		metrics.RecoveryActionsTotal.WithLabelValues(dbErr.Database, string(dbErr.Action), "success").Inc()
		logger.Warn("Circuit breaker forced open after error burst",
			"database", dbErr.Database, "category", dbErr.Category)
		return nil

	case ActionManualIntervention:
		metrics.RecoveryActionsTotal.WithLabelValues(dbErr.Database, string(dbErr.Action), "logged").Inc()
		logger.Error("Manual intervention required",
			"database", dbErr.Database, "category", dbErr.Category, "error_id", dbErr.ID)
		return nil
	}
	return nil
}

// executeRetry re-runs fn with capped exponential backoff. Attempts are
// bounded by the configured budget and counted on the error record.
func (h *Handler) executeRetry(ctx context.Context, breaker *circuitbreaker.CircuitBreaker, dbErr *DatabaseError, fn func(ctx context.Context) error) error {
	maxAttempts := h.cfg.GetMaxRetryAttempts()
	if suppressed, ok := h.retryBudgetOverride(); ok {
		maxAttempts = suppressed
	}
	if maxAttempts <= 0 {
		metrics.RecoveryActionsTotal.WithLabelValues(dbErr.Database, string(ActionRetry), "suppressed").Inc()
		return fmt.Errorf("retries suppressed")
	}

	baseDelay, err := h.cfg.GetRetryBaseDelay()
	if err != nil {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay, err := h.cfg.GetRetryMaxDelay()
	if err != nil {
		maxDelay = 5 * time.Second
	}

	backoff := retry.BackoffConfig{
		InitialInterval: baseDelay,
		MaxInterval:     maxDelay,
		Multiplier:      2.0,
		Jitter:          true,
		MaxRetries:      maxAttempts - 1, // first invocation inside WithRetry counts as attempt one
	}

	retryErr := retry.WithRetryExceptStop(ctx, func() error {
		dbErr.RecoveryAttempts++
		metrics.RetryAttemptsTotal.WithLabelValues(dbErr.Database).Inc()
		attemptErr := circuitbreaker.WrapWithContext(ctx, breaker, fn)
		if errors.Is(attemptErr, circuitbreaker.ErrCircuitBreakerOpen) || errors.Is(attemptErr, circuitbreaker.ErrTooManyRequests) {
			// The breaker tripped under us; retrying would only hammer it.
			return retry.Stop(attemptErr)
		}
		return attemptErr
	}, backoff)

	if retryErr == nil {
		dbErr.Resolved = true
		metrics.RecoveryActionsTotal.WithLabelValues(dbErr.Database, string(ActionRetry), "success").Inc()
		logger.Info("Operation recovered after retry",
			"database", dbErr.Database, "operation", dbErr.Operation, "attempts", dbErr.RecoveryAttempts)
		return nil
	}
	metrics.RecoveryActionsTotal.WithLabelValues(dbErr.Database, string(ActionRetry), "failure").Inc()
	return retryErr
}

// retryBudgetOverride reports the reduced retry budget when the retry
// suppression degradation strategy is active.
func (h *Handler) retryBudgetOverride() (int, bool) {
	for name, level := range h.degraded.ActiveStrategies() {
		if name != "retry_suppression" {
			continue
		}
		switch {
		case level >= degradation.LevelCritical:
			return 0, true
		case level >= degradation.LevelMajor:
			return 1, true
		}
	}
	return 0, false
}

func (h *Handler) record(dbErr *DatabaseError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.recent[dbErr.Database] = append(h.recent[dbErr.Database], dbErr.Timestamp)

	h.history = append(h.history, dbErr)
	if len(h.history) > historyLimit {
		h.history = h.history[len(h.history)-historyLimit:]
	}
}

func (h *Handler) logError(dbErr *DatabaseError) {
	args := []interface{}{
		"database", dbErr.Database,
		"operation", dbErr.Operation,
		"category", dbErr.Category,
		"severity", dbErr.Severity,
		"action", dbErr.Action,
		"error_id", dbErr.ID,
		"error", dbErr.Message,
	}
	switch dbErr.Severity {
	case SeverityCritical, SeverityHigh:
		logger.Error("Database error", args...)
	case SeverityMedium:
		logger.Warn("Database error", args...)
	default:
		logger.Info("Database error", args...)
	}
}

func (h *Handler) notify(ctx context.Context, dbErr *DatabaseError) {
	h.mu.Lock()
	callbacks := make([]Callback, len(h.callbacks))
	copy(callbacks, h.callbacks)
	h.mu.Unlock()

	for _, cb := range callbacks {
		cb(dbErr)
	}

	if h.notifier != nil && (dbErr.Severity == SeverityHigh || dbErr.Severity == SeverityCritical) {
		h.notifier.NotifyError(ctx, dbErr)
	}
}
