package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/circuitbreaker"
	"github.com/dbvigil/dbvigil/pkg/metrics"
)

// Suppression silences alerts for a (database, metric) pair until Until.
type Suppression struct {
	Database string    `json:"database"`
	Metric   string    `json:"metric"`
	Until    time.Time `json:"until"`
}

// Acknowledgment silences a single alert id until cleared.
type Acknowledgment struct {
	AlertID string    `json:"alert_id"`
	By      string    `json:"by"`
	At      time.Time `json:"at"`
}

// ChannelTestResult reports the outcome of a synthetic test delivery.
type ChannelTestResult struct {
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher fans alerts out to every enabled channel whose severity filter
// matches. Each channel sits behind its own circuit breaker so one failing
// transport does not block the others.
type Dispatcher struct {
	cfg      config.AlertingConfig
	channels []Channel
	breakers map[string]*circuitbreaker.CircuitBreaker
	enabled  atomic.Bool

	mu           sync.Mutex
	suppressions map[string]time.Time // "database|metric" -> end of suppression
	acks         map[string]Acknowledgment
}

// NewDispatcher builds a dispatcher with the email, webhook, and chat
// channels from the configuration.
func NewDispatcher(cfg config.AlertingConfig) *Dispatcher {
	return newDispatcher(cfg,
		NewEmailChannel(cfg.Email),
		NewWebhookChannel(cfg.Webhook),
		NewChatChannel(cfg.Chat),
	)
}

func newDispatcher(cfg config.AlertingConfig, channels ...Channel) *Dispatcher {
	timeout, err := cfg.GetBreakerTimeout()
	if err != nil {
		timeout = 60 * time.Second
	}
	d := &Dispatcher{
		cfg:          cfg,
		channels:     channels,
		breakers:     make(map[string]*circuitbreaker.CircuitBreaker),
		suppressions: make(map[string]time.Time),
		acks:         make(map[string]Acknowledgment),
	}
	d.enabled.Store(cfg.Enabled)
	for _, ch := range channels {
		name := "alerting_" + ch.Name()
		d.breakers[ch.Name()] = circuitbreaker.NewCircuitBreaker(
			circuitbreaker.DatabaseSettings(name, cfg.GetBreakerThreshold(), timeout, nil))
	}
	return d
}

// SetEnabled toggles outbound alerting at runtime.
func (d *Dispatcher) SetEnabled(on bool) { d.enabled.Store(on) }

func (d *Dispatcher) Enabled() bool { return d.enabled.Load() }

// Send delivers the alert through every matching channel. Suppressed pairs
// and acknowledged alert ids are dropped silently.
func (d *Dispatcher) Send(ctx context.Context, alert *Alert) error {
	if !d.enabled.Load() {
		return nil
	}
	if d.silenced(alert) {
		logger.Debug("Alert delivery suppressed",
			"database", alert.Database, "metric", alert.Metric, "alert_id", alert.ID)
		return nil
	}
	return d.dispatch(ctx, alert, false)
}

// SendResolution notifies channels that an alert cleared. Email is skipped,
// resolution traffic is noise in a mailbox.
func (d *Dispatcher) SendResolution(ctx context.Context, alert *Alert) error {
	if !d.enabled.Load() {
		return nil
	}
	if d.silenced(alert) {
		return nil
	}
	return d.dispatch(ctx, alert, true)
}

func (d *Dispatcher) dispatch(ctx context.Context, alert *Alert, resolution bool) error {
	var errs []error
	for _, ch := range d.channels {
		if !ch.Enabled() || !ch.Accepts(alert.Severity) {
			continue
		}
		if resolution && ch.Name() == "email" {
			continue
		}
		if err := d.deliver(ctx, ch, alert); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// deliver runs a single channel send through its circuit breaker and records
// delivery metrics.
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, alert *Alert) error {
	breaker := d.breakers[ch.Name()]
	start := time.Now()
	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, ch.Send(ctx, alert)
	})
	metrics.AlertDeliveryDuration.WithLabelValues(ch.Name()).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.AlertDeliveriesTotal.WithLabelValues(ch.Name(), "success").Inc()
		return nil
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		metrics.AlertDeliveriesTotal.WithLabelValues(ch.Name(), "breaker_open").Inc()
		logger.Warn("Alert channel breaker is open, skipping delivery",
			"channel", ch.Name(), "database", alert.Database, "metric", alert.Metric)
		return err
	default:
		metrics.AlertDeliveriesTotal.WithLabelValues(ch.Name(), "failure").Inc()
		logger.Error("Alert delivery failed",
			"channel", ch.Name(), "database", alert.Database, "metric", alert.Metric, "error", err)
		return err
	}
}

// silenced reports whether the alert is covered by an active suppression or
// an acknowledgment, purging expired suppressions on the way.
func (d *Dispatcher) silenced(alert *Alert) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for key, until := range d.suppressions {
		if now.After(until) {
			delete(d.suppressions, key)
		}
	}
	if _, ok := d.suppressions[alert.Database+"|"+alert.Metric]; ok {
		return true
	}
	_, acked := d.acks[alert.ID]
	return acked
}

// Suppress silences alerts for the (database, metric) pair for the given
// duration.
func (d *Dispatcher) Suppress(database, metric string, duration time.Duration) Suppression {
	d.mu.Lock()
	defer d.mu.Unlock()
	until := time.Now().Add(duration)
	d.suppressions[database+"|"+metric] = until
	logger.Info("Alert suppression added",
		"database", database, "metric", metric, "until", until)
	return Suppression{Database: database, Metric: metric, Until: until}
}

// Suppressions returns the active suppressions, dropping expired entries.
func (d *Dispatcher) Suppressions() []Suppression {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	out := make([]Suppression, 0, len(d.suppressions))
	for key, until := range d.suppressions {
		if now.After(until) {
			delete(d.suppressions, key)
			continue
		}
		database, metric, _ := strings.Cut(key, "|")
		out = append(out, Suppression{Database: database, Metric: metric, Until: until})
	}
	return out
}

// Acknowledge silences the given alert id until cleared.
func (d *Dispatcher) Acknowledge(alertID, by string) Acknowledgment {
	d.mu.Lock()
	defer d.mu.Unlock()
	ack := Acknowledgment{AlertID: alertID, By: by, At: time.Now()}
	d.acks[alertID] = ack
	logger.Info("Alert acknowledged", "alert_id", alertID, "by", by)
	return ack
}

// ClearAcknowledgment removes an acknowledgment so the alert fires again.
func (d *Dispatcher) ClearAcknowledgment(alertID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.acks[alertID]
	delete(d.acks, alertID)
	return ok
}

// Acknowledgments returns the current acknowledgments.
func (d *Dispatcher) Acknowledgments() []Acknowledgment {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Acknowledgment, 0, len(d.acks))
	for _, ack := range d.acks {
		out = append(out, ack)
	}
	return out
}

// TestChannels sends a synthetic info alert through every enabled channel,
// bypassing severity filters, and reports per-channel results.
func (d *Dispatcher) TestChannels(ctx context.Context) []ChannelTestResult {
	alert := &Alert{
		ID:        uuid.New().String(),
		Database:  "test",
		Metric:    "test_delivery",
		Severity:  "info",
		Message:   "Test alert delivery, no action required",
		Timestamp: time.Now(),
	}
	results := make([]ChannelTestResult, 0, len(d.channels))
	for _, ch := range d.channels {
		if !ch.Enabled() {
			continue
		}
		result := ChannelTestResult{Channel: ch.Name(), OK: true}
		if err := d.deliver(ctx, ch, alert); err != nil {
			result.OK = false
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// BreakerSnapshots exposes the channel breaker states for the status API.
func (d *Dispatcher) BreakerSnapshots() []circuitbreaker.Snapshot {
	out := make([]circuitbreaker.Snapshot, 0, len(d.channels))
	for _, ch := range d.channels {
		out = append(out, d.breakers[ch.Name()].Snapshot())
	}
	return out
}
