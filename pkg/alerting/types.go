// Package alerting delivers alerts over email, HTTP webhooks, and chat
// webhooks. Each outbound channel is wrapped in its own circuit breaker so a
// dead SMTP server or webhook endpoint cannot stall the monitoring loops, and
// delivery errors are classified permanent or temporary so the breakers trip
// on the right failures.
package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
)

// Alert is the payload delivered to the outbound channels. It is deliberately
// independent of the monitor package so channels can also carry error
// notifications and synthetic test alerts.
type Alert struct {
	ID             string    `json:"id"`
	Database       string    `json:"database"`
	Metric         string    `json:"metric"`
	Severity       string    `json:"severity"`
	Message        string    `json:"message"`
	CurrentValue   float64   `json:"current_value"`
	ThresholdValue float64   `json:"threshold_value"`
	Timestamp      time.Time `json:"timestamp"`
	Resolved       bool      `json:"resolved"`
}

// Channel is a single alert delivery transport.
type Channel interface {
	Name() string
	Enabled() bool
	// Accepts reports whether the channel's severity filter includes
	// the given severity. An empty filter accepts everything.
	Accepts(severity string) bool
	Send(ctx context.Context, alert *Alert) error
}

// ChannelError wraps a delivery error with a permanent/temporary
// classification. Permanent errors (bad credentials, rejected payloads) will
// not succeed on retry; temporary errors (network, 5xx) may.
type ChannelError struct {
	Err       error
	Permanent bool
}

func (e *ChannelError) Error() string {
	kind := "temporary"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s delivery error: %v", kind, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// isPermanentSMTPError classifies an SMTP error. 5xx replies are permanent,
// 4xx replies and everything else (network errors) are temporary.
func isPermanentSMTPError(err error) bool {
	if smtpErr, ok := err.(*smtp.SMTPError); ok {
		return !smtpErr.Temporary()
	}
	return false
}

// acceptsSeverity implements the shared severity filter semantics.
func acceptsSeverity(filter []string, severity string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, s := range filter {
		if strings.EqualFold(s, severity) {
			return true
		}
	}
	return false
}
