package alerting

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dbvigil/dbvigil/config"
)

// WebhookChannel POSTs the alert as JSON to a configured endpoint with
// optional Bearer authentication.
type WebhookChannel struct {
	cfg    config.WebhookChannelConfig
	client *http.Client
}

func NewWebhookChannel(cfg config.WebhookChannelConfig) *WebhookChannel {
	timeout, err := cfg.GetTimeout()
	if err != nil {
		timeout = 30 * time.Second
	}
	return &WebhookChannel{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Enabled() bool {
	return c.cfg.Enabled && c.cfg.URL != ""
}

func (c *WebhookChannel) Accepts(severity string) bool {
	return acceptsSeverity(c.cfg.Severities, severity)
}

func (c *WebhookChannel) Send(ctx context.Context, alert *Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return &ChannelError{Err: fmt.Errorf("failed to marshal alert: %w", err), Permanent: true}
	}
	return c.post(ctx, c.cfg.URL, body)
}

// post sends the payload and classifies the response. Network errors and
// 5xx responses are temporary, 4xx responses are permanent.
func (c *WebhookChannel) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &ChannelError{Err: fmt.Errorf("failed to create webhook request: %w", err), Permanent: true}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &ChannelError{Err: fmt.Errorf("webhook request failed: %w", err), Permanent: false}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		permanent := resp.StatusCode >= 400 && resp.StatusCode < 500
		return &ChannelError{
			Err:       fmt.Errorf("webhook returned status %d", resp.StatusCode),
			Permanent: permanent,
		}
	}
	return nil
}
