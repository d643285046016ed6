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

// chatPayload is the Slack-compatible incoming-webhook body.
type chatPayload struct {
	Channel     string           `json:"channel,omitempty"`
	Text        string           `json:"text"`
	Attachments []chatAttachment `json:"attachments,omitempty"`
}

type chatAttachment struct {
	Color  string      `json:"color"`
	Title  string      `json:"title"`
	Text   string      `json:"text"`
	Fields []chatField `json:"fields,omitempty"`
	Ts     int64       `json:"ts"`
}

type chatField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// ChatChannel posts alerts to a Slack-compatible incoming webhook with a
// severity-colored attachment.
type ChatChannel struct {
	cfg    config.ChatChannelConfig
	client *http.Client
}

func NewChatChannel(cfg config.ChatChannelConfig) *ChatChannel {
	timeout, err := cfg.GetTimeout()
	if err != nil {
		timeout = 30 * time.Second
	}
	return &ChatChannel{
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

func (c *ChatChannel) Name() string { return "chat" }

func (c *ChatChannel) Enabled() bool {
	return c.cfg.Enabled && c.cfg.WebhookURL != ""
}

func (c *ChatChannel) Accepts(severity string) bool {
	return acceptsSeverity(c.cfg.Severities, severity)
}

func (c *ChatChannel) Send(ctx context.Context, alert *Alert) error {
	payload := chatPayload{
		Channel: c.cfg.Channel,
		Text:    renderSubject(alert),
		Attachments: []chatAttachment{
			{
				Color: severityColor(alert.Severity),
				Title: renderSubject(alert),
				Text:  renderText(alert),
				Fields: []chatField{
					{Title: "Database", Value: alert.Database, Short: true},
					{Title: "Metric", Value: alert.Metric, Short: true},
					{Title: "Current", Value: fmt.Sprintf("%.2f", alert.CurrentValue), Short: true},
					{Title: "Threshold", Value: fmt.Sprintf("%.2f", alert.ThresholdValue), Short: true},
				},
				Ts: alert.Timestamp.Unix(),
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &ChannelError{Err: fmt.Errorf("failed to marshal chat payload: %w", err), Permanent: true}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return &ChannelError{Err: fmt.Errorf("failed to create chat request: %w", err), Permanent: true}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &ChannelError{Err: fmt.Errorf("chat webhook request failed: %w", err), Permanent: false}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		permanent := resp.StatusCode >= 400 && resp.StatusCode < 500
		return &ChannelError{
			Err:       fmt.Errorf("chat webhook returned status %d", resp.StatusCode),
			Permanent: permanent,
		}
	}
	return nil
}
