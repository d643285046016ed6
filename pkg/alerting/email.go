package alerting

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/dbvigil/dbvigil/config"
)

// EmailChannel delivers alerts over SMTP as multipart/alternative messages
// with a plain-text and an HTML part.
type EmailChannel struct {
	cfg config.EmailChannelConfig
}

func NewEmailChannel(cfg config.EmailChannelConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Enabled() bool {
	return c.cfg.Enabled && c.cfg.Host != "" && len(c.cfg.Recipients) > 0
}

func (c *EmailChannel) Accepts(severity string) bool {
	return acceptsSeverity(c.cfg.Severities, severity)
}

func (c *EmailChannel) Send(ctx context.Context, alert *Alert) error {
	msg, err := c.buildMessage(alert)
	if err != nil {
		return &ChannelError{Err: fmt.Errorf("failed to build alert message: %w", err), Permanent: true}
	}
	return c.deliver(msg)
}

// buildMessage renders the alert into a multipart/alternative MIME message.
func (c *EmailChannel) buildMessage(alert *Alert) ([]byte, error) {
	var buf bytes.Buffer
	var h message.Header
	h.Set("From", c.cfg.From)
	h.Set("To", strings.Join(c.cfg.Recipients, ", "))
	h.Set("Subject", renderSubject(alert))
	h.Set("Date", time.Now().Format(time.RFC1123Z))
	h.Set("Message-ID", fmt.Sprintf("<%s@%s>", alert.ID, c.cfg.Host))
	h.Set("Auto-Submitted", "auto-generated")
	h.Set("Content-Type", "multipart/alternative")

	w, err := message.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}

	var textHeader message.Header
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	textWriter, err := w.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	textWriter.Write([]byte(renderText(alert)))
	textWriter.Close()

	var htmlHeader message.Header
	htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
	htmlWriter, err := w.CreatePart(htmlHeader)
	if err != nil {
		return nil, err
	}
	htmlWriter.Write([]byte(renderHTML(alert)))
	htmlWriter.Close()

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deliver performs the SMTP conversation. Connection failures are temporary;
// 5xx replies are permanent.
func (c *EmailChannel) deliver(msg []byte) error {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.GetPort()))
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: c.cfg.Host,
	}

	var client *smtp.Client
	var err error
	switch {
	case c.cfg.GetPort() == 465:
		client, err = smtp.DialTLS(addr, tlsConfig)
	case c.cfg.StartTLS:
		client, err = smtp.DialStartTLS(addr, tlsConfig)
	default:
		client, err = smtp.Dial(addr)
	}
	if err != nil {
		return &ChannelError{Err: fmt.Errorf("failed to connect to SMTP server: %w", err), Permanent: false}
	}
	defer client.Close()

	if c.cfg.Username != "" {
		if err := client.Auth(sasl.NewPlainClient("", c.cfg.Username, c.cfg.Password)); err != nil {
			// Rejected credentials will not recover on retry.
			return &ChannelError{Err: fmt.Errorf("SMTP authentication failed: %w", err), Permanent: true}
		}
	}

	if err := client.Mail(c.cfg.From, nil); err != nil {
		return &ChannelError{Err: fmt.Errorf("failed to set sender: %w", err), Permanent: isPermanentSMTPError(err)}
	}
	for _, rcpt := range c.cfg.Recipients {
		if err := client.Rcpt(rcpt, nil); err != nil {
			return &ChannelError{Err: fmt.Errorf("failed to set recipient %s: %w", rcpt, err), Permanent: isPermanentSMTPError(err)}
		}
	}

	wc, err := client.Data()
	if err != nil {
		return &ChannelError{Err: fmt.Errorf("failed to start data: %w", err), Permanent: isPermanentSMTPError(err)}
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return &ChannelError{Err: fmt.Errorf("failed to write message: %w", err), Permanent: false}
	}
	if err := wc.Close(); err != nil {
		return &ChannelError{Err: fmt.Errorf("failed to close data writer: %w", err), Permanent: isPermanentSMTPError(err)}
	}

	// Quit failures do not affect delivery, the message was accepted.
	_ = client.Quit()
	return nil
}
