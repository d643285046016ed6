package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbvigil/dbvigil/config"
)

func TestWebhookPostsAlertJSON(t *testing.T) {
	var gotAuth, gotContentType string
	var gotAlert Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotAlert))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(config.WebhookChannelConfig{
		Enabled:   true,
		URL:       srv.URL,
		AuthToken: "secret-token",
	})
	alert := testAlert("critical")
	require.NoError(t, ch.Send(context.Background(), alert))

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, alert.Database, gotAlert.Database)
	assert.Equal(t, alert.Metric, gotAlert.Metric)
	assert.Equal(t, alert.Severity, gotAlert.Severity)
}

func TestWebhookClassifiesResponseStatus(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusInternalServerError, false},
		{http.StatusBadGateway, false},
	}
	for _, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		ch := NewWebhookChannel(config.WebhookChannelConfig{Enabled: true, URL: srv.URL})
		err := ch.Send(context.Background(), testAlert("critical"))
		srv.Close()

		require.Error(t, err, "status %d", tc.status)
		var chErr *ChannelError
		require.True(t, errors.As(err, &chErr), "status %d", tc.status)
		assert.Equal(t, tc.permanent, chErr.Permanent, "status %d", tc.status)
	}
}

func TestWebhookNetworkErrorIsTemporary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse connections

	ch := NewWebhookChannel(config.WebhookChannelConfig{
		Enabled: true,
		URL:     srv.URL,
		Timeout: "1s",
	})
	err := ch.Send(context.Background(), testAlert("critical"))
	require.Error(t, err)
	var chErr *ChannelError
	require.True(t, errors.As(err, &chErr))
	assert.False(t, chErr.Permanent)
}

func TestWebhookEnabledRequiresURL(t *testing.T) {
	assert.False(t, NewWebhookChannel(config.WebhookChannelConfig{Enabled: true}).Enabled())
	assert.False(t, NewWebhookChannel(config.WebhookChannelConfig{URL: "http://x"}).Enabled())
	assert.True(t, NewWebhookChannel(config.WebhookChannelConfig{Enabled: true, URL: "http://x"}).Enabled())
}

func TestChatPostsColoredAttachment(t *testing.T) {
	var payload chatPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewChatChannel(config.ChatChannelConfig{
		Enabled:    true,
		WebhookURL: srv.URL,
		Channel:    "#db-alerts",
	})
	alert := testAlert("critical")
	require.NoError(t, ch.Send(context.Background(), alert))

	assert.Equal(t, "#db-alerts", payload.Channel)
	require.Len(t, payload.Attachments, 1)
	att := payload.Attachments[0]
	assert.Equal(t, severityColor("critical"), att.Color)
	assert.Contains(t, att.Title, "CRITICAL")
	assert.Contains(t, att.Text, alert.Message)
	assert.Equal(t, alert.Timestamp.Unix(), att.Ts)
}

func TestChatWebhookFailureClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ch := NewChatChannel(config.ChatChannelConfig{Enabled: true, WebhookURL: srv.URL})
	err := ch.Send(context.Background(), testAlert("warning"))
	require.Error(t, err)
	var chErr *ChannelError
	require.True(t, errors.As(err, &chErr))
	assert.True(t, chErr.Permanent)
}

func TestWebhookTimeoutConfig(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	ch := NewWebhookChannel(config.WebhookChannelConfig{
		Enabled: true,
		URL:     slow.URL,
		Timeout: "50ms",
	})
	err := ch.Send(context.Background(), testAlert("critical"))
	require.Error(t, err)
	var chErr *ChannelError
	require.True(t, errors.As(err, &chErr))
	assert.False(t, chErr.Permanent)
}
