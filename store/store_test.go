package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbvigil/dbvigil/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(config.StoreConfig{
		Path:      filepath.Join(t.TempDir(), "archive.db"),
		Retention: "90d",
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func archivedAlert(id, database string, createdAt time.Time) *ArchivedAlert {
	resolvedAt := createdAt.Add(5 * time.Minute)
	return &ArchivedAlert{
		ID:             id,
		Database:       database,
		Metric:         "connection_usage_percent",
		Severity:       "critical",
		Message:        "connection usage above threshold",
		CurrentValue:   92,
		ThresholdValue: 85,
		CreatedAt:      createdAt,
		ResolvedAt:     &resolvedAt,
	}
}

func TestArchiveAndListAlerts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, s.ArchiveAlert(ctx, archivedAlert("a1", "orders", now.Add(-2*time.Hour))))
	require.NoError(t, s.ArchiveAlert(ctx, archivedAlert("a2", "orders", now.Add(-time.Hour))))
	require.NoError(t, s.ArchiveAlert(ctx, archivedAlert("a3", "billing", now)))

	all, err := s.Alerts(ctx, "", 100)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "a3", all[0].ID)
	assert.Equal(t, "a1", all[2].ID)
	require.NotNil(t, all[0].ResolvedAt)
	assert.Equal(t, now.Add(5*time.Minute).Unix(), all[0].ResolvedAt.Unix())

	orders, err := s.Alerts(ctx, "orders", 100)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	limited, err := s.Alerts(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "a3", limited[0].ID)
}

func TestArchiveAndListErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, s.ArchiveError(ctx, &ArchivedError{
		ID:        "e1",
		Database:  "orders",
		Operation: "insert_order",
		Category:  "deadlock",
		Severity:  "high",
		Message:   "deadlock detected",
		Action:    "RETRY",
		Attempts:  2,
		Resolved:  true,
		CreatedAt: now,
	}))

	errs, err := s.Errors(ctx, "orders", 10)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	e := errs[0]
	assert.Equal(t, "deadlock", e.Category)
	assert.Equal(t, "RETRY", e.Action)
	assert.Equal(t, 2, e.Attempts)
	assert.True(t, e.Resolved)
	assert.Equal(t, now.Unix(), e.CreatedAt.Unix())

	other, err := s.Errors(ctx, "billing", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestPruneRemovesExpiredRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.ArchiveAlert(ctx, archivedAlert("old", "orders", now.Add(-100*24*time.Hour))))
	require.NoError(t, s.ArchiveAlert(ctx, archivedAlert("new", "orders", now.Add(-time.Hour))))
	require.NoError(t, s.ArchiveError(ctx, &ArchivedError{
		ID: "old-err", Database: "orders", Operation: "op", Category: "timeout",
		Severity: "high", Message: "m", Action: "RETRY",
		CreatedAt: now.Add(-100 * 24 * time.Hour),
	}))

	n, err := s.Prune(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	alerts, err := s.Alerts(ctx, "", 100)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "new", alerts[0].ID)

	errs, err := s.Errors(ctx, "", 100)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StoreConfig{Path: filepath.Join(dir, "archive.db")}

	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.ArchiveAlert(context.Background(), archivedAlert("a1", "orders", time.Now())))
	require.NoError(t, s.Close())

	// Reopen runs migrations again; ErrNoChange is not an error.
	s2, err := New(cfg)
	require.NoError(t, err)
	defer s2.Close()

	alerts, err := s2.Alerts(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}
