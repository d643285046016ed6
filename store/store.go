// Package store is the bounded on-disk archive for resolved alerts and
// handled database errors. It keeps its own sqlite database in WAL mode so
// history survives restarts without touching the monitored engines, and a
// retention loop prunes expired rows.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/metrics"
)

//go:embed migrations/*.sql
var MigrationsFS embed.FS

// ArchivedAlert is one resolved alert persisted to the archive.
type ArchivedAlert struct {
	ID             string     `json:"id"`
	Database       string     `json:"database"`
	Metric         string     `json:"metric"`
	Severity       string     `json:"severity"`
	Message        string     `json:"message"`
	CurrentValue   float64    `json:"current_value"`
	ThresholdValue float64    `json:"threshold_value"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// ArchivedError is one handled database error persisted to the archive.
type ArchivedError struct {
	ID        string    `json:"id"`
	Database  string    `json:"database"`
	Operation string    `json:"operation"`
	Category  string    `json:"category"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Action    string    `json:"action"`
	Attempts  int       `json:"attempts"`
	Resolved  bool      `json:"resolved"`
	CreatedAt time.Time `json:"created_at"`
}

// Store owns the archive database.
type Store struct {
	cfg config.StoreConfig
	db  *sql.DB
}

// New opens the archive, enables WAL, and applies pending migrations.
func New(cfg config.StoreConfig) (*Store, error) {
	path := cfg.GetPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		// WAL is an optimization; the archive still works without it.
		logger.Warn("Failed to enable WAL on archive database", "error", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive database ping failed: %w", err)
	}

	s := &Store{cfg: cfg, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Archive store opened", "path", path)
	return s, nil
}

// migrate applies the embedded schema migrations.
func (s *Store) migrate() error {
	timeout, err := s.cfg.GetMigrationTimeout()
	if err != nil {
		timeout = 2 * time.Minute
	}

	source, err := iofs.New(MigrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration tool: %w", err)
	}
	m.LockTimeout = timeout

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply archive migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ArchiveAlert persists a resolved alert.
func (s *Store) ArchiveAlert(ctx context.Context, alert *ArchivedAlert) error {
	var resolvedAt sql.NullInt64
	if alert.ResolvedAt != nil {
		resolvedAt = sql.NullInt64{Int64: alert.ResolvedAt.Unix(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archived_alerts
			(id, database_name, metric, severity, message, current_value, threshold_value, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.Database, alert.Metric, alert.Severity, alert.Message,
		alert.CurrentValue, alert.ThresholdValue, alert.CreatedAt.Unix(), resolvedAt)
	if err != nil {
		metrics.ArchiveOperationsTotal.WithLabelValues("archive_alert", "failure").Inc()
		return fmt.Errorf("failed to archive alert: %w", err)
	}
	metrics.ArchiveOperationsTotal.WithLabelValues("archive_alert", "success").Inc()
	return nil
}

// ArchiveError persists a handled database error.
func (s *Store) ArchiveError(ctx context.Context, dbErr *ArchivedError) error {
	resolved := 0
	if dbErr.Resolved {
		resolved = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archived_errors
			(id, database_name, operation, category, severity, message, action, attempts, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dbErr.ID, dbErr.Database, dbErr.Operation, dbErr.Category, dbErr.Severity,
		dbErr.Message, dbErr.Action, dbErr.Attempts, resolved, dbErr.CreatedAt.Unix())
	if err != nil {
		metrics.ArchiveOperationsTotal.WithLabelValues("archive_error", "failure").Inc()
		return fmt.Errorf("failed to archive error: %w", err)
	}
	metrics.ArchiveOperationsTotal.WithLabelValues("archive_error", "success").Inc()
	return nil
}

// Alerts returns up to limit archived alerts, newest first, optionally
// filtered by database.
func (s *Store) Alerts(ctx context.Context, database string, limit int) ([]ArchivedAlert, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `
		SELECT id, database_name, metric, severity, message, current_value, threshold_value, created_at, resolved_at
		FROM archived_alerts`
	args := []any{}
	if database != "" {
		query += ` WHERE database_name = ?`
		args = append(args, database)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived alerts: %w", err)
	}
	defer rows.Close()

	var out []ArchivedAlert
	for rows.Next() {
		var a ArchivedAlert
		var createdAt int64
		var resolvedAt sql.NullInt64
		if err := rows.Scan(&a.ID, &a.Database, &a.Metric, &a.Severity, &a.Message,
			&a.CurrentValue, &a.ThresholdValue, &createdAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archived alert: %w", err)
		}
		a.CreatedAt = time.Unix(createdAt, 0)
		if resolvedAt.Valid {
			t := time.Unix(resolvedAt.Int64, 0)
			a.ResolvedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Errors returns up to limit archived errors, newest first, optionally
// filtered by database.
func (s *Store) Errors(ctx context.Context, database string, limit int) ([]ArchivedError, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `
		SELECT id, database_name, operation, category, severity, message, action, attempts, resolved, created_at
		FROM archived_errors`
	args := []any{}
	if database != "" {
		query += ` WHERE database_name = ?`
		args = append(args, database)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived errors: %w", err)
	}
	defer rows.Close()

	var out []ArchivedError
	for rows.Next() {
		var e ArchivedError
		var resolved int
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Database, &e.Operation, &e.Category, &e.Severity,
			&e.Message, &e.Action, &e.Attempts, &resolved, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan archived error: %w", err)
		}
		e.Resolved = resolved != 0
		e.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes rows older than the retention cutoff. Returns the number
// of rows removed.
func (s *Store) Prune(ctx context.Context, now time.Time) (int64, error) {
	retention, err := s.cfg.GetRetention()
	if err != nil {
		retention = 90 * 24 * time.Hour
	}
	cutoff := now.Add(-retention).Unix()

	var total int64
	for _, table := range []string{"archived_alerts", "archived_errors"} {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE created_at < ?`, table), cutoff)
		if err != nil {
			metrics.ArchiveOperationsTotal.WithLabelValues("prune", "failure").Inc()
			return total, fmt.Errorf("failed to prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
		metrics.ArchiveRowsPruned.WithLabelValues(table).Add(float64(n))
	}
	metrics.ArchiveOperationsTotal.WithLabelValues("prune", "success").Inc()
	return total, nil
}

// StartPruning launches the retention loop.
func (s *Store) StartPruning(ctx context.Context, wg *sync.WaitGroup) {
	interval, err := s.cfg.GetPruneInterval()
	if err != nil {
		interval = 12 * time.Hour
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Archive pruning loop started", "interval", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("Archive pruning loop stopped")
				return
			case <-ticker.C:
				if n, err := s.Prune(ctx, time.Now()); err != nil {
					logger.Error("Archive pruning failed", "error", err)
				} else if n > 0 {
					logger.Info("Archive pruned", "rows", n)
				}
			}
		}
	}()
}
