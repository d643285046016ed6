package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

// ConnectionStats summarizes pg_stat_activity for one database.
type ConnectionStats struct {
	Total             int
	Active            int
	Idle              int
	IdleInTransaction int
	Waiting           int
	MaxConnections    int
}

// UsagePercent reports connections in use relative to max_connections.
func (s ConnectionStats) UsagePercent() float64 {
	if s.MaxConnections <= 0 {
		return 0
	}
	return float64(s.Total) / float64(s.MaxConnections) * 100
}

// Backend describes one server process from pg_stat_activity.
type Backend struct {
	PID           int
	User          string
	ApplicationID string
	State         string
	Query         string
	Duration      time.Duration
}

// EngineStats carries the pg_stat_database counters the monitor samples.
type EngineStats struct {
	XactCommit    int64
	XactRollback  int64
	BlksRead      int64
	BlksHit       int64
	TupReturned   int64
	TupFetched    int64
	TupInserted   int64
	TupUpdated    int64
	TupDeleted    int64
	Deadlocks     int64
	TempFiles     int64
	TempBytes     int64
	CacheHitRatio float64
}

// Introspector is the narrow engine-introspection surface consumed by the
// monitor and recovery code. *Database implements it against PostgreSQL;
// tests substitute fakes.
type Introspector interface {
	ConnectionStats(ctx context.Context) (ConnectionStats, error)
	LongRunningQueries(ctx context.Context, olderThan time.Duration) ([]Backend, error)
	IdleBackends(ctx context.Context, idleFor time.Duration) ([]Backend, error)
	EngineStats(ctx context.Context) (EngineStats, error)
	ReplicationLag(ctx context.Context) (time.Duration, bool, error)
	TerminateBackend(ctx context.Context, pid int) (bool, error)
	CancelBackend(ctx context.Context, pid int) (bool, error)
	ResetEngineStats(ctx context.Context) error
}

var _ Introspector = (*Database)(nil)

// ConnectionStats returns current backend counts and the server connection limit.
func (db *Database) ConnectionStats(ctx context.Context) (ConnectionStats, error) {
	var stats ConnectionStats

	row := db.TimedQueryRow(ctx, "connection_stats", `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN state = 'active' THEN 1 ELSE 0 END), 0) AS active,
			COALESCE(SUM(CASE WHEN state = 'idle' THEN 1 ELSE 0 END), 0) AS idle,
			COALESCE(SUM(CASE WHEN state LIKE 'idle in transaction%' THEN 1 ELSE 0 END), 0) AS idle_in_txn,
			COALESCE(SUM(CASE WHEN wait_event IS NOT NULL THEN 1 ELSE 0 END), 0) AS waiting
		FROM pg_stat_activity
		WHERE datname = current_database()`)
	if err := row.Scan(&stats.Total, &stats.Active, &stats.Idle, &stats.IdleInTransaction, &stats.Waiting); err != nil {
		return ConnectionStats{}, err
	}

	// SHOW returns text
	row = db.TimedQueryRow(ctx, "connection_stats", `SHOW max_connections`)
	var maxStr string
	if err := row.Scan(&maxStr); err != nil {
		return ConnectionStats{}, err
	}
	maxConns, err := strconv.Atoi(maxStr)
	if err != nil {
		return ConnectionStats{}, fmt.Errorf("unexpected max_connections value %q: %w", maxStr, err)
	}
	stats.MaxConnections = maxConns

	return stats, nil
}

// LongRunningQueries lists active backends whose current statement has been
// running longer than the given threshold.
func (db *Database) LongRunningQueries(ctx context.Context, olderThan time.Duration) ([]Backend, error) {
	rows, err := db.TimedQuery(ctx, "long_running_queries", `
		SELECT pid, COALESCE(usename, ''), COALESCE(application_name, ''),
		       COALESCE(state, ''), COALESCE(query, ''),
		       EXTRACT(EPOCH FROM (now() - query_start))
		FROM pg_stat_activity
		WHERE datname = current_database()
		  AND state = 'active'
		  AND pid <> pg_backend_pid()
		  AND query_start < now() - $1::interval
		ORDER BY query_start`,
		olderThan.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBackends(rows)
}

// IdleBackends lists backends that have been idle longer than the threshold.
func (db *Database) IdleBackends(ctx context.Context, idleFor time.Duration) ([]Backend, error) {
	rows, err := db.TimedQuery(ctx, "idle_backends", `
		SELECT pid, COALESCE(usename, ''), COALESCE(application_name, ''),
		       COALESCE(state, ''), COALESCE(query, ''),
		       EXTRACT(EPOCH FROM (now() - state_change))
		FROM pg_stat_activity
		WHERE datname = current_database()
		  AND state = 'idle'
		  AND pid <> pg_backend_pid()
		  AND state_change < now() - $1::interval
		ORDER BY state_change`,
		idleFor.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBackends(rows)
}

func scanBackends(rows pgx.Rows) ([]Backend, error) {
	var backends []Backend
	for rows.Next() {
		var b Backend
		var seconds float64
		if err := rows.Scan(&b.PID, &b.User, &b.ApplicationID, &b.State, &b.Query, &seconds); err != nil {
			return nil, err
		}
		b.Duration = time.Duration(seconds * float64(time.Second))
		backends = append(backends, b)
	}
	return backends, rows.Err()
}

// EngineStats samples the pg_stat_database counters for the current database.
func (db *Database) EngineStats(ctx context.Context) (EngineStats, error) {
	var s EngineStats
	row := db.TimedQueryRow(ctx, "engine_stats", `
		SELECT xact_commit, xact_rollback, blks_read, blks_hit,
		       tup_returned, tup_fetched, tup_inserted, tup_updated, tup_deleted,
		       deadlocks, temp_files, temp_bytes
		FROM pg_stat_database
		WHERE datname = current_database()`)
	if err := row.Scan(&s.XactCommit, &s.XactRollback, &s.BlksRead, &s.BlksHit,
		&s.TupReturned, &s.TupFetched, &s.TupInserted, &s.TupUpdated, &s.TupDeleted,
		&s.Deadlocks, &s.TempFiles, &s.TempBytes); err != nil {
		return EngineStats{}, err
	}
	s.CacheHitRatio = CacheHitRatio(s.BlksHit, s.BlksRead)
	return s, nil
}

// CacheHitRatio computes the buffer cache hit ratio in percent.
// With no block activity yet it reports 100 rather than alarming on zero.
func CacheHitRatio(blksHit, blksRead int64) float64 {
	total := blksHit + blksRead
	if total <= 0 {
		return 100
	}
	return float64(blksHit) / float64(total) * 100
}

// ReplicationLag reports the replay lag on a standby. The bool is false on a
// primary, where lag does not apply.
func (db *Database) ReplicationLag(ctx context.Context) (time.Duration, bool, error) {
	var inRecovery bool
	row := db.TimedQueryRow(ctx, "replication_lag", `SELECT pg_is_in_recovery()`)
	if err := row.Scan(&inRecovery); err != nil {
		return 0, false, err
	}
	if !inRecovery {
		return 0, false, nil
	}

	var seconds *float64
	row = db.TimedQueryRow(ctx, "replication_lag", `
		SELECT EXTRACT(EPOCH FROM (now() - pg_last_xact_replay_timestamp()))`)
	if err := row.Scan(&seconds); err != nil {
		return 0, false, err
	}
	if seconds == nil {
		// No WAL replayed since startup.
		return 0, true, nil
	}
	return time.Duration(*seconds * float64(time.Second)), true, nil
}

// TerminateBackend forcibly disconnects a backend. Used by recovery to clear
// stuck idle connections.
func (db *Database) TerminateBackend(ctx context.Context, pid int) (bool, error) {
	var ok bool
	row := db.WritePool.QueryRow(ctx, `SELECT pg_terminate_backend($1)`, pid)
	if err := row.Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// CancelBackend cancels the backend's current query without disconnecting it.
func (db *Database) CancelBackend(ctx context.Context, pid int) (bool, error) {
	var ok bool
	row := db.WritePool.QueryRow(ctx, `SELECT pg_cancel_backend($1)`, pid)
	if err := row.Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// ResetEngineStats resets the pg_stat_database counters for the current database.
func (db *Database) ResetEngineStats(ctx context.Context) error {
	_, err := db.WritePool.Exec(ctx, `SELECT pg_stat_reset()`)
	return err
}
