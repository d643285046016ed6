// Package db builds pgx connection pools for monitored database endpoints
// and exposes the engine introspection queries the monitor consumes.
package db

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/consts"
	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/metrics"
)

// Database holds the read and write pools for one monitored database.
type Database struct {
	Alias     string
	WritePool *pgxpool.Pool // Write operations pool
	ReadPool  *pgxpool.Pool // Read operations pool
}

// NewDatabaseFromConfig creates pools for a monitored database with an
// optional read/write split.
func NewDatabaseFromConfig(ctx context.Context, dbConfig *config.MonitoredDatabaseConfig, logQueries bool) (*Database, error) {
	if dbConfig.Write == nil {
		return nil, fmt.Errorf("write endpoint configuration is required for %q", dbConfig.Alias)
	}

	writePool, err := createPoolFromEndpoint(ctx, dbConfig.Write, logQueries, "write")
	if err != nil {
		return nil, fmt.Errorf("failed to create write pool for %q: %w", dbConfig.Alias, err)
	}

	var readPool *pgxpool.Pool
	if dbConfig.Read != nil {
		readPool, err = createPoolFromEndpoint(ctx, dbConfig.Read, logQueries, "read")
		if err != nil {
			writePool.Close()
			return nil, fmt.Errorf("failed to create read pool for %q: %w", dbConfig.Alias, err)
		}
	} else {
		logger.Info("No read endpoint specified, using write pool for read operations", "database", dbConfig.Alias)
		readPool = writePool
	}

	return &Database{
		Alias:     dbConfig.Alias,
		WritePool: writePool,
		ReadPool:  readPool,
	}, nil
}

func (db *Database) Close() {
	if db.WritePool != nil {
		db.WritePool.Close()
	}
	if db.ReadPool != nil && db.ReadPool != db.WritePool {
		db.ReadPool.Close()
	}
}

// CollectPoolStats gathers stats from both pools and updates the gauges.
func (db *Database) CollectPoolStats() {
	if db.WritePool != nil {
		stats := db.WritePool.Stat()
		metrics.PoolTotalConns.WithLabelValues(db.Alias, "write").Set(float64(stats.TotalConns()))
		metrics.PoolIdleConns.WithLabelValues(db.Alias, "write").Set(float64(stats.IdleConns()))
		metrics.PoolInUseConns.WithLabelValues(db.Alias, "write").Set(float64(stats.AcquiredConns()))
	}
	if db.ReadPool != nil && db.ReadPool != db.WritePool {
		stats := db.ReadPool.Stat()
		metrics.PoolTotalConns.WithLabelValues(db.Alias, "read").Set(float64(stats.TotalConns()))
		metrics.PoolIdleConns.WithLabelValues(db.Alias, "read").Set(float64(stats.IdleConns()))
		metrics.PoolInUseConns.WithLabelValues(db.Alias, "read").Set(float64(stats.AcquiredConns()))
	}
}

// GetWritePool returns the connection pool for write operations
func (db *Database) GetWritePool() *pgxpool.Pool {
	return db.WritePool
}

// GetReadPool returns the connection pool for read operations
func (db *Database) GetReadPool() *pgxpool.Pool {
	return db.ReadPool
}

// GetReadPoolWithContext returns the appropriate pool for read operations,
// honoring session pinning to the primary.
func (db *Database) GetReadPoolWithContext(ctx context.Context) *pgxpool.Pool {
	if usePrimary, ok := ctx.Value(consts.UsePrimaryDBKey).(bool); ok && usePrimary {
		return db.WritePool
	}
	return db.ReadPool
}

// Ping verifies both pools are reachable.
func (db *Database) Ping(ctx context.Context) error {
	if err := db.WritePool.Ping(ctx); err != nil {
		return fmt.Errorf("write pool ping failed: %w", err)
	}
	if db.ReadPool != db.WritePool {
		if err := db.ReadPool.Ping(ctx); err != nil {
			return fmt.Errorf("read pool ping failed: %w", err)
		}
	}
	return nil
}

// createPoolFromEndpoint creates a connection pool from an endpoint configuration
func createPoolFromEndpoint(ctx context.Context, endpoint *config.DatabaseEndpointConfig, logQueries bool, poolType string) (*pgxpool.Pool, error) {
	if len(endpoint.Hosts) == 0 {
		return nil, fmt.Errorf("at least one host must be specified")
	}

	// For now, randomly select one host. In the future, this could implement load balancing
	selectedHost := endpoint.Hosts[rand.Intn(len(endpoint.Hosts))]

	// Priority: 1) host:port in hosts array, 2) separate port field, 3) default 5432
	if !strings.Contains(selectedHost, ":") {
		portStr, err := endpoint.GetPort()
		if err != nil {
			return nil, err
		}
		selectedHost = fmt.Sprintf("%s:%s", selectedHost, portStr)
	}

	sslMode := "disable"
	if endpoint.TLSMode {
		sslMode = "require"
	}

	connString := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		endpoint.User, endpoint.Password, selectedHost, endpoint.Name, sslMode)

	logger.Info("Connecting to database", "pool", poolType, "user", endpoint.User,
		"host", selectedHost, "name", endpoint.Name, "sslmode", sslMode, "hosts", endpoint.Hosts)

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	if logQueries {
		poolCfg.ConnConfig.Tracer = &queryTracer{}
	}

	if endpoint.MaxConns > 0 {
		poolCfg.MaxConns = int32(endpoint.MaxConns)
	}
	if endpoint.MinConns > 0 {
		poolCfg.MinConns = int32(endpoint.MinConns)
	}

	if endpoint.MaxConnLifetime != "" {
		lifetime, err := endpoint.GetMaxConnLifetime()
		if err != nil {
			return nil, fmt.Errorf("invalid max_conn_lifetime: %w", err)
		}
		poolCfg.MaxConnLifetime = lifetime
	}

	if endpoint.MaxConnIdleTime != "" {
		idleTime, err := endpoint.GetMaxConnIdleTime()
		if err != nil {
			return nil, fmt.Errorf("invalid max_conn_idle_time: %w", err)
		}
		poolCfg.MaxConnIdleTime = idleTime
	}

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	logger.Info("Pool created", "pool", poolType,
		"max_conns", dbPool.Config().MaxConns, "min_conns", dbPool.Config().MinConns,
		"max_lifetime", dbPool.Config().MaxConnLifetime, "max_idle", dbPool.Config().MaxConnIdleTime)

	return dbPool, nil
}

// Database timing helpers for measured operations

// TimedQueryRow wraps QueryRow with duration metrics.
func (db *Database) TimedQueryRow(ctx context.Context, operation string, sql string, args ...interface{}) pgx.Row {
	start := time.Now()

	pool := db.GetReadPoolWithContext(ctx)
	row := pool.QueryRow(ctx, sql, args...)

	role := "read"
	if pool == db.WritePool {
		role = "write"
	}
	metrics.QueryDuration.WithLabelValues(db.Alias, operation, role).Observe(time.Since(start).Seconds())
	metrics.QueriesTotal.WithLabelValues(db.Alias, operation, "success", role).Inc()

	return row
}

// TimedQuery wraps Query with duration metrics.
func (db *Database) TimedQuery(ctx context.Context, operation string, sql string, args ...interface{}) (pgx.Rows, error) {
	start := time.Now()

	pool := db.GetReadPoolWithContext(ctx)
	rows, err := pool.Query(ctx, sql, args...)

	role := "read"
	if pool == db.WritePool {
		role = "write"
	}
	metrics.QueryDuration.WithLabelValues(db.Alias, operation, role).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueriesTotal.WithLabelValues(db.Alias, operation, "failure", role).Inc()
	} else {
		metrics.QueriesTotal.WithLabelValues(db.Alias, operation, "success", role).Inc()
	}

	return rows, err
}

// TimedExec wraps Exec with duration metrics. Writes always use the write pool.
func (db *Database) TimedExec(ctx context.Context, operation string, sql string, args ...interface{}) error {
	start := time.Now()

	pool := db.GetWritePool()
	_, err := pool.Exec(ctx, sql, args...)

	metrics.QueryDuration.WithLabelValues(db.Alias, operation, "write").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueriesTotal.WithLabelValues(db.Alias, operation, "failure", "write").Inc()
	} else {
		metrics.QueriesTotal.WithLabelValues(db.Alias, operation, "success", "write").Inc()
	}

	return err
}
