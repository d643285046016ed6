package monitor

import (
	"context"
	"time"

	"github.com/dbvigil/dbvigil/db"
	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/metrics"
	"github.com/dbvigil/dbvigil/pkg/pool"
	"github.com/dbvigil/dbvigil/pkg/sqlanalyze"
	"github.com/dbvigil/dbvigil/pkg/sysinfo"
)

// Collector produces one snapshot per database. The live implementation
// queries the engine; tests substitute fakes.
type Collector interface {
	Collect(ctx context.Context, database string) (*DatabaseMetrics, error)
}

// LiveCollector gathers snapshots from the pools, the engine introspection
// queries, the host sampler and the slow query analyzer.
type LiveCollector struct {
	pools         *pool.Manager
	analyzer      *sqlanalyze.Analyzer
	sampler       *sysinfo.Sampler
	slowThreshold time.Duration
}

func NewLiveCollector(pools *pool.Manager, analyzer *sqlanalyze.Analyzer, sampler *sysinfo.Sampler, slowThreshold time.Duration) *LiveCollector {
	return &LiveCollector{pools: pools, analyzer: analyzer, sampler: sampler, slowThreshold: slowThreshold}
}

func (c *LiveCollector) Collect(ctx context.Context, database string) (*DatabaseMetrics, error) {
	dbase, err := c.pools.Database(database)
	if err != nil {
		return nil, err
	}

	m := &DatabaseMetrics{
		Database:  database,
		Timestamp: time.Now(),
	}

	connStats, err := dbase.ConnectionStats(ctx)
	if err != nil {
		// The database is unreachable; report the snapshot as such instead
		// of failing the whole cycle.
		logger.Warn("Connection stats poll failed", "database", database, "error", err)
		m.Status = StatusUnreachable
		c.export(m)
		return m, nil
	}
	m.Connections = ConnectionMetrics{
		Total:             connStats.Total,
		Active:            connStats.Active,
		Idle:              connStats.Idle,
		IdleInTransaction: connStats.IdleInTransaction,
		MaxConnections:    connStats.MaxConnections,
		UsagePercent:      connStats.UsagePercent(),
	}

	if pm, ok := c.pools.Metrics()[database]; ok {
		m.Queries.AverageQueryTimeMs = float64(pm.AverageResponseTime.Microseconds()) / 1000.0
	}
	c.intakeSlowQueries(ctx, database, dbase)
	m.Queries.SlowQueriesPerMinute = slowQueryRate(c.analyzer, database, m.Timestamp)

	if engine, err := dbase.EngineStats(ctx); err != nil {
		logger.Warn("Engine stats poll failed", "database", database, "error", err)
	} else {
		m.Engine = EngineMetrics{
			CacheHitRatioPercent: engine.CacheHitRatio,
			XactCommit:           engine.XactCommit,
			XactRollback:         engine.XactRollback,
			Deadlocks:            engine.Deadlocks,
			TempFiles:            engine.TempFiles,
			TupFetched:           engine.TupFetched,
			TupInserted:          engine.TupInserted,
		}
	}

	if lag, isReplica, err := dbase.ReplicationLag(ctx); err != nil {
		logger.Warn("Replication lag poll failed", "database", database, "error", err)
	} else {
		m.Replication = ReplicationMetrics{
			IsReplica:  isReplica,
			LagSeconds: lag.Seconds(),
		}
	}

	sample := c.sampler.Sample(ctx)
	m.System = SystemMetrics{
		CPUPercent:    sample.CPUPercent,
		MemoryPercent: sample.MemoryPercent,
		DiskPercent:   sample.DiskPercent,
		Load1:         sample.Load1,
	}

	m.HealthScore = computeHealthScore(m)
	m.Status = deriveStatus(m)

	c.export(m)
	return m, nil
}

// intakeSlowQueries feeds statements running longer than the configured
// threshold into the analyzer. Row counts are not available from
// pg_stat_activity, so those fields stay zero.
func (c *LiveCollector) intakeSlowQueries(ctx context.Context, database string, dbase db.Introspector) {
	if c.analyzer == nil || c.slowThreshold <= 0 {
		return
	}
	backends, err := dbase.LongRunningQueries(ctx, c.slowThreshold)
	if err != nil {
		logger.Warn("Slow query poll failed", "database", database, "error", err)
		return
	}
	for _, b := range backends {
		if b.Query == "" {
			continue
		}
		c.analyzer.Analyze(database, b.Query, b.Duration, 0, 0)
	}
}

// slowQueryRate counts analyzer observations from the last minute.
func slowQueryRate(analyzer *sqlanalyze.Analyzer, database string, now time.Time) float64 {
	if analyzer == nil {
		return 0
	}
	var count float64
	for _, q := range analyzer.QueriesSince(now.Add(-time.Minute)) {
		if q.Database == database {
			count++
		}
	}
	return count
}

// export publishes the snapshot to the prometheus gauges.
func (c *LiveCollector) export(m *DatabaseMetrics) {
	metrics.DBHealthScore.WithLabelValues(m.Database).Set(m.HealthScore)
	metrics.DBHealthStatus.WithLabelValues(m.Database).Set(statusGaugeValue(m.Status))
	metrics.DBConnectionUsage.WithLabelValues(m.Database).Set(m.Connections.UsagePercent)
	metrics.DBAverageQueryTime.WithLabelValues(m.Database).Set(m.Queries.AverageQueryTimeMs)
	metrics.DBCacheHitRatio.WithLabelValues(m.Database).Set(m.Engine.CacheHitRatioPercent)
	if m.Replication.IsReplica {
		metrics.DBReplicationLag.WithLabelValues(m.Database).Set(m.Replication.LagSeconds)
	}
	metrics.SystemResourceUsage.WithLabelValues(m.Database, "cpu").Set(m.System.CPUPercent)
	metrics.SystemResourceUsage.WithLabelValues(m.Database, "memory").Set(m.System.MemoryPercent)
	metrics.SystemResourceUsage.WithLabelValues(m.Database, "disk").Set(m.System.DiskPercent)
}

// Introspector exposes the engine surface for recovery actions.
func (c *LiveCollector) Introspector(database string) (db.Introspector, error) {
	return c.pools.Database(database)
}
