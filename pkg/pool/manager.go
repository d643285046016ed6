// Package pool manages named connection pools for the monitored databases.
// It hands out scoped connections, tracks utilization, health-checks each
// pool and rebuilds failed pools under a fresh generation.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/consts"
	"github.com/dbvigil/dbvigil/db"
	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/metrics"
)

// Status describes one pool for the status API.
type Status struct {
	PoolName    string    `json:"pool_name"`
	Generation  int       `json:"generation"`
	Healthy     bool      `json:"healthy"`
	LastChecked time.Time `json:"last_checked"`
	LastError   string    `json:"last_error,omitempty"`
}

// managedPool pairs a database with its per-generation counters.
type managedPool struct {
	mu          sync.RWMutex
	name        string
	generation  int
	database    *db.Database
	dbConfig    *config.MonitoredDatabaseConfig
	stats       *poolStats
	healthy     bool
	lastChecked time.Time
	lastError   string
	closed      bool
}

// Manager owns all named pools.
type Manager struct {
	mu         sync.RWMutex
	pools      map[string]*managedPool
	cfg        config.PoolConfig
	logQueries bool
}

func NewManager(cfg config.PoolConfig, logQueries bool) *Manager {
	return &Manager{
		pools:      make(map[string]*managedPool),
		cfg:        cfg,
		logQueries: logQueries,
	}
}

// Register builds the pools for a monitored database and tracks them under
// the database alias.
func (m *Manager) Register(ctx context.Context, dbConfig *config.MonitoredDatabaseConfig) error {
	database, err := db.NewDatabaseFromConfig(ctx, dbConfig, m.logQueries)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pools[dbConfig.Alias]; exists {
		database.Close()
		return fmt.Errorf("pool %q already registered", dbConfig.Alias)
	}

	m.pools[dbConfig.Alias] = &managedPool{
		name:        dbConfig.Alias,
		generation:  1,
		database:    database,
		dbConfig:    dbConfig,
		stats:       newPoolStats(),
		healthy:     true,
		lastChecked: time.Now(),
	}

	logger.Info("Registered pool", "pool", dbConfig.Alias)
	return nil
}

func (m *Manager) pool(name string) (*managedPool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", consts.ErrPoolNotFound, name)
	}
	return p, nil
}

// Database returns the underlying database for introspection queries.
func (m *Manager) Database(name string) (*db.Database, error) {
	p, err := m.pool(name)
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, fmt.Errorf("%w: %s", consts.ErrPoolClosed, name)
	}
	return p.database, nil
}

// Names lists the registered pool names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	return names
}

// Conn is a scoped connection. Release is safe on every exit path and may
// be called more than once.
type Conn struct {
	conn        *pgxpool.Conn
	stats       *poolStats
	pool        string
	acquired    time.Time
	releaseOnce sync.Once
}

// Conn exposes the underlying pgx pool connection.
func (c *Conn) Conn() *pgxpool.Conn {
	return c.conn
}

// Release returns the connection to its pool and records the held duration.
func (c *Conn) Release() {
	c.releaseOnce.Do(func() {
		held := time.Since(c.acquired)
		c.conn.Release()
		c.stats.recordRelease(held)
	})
}

// Acquire checks a connection out of the named pool. The read-only flag
// selects the read pool when a replica is configured.
func (m *Manager) Acquire(ctx context.Context, poolName string, readOnly bool) (*Conn, error) {
	p, err := m.pool(poolName)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", consts.ErrPoolClosed, poolName)
	}
	database := p.database
	stats := p.stats
	p.mu.RUnlock()

	var target *pgxpool.Pool
	if readOnly {
		target = database.GetReadPool()
	} else {
		target = database.GetWritePool()
	}

	acquireTimeout, err := m.cfg.GetAcquireTimeout()
	if err != nil {
		return nil, err
	}
	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	start := time.Now()
	conn, err := target.Acquire(acquireCtx)
	metrics.PoolAcquireDuration.WithLabelValues(poolName).Observe(time.Since(start).Seconds())
	if err != nil {
		stats.recordAcquireFailure()
		metrics.PoolAcquiresTotal.WithLabelValues(poolName, "failure").Inc()
		return nil, fmt.Errorf("%w: %s: %v", consts.ErrPoolExhausted, poolName, err)
	}
	stats.recordAcquire()
	metrics.PoolAcquiresTotal.WithLabelValues(poolName, "success").Inc()

	// Warn when the write pool nears saturation.
	poolStat := target.Stat()
	if poolStat.MaxConns() > 0 &&
		float64(poolStat.AcquiredConns())/float64(poolStat.MaxConns()) >= 0.9 {
		metrics.PoolExhaustionWarnings.WithLabelValues(poolName).Inc()
		logger.Warn("Pool nearing exhaustion", "pool", poolName,
			"acquired", poolStat.AcquiredConns(), "max", poolStat.MaxConns())
	}

	return &Conn{
		conn:     conn,
		stats:    stats,
		pool:     poolName,
		acquired: time.Now(),
	}, nil
}

// Status returns a read-only health snapshot for every pool.
func (m *Manager) Status() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Status, len(m.pools))
	for name, p := range m.pools {
		p.mu.RLock()
		out[name] = Status{
			PoolName:    generationName(p.name, p.generation),
			Generation:  p.generation,
			Healthy:     p.healthy,
			LastChecked: p.lastChecked,
			LastError:   p.lastError,
		}
		p.mu.RUnlock()
	}
	return out
}

// Metrics returns a read-only counter snapshot for every pool.
func (m *Manager) Metrics() map[string]Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Metrics, len(m.pools))
	for name, p := range m.pools {
		p.mu.RLock()
		active, peak, total, failed, avg, createdAt := p.stats.snapshot()
		stat := p.database.GetWritePool().Stat()
		out[name] = Metrics{
			PoolName:            generationName(p.name, p.generation),
			Generation:          p.generation,
			PoolSize:            int(stat.MaxConns()),
			ActiveConnections:   active,
			IdleConnections:     int(stat.IdleConns()),
			TotalRequests:       total,
			FailedRequests:      failed,
			AverageResponseTime: avg,
			PeakConcurrency:     peak,
			CreatedAt:           createdAt,
		}
		p.mu.RUnlock()
	}
	return out
}

func generationName(name string, generation int) string {
	return fmt.Sprintf("%s_gen%d", name, generation)
}

// StartHealthChecks runs the periodic pool health check loop until the
// context is cancelled.
func (m *Manager) StartHealthChecks(ctx context.Context, wg *sync.WaitGroup) error {
	interval, err := m.cfg.GetHealthCheckInterval()
	if err != nil {
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.Info("Pool health check loop started", "interval", interval)
		for {
			select {
			case <-ctx.Done():
				logger.Info("Pool health check loop stopped")
				return
			case <-ticker.C:
				m.checkAll(ctx)
			}
		}
	}()
	return nil
}

func (m *Manager) checkAll(ctx context.Context) {
	for _, name := range m.Names() {
		m.checkPool(ctx, name)
	}
}

func (m *Manager) checkPool(ctx context.Context, name string) {
	p, err := m.pool(name)
	if err != nil {
		return
	}

	queryTimeout, err := m.cfg.GetQueryTimeout()
	if err != nil {
		queryTimeout = 30 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	p.mu.RLock()
	database := p.database
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return
	}

	var one int
	err = database.GetWritePool().QueryRow(checkCtx, "SELECT 1").Scan(&one)

	p.mu.Lock()
	p.lastChecked = time.Now()
	if err == nil {
		p.healthy = true
		p.lastError = ""
		p.mu.Unlock()
		database.CollectPoolStats()
		return
	}
	p.healthy = false
	p.lastError = err.Error()
	p.mu.Unlock()

	logger.Warn("Pool health check failed, rebuilding", "pool", name, "error", err)
	if rebuildErr := m.Rebuild(ctx, name); rebuildErr != nil {
		logger.Error("Pool rebuild failed", "pool", name, "error", rebuildErr)
	}
}

// Rebuild replaces a pool with a freshly connected one under a new
// generation. Callers holding connections from the old generation keep them
// until release; the old pool is closed once drained.
func (m *Manager) Rebuild(ctx context.Context, name string) error {
	p, err := m.pool(name)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: %s", consts.ErrPoolClosed, name)
	}

	fresh, err := db.NewDatabaseFromConfig(ctx, p.dbConfig, m.logQueries)
	if err != nil {
		metrics.PoolRebuildsTotal.WithLabelValues(name, "failure").Inc()
		return fmt.Errorf("failed to rebuild pool %q: %w", name, err)
	}

	old := p.database
	p.database = fresh
	p.generation++
	p.stats = newPoolStats()
	p.healthy = true
	p.lastError = ""
	metrics.PoolRebuildsTotal.WithLabelValues(name, "success").Inc()
	logger.Info("Pool rebuilt", "pool", name, "generation", p.generation)

	// pgxpool.Close waits for acquired connections to be released.
	go old.Close()

	return nil
}

// Close shuts down every pool. Blocks until held connections are released.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, p := range m.pools {
		p.mu.Lock()
		if !p.closed {
			p.closed = true
			p.database.Close()
		}
		p.mu.Unlock()
		logger.Info("Pool closed", "pool", name)
	}
}
