// Package degradation tracks process-wide degraded mode. Databases enter
// degradation when their circuit breaker opens or the error handler sees a
// sustained error burst; while degraded, registered strategies reduce load
// until the database is explicitly reset or recovers.
package degradation

import (
	"sync"
	"time"

	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/metrics"
)

type Level int

const (
	LevelNormal Level = iota
	LevelMinor
	LevelMajor
	LevelCritical
	LevelEmergency
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelMinor:
		return "minor"
	case LevelMajor:
		return "major"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Strategy is a load-shedding measure applied while degraded.
type Strategy interface {
	Name() string
	Activate(level Level) error
	Deactivate() error
	IsActive() bool
	Level() Level
}

type BaseStrategy struct {
	name   string
	active bool
	level  Level
	mu     sync.RWMutex
}

func (bs *BaseStrategy) Name() string {
	return bs.name
}

func (bs *BaseStrategy) IsActive() bool {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.active
}

func (bs *BaseStrategy) Level() Level {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.level
}

func (bs *BaseStrategy) setActive(active bool, level Level) {
	bs.mu.Lock()
	bs.active = active
	bs.level = level
	bs.mu.Unlock()
}

// ReadPreferenceStrategy steers reads to replicas while the primary is
// degraded.
type ReadPreferenceStrategy struct {
	BaseStrategy
}

func NewReadPreferenceStrategy() *ReadPreferenceStrategy {
	return &ReadPreferenceStrategy{
		BaseStrategy: BaseStrategy{name: "read_preference"},
	}
}

func (rp *ReadPreferenceStrategy) Activate(level Level) error {
	logger.Info("Activating replica read preference", "level", level.String())
	rp.setActive(true, level)
	return nil
}

func (rp *ReadPreferenceStrategy) Deactivate() error {
	logger.Info("Deactivating replica read preference")
	rp.setActive(false, LevelNormal)
	return nil
}

// RetrySuppressionStrategy shrinks the retry budget so a struggling
// database is not hammered by backoff storms.
type RetrySuppressionStrategy struct {
	BaseStrategy
	normalRetries  int
	currentRetries int
	mu             sync.RWMutex
}

func NewRetrySuppressionStrategy(normalRetries int) *RetrySuppressionStrategy {
	return &RetrySuppressionStrategy{
		BaseStrategy:   BaseStrategy{name: "retry_suppression"},
		normalRetries:  normalRetries,
		currentRetries: normalRetries,
	}
}

func (rs *RetrySuppressionStrategy) Activate(level Level) error {
	rs.setActive(true, level)

	rs.mu.Lock()
	switch {
	case level >= LevelCritical:
		rs.currentRetries = 0
	case level >= LevelMajor:
		rs.currentRetries = 1
	default:
		rs.currentRetries = rs.normalRetries / 2
	}
	rs.mu.Unlock()

	logger.Info("Activating retry suppression", "level", level.String(), "retries", rs.CurrentRetries())
	return nil
}

func (rs *RetrySuppressionStrategy) Deactivate() error {
	logger.Info("Deactivating retry suppression")
	rs.mu.Lock()
	rs.currentRetries = rs.normalRetries
	rs.mu.Unlock()
	rs.setActive(false, LevelNormal)
	return nil
}

func (rs *RetrySuppressionStrategy) CurrentRetries() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.currentRetries
}

// NonEssentialWorkStrategy pauses background work (performance analysis,
// archive pruning) while the system is badly degraded.
type NonEssentialWorkStrategy struct {
	BaseStrategy
}

func NewNonEssentialWorkStrategy() *NonEssentialWorkStrategy {
	return &NonEssentialWorkStrategy{
		BaseStrategy: BaseStrategy{name: "pause_non_essential_work"},
	}
}

func (nw *NonEssentialWorkStrategy) Activate(level Level) error {
	logger.Info("Pausing non-essential background work", "level", level.String())
	nw.setActive(true, level)
	return nil
}

func (nw *NonEssentialWorkStrategy) Deactivate() error {
	logger.Info("Resuming non-essential background work")
	nw.setActive(false, LevelNormal)
	return nil
}

// Record describes one database's degradation state.
type Record struct {
	Database string    `json:"database"`
	Reason   string    `json:"reason"`
	Since    time.Time `json:"since"`
}

// Manager owns process-wide degradation state: which databases are
// degraded, the resulting level, and the strategies active at that level.
type Manager struct {
	mu         sync.RWMutex
	degraded   map[string]Record
	total      int // configured database count, for level calculation
	level      Level
	strategies map[string]Strategy
}

func NewManager(totalDatabases int) *Manager {
	if totalDatabases <= 0 {
		totalDatabases = 1
	}
	return &Manager{
		degraded:   make(map[string]Record),
		total:      totalDatabases,
		strategies: make(map[string]Strategy),
	}
}

func (m *Manager) RegisterStrategy(strategy Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[strategy.Name()] = strategy
}

// Enter marks database as degraded. Re-entering refreshes the reason but
// keeps the original start time.
func (m *Manager) Enter(database, reason string) {
	m.mu.Lock()
	rec, exists := m.degraded[database]
	if exists {
		rec.Reason = reason
		m.degraded[database] = rec
	} else {
		m.degraded[database] = Record{Database: database, Reason: reason, Since: time.Now()}
	}
	m.mu.Unlock()

	if !exists {
		logger.Warn("Database entered degraded mode", "database", database, "reason", reason)
		metrics.DegradationActive.WithLabelValues(database).Set(1)
	}
	m.reevaluate()
}

// Reset clears degradation for one database.
func (m *Manager) Reset(database string) {
	m.mu.Lock()
	_, exists := m.degraded[database]
	delete(m.degraded, database)
	m.mu.Unlock()

	if exists {
		logger.Info("Database left degraded mode", "database", database)
		metrics.DegradationActive.WithLabelValues(database).Set(0)
	}
	m.reevaluate()
}

// ResetAll clears degradation globally.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	databases := make([]string, 0, len(m.degraded))
	for db := range m.degraded {
		databases = append(databases, db)
	}
	m.degraded = make(map[string]Record)
	m.mu.Unlock()

	for _, db := range databases {
		metrics.DegradationActive.WithLabelValues(db).Set(0)
	}
	if len(databases) > 0 {
		logger.Info("Degraded mode cleared for all databases", "count", len(databases))
	}
	m.reevaluate()
}

// IsDegraded reports whether a specific database is degraded.
func (m *Manager) IsDegraded(database string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.degraded[database]
	return ok
}

// CurrentLevel returns the process-wide degradation level.
func (m *Manager) CurrentLevel() Level {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.level
}

// Records returns the degradation record of every degraded database.
func (m *Manager) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.degraded))
	for _, rec := range m.degraded {
		out = append(out, rec)
	}
	return out
}

// ActiveStrategies returns the names and levels of active strategies.
func (m *Manager) ActiveStrategies() map[string]Level {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := make(map[string]Level)
	for name, strategy := range m.strategies {
		if strategy.IsActive() {
			active[name] = strategy.Level()
		}
	}
	return active
}

// reevaluate recomputes the level from the degraded share and applies
// strategy changes.
func (m *Manager) reevaluate() {
	m.mu.Lock()
	newLevel := m.calculateLevel()
	oldLevel := m.level
	m.level = newLevel

	strategies := make(map[string]Strategy, len(m.strategies))
	for k, v := range m.strategies {
		strategies[k] = v
	}
	m.mu.Unlock()

	if oldLevel == newLevel {
		return
	}
	logger.Info("Degradation level changed", "from", oldLevel.String(), "to", newLevel.String())

	for name, strategy := range strategies {
		shouldActivate := shouldActivateStrategy(name, newLevel)
		isActive := strategy.IsActive()

		if shouldActivate && !isActive {
			if err := strategy.Activate(newLevel); err != nil {
				logger.Error("Failed to activate strategy", "strategy", name, "error", err)
			}
		} else if !shouldActivate && isActive {
			if err := strategy.Deactivate(); err != nil {
				logger.Error("Failed to deactivate strategy", "strategy", name, "error", err)
			}
		} else if shouldActivate && isActive && strategy.Level() != newLevel {
			if err := strategy.Deactivate(); err != nil {
				logger.Error("Failed to deactivate strategy for reactivation", "strategy", name, "error", err)
				continue
			}
			if err := strategy.Activate(newLevel); err != nil {
				logger.Error("Failed to reactivate strategy", "strategy", name, "error", err)
			}
		}
	}
}

// calculateLevel maps the degraded share of databases to a level. Caller
// holds the lock.
func (m *Manager) calculateLevel() Level {
	n := len(m.degraded)
	if n == 0 {
		return LevelNormal
	}
	share := float64(n) / float64(m.total)
	switch {
	case share >= 1:
		return LevelEmergency
	case share > 0.5:
		return LevelCritical
	case n > 1:
		return LevelMajor
	default:
		return LevelMinor
	}
}

func shouldActivateStrategy(name string, level Level) bool {
	switch name {
	case "read_preference":
		return level >= LevelMinor
	case "retry_suppression":
		return level >= LevelMajor
	case "pause_non_essential_work":
		return level >= LevelCritical
	default:
		return false
	}
}
