package perfmon

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dbvigil/dbvigil/pkg/monitor"
	"github.com/dbvigil/dbvigil/pkg/sqlanalyze"
)

func splitKey(key string) (string, string, bool) {
	return strings.Cut(key, "|")
}

// updateQueryRecommendations turns recently seen slow query patterns into
// prioritized optimization advice, replacing older advice for the same
// pattern.
func (m *Monitor) updateQueryRecommendations(now time.Time) {
	if m.analyzer == nil {
		return
	}
	recent := m.analyzer.QueriesSince(now.Add(-time.Hour))

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range recent {
		key := q.Database + "|" + q.QueryHash
		m.queryRecs[key] = QueryRecommendation{
			ID:                   uuid.NewString(),
			Database:             q.Database,
			QueryHash:            q.QueryHash,
			QueryText:            q.QueryText,
			Priority:             queryPriority(q),
			EstimatedImprovement: estimatedImprovement(q),
			Suggestions:          q.Suggestions,
			Frequency:            q.Frequency,
			Timestamp:            now,
		}
	}
}

// queryPriority ranks a slow query pattern by its worst execution and how
// often it recurs.
func queryPriority(q sqlanalyze.SlowQuery) string {
	switch {
	case q.ExecutionTime > 10*time.Second || q.Frequency > 100:
		return "critical"
	case q.ExecutionTime > 5*time.Second || q.Frequency > 50:
		return "high"
	case q.ExecutionTime > 2*time.Second || q.Frequency > 10:
		return "medium"
	default:
		return "low"
	}
}

// estimatedImprovement guesses the win from fixing the query, driven by
// the examined/sent ratio (an index usually removes the excess scanning)
// topped up for very slow executions. Capped at 90 percent.
func estimatedImprovement(q sqlanalyze.SlowQuery) float64 {
	sent := q.RowsSent
	if sent <= 0 {
		sent = 1
	}
	ratio := float64(q.RowsExamined) / float64(sent)

	var estimate float64
	switch {
	case ratio >= 1000:
		estimate = 80
	case ratio >= 100:
		estimate = 60
	case ratio >= 10:
		estimate = 40
	default:
		estimate = 20
	}
	if q.ExecutionTime > 5*time.Second {
		estimate += 10
	}
	if estimate > 90 {
		estimate = 90
	}
	return estimate
}

// systemRecThresholds are the sustained-usage levels at which resource
// advice is emitted, below the capacity-critical levels.
var systemRecThresholds = map[string]float64{
	"cpu":         85,
	"memory":      85,
	"connections": 80,
}

var systemRecAdvice = map[string]string{
	"cpu":         "CPU usage is sustained high; review expensive queries or scale compute",
	"memory":      "Memory usage is sustained high; review work_mem and connection count or add memory",
	"connections": "Connection usage is sustained high; increase the pool ceiling or add a connection proxy",
}

// updateSystemRecommendations emits resource advice for databases running
// hot, with a per-(database, resource) cooldown.
func (m *Monitor) updateSystemRecommendations(snapshots map[string]*monitor.DatabaseMetrics, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for database, snap := range snapshots {
		if snap.Status == monitor.StatusUnreachable {
			continue
		}
		usages := map[string]float64{
			"cpu":         snap.System.CPUPercent,
			"memory":      snap.System.MemoryPercent,
			"connections": snap.Connections.UsagePercent,
		}
		for resource, usage := range usages {
			if usage < systemRecThresholds[resource] {
				continue
			}
			key := database + "|" + resource
			if now.Sub(m.lastSystemRec[key]) < systemRecCooldown {
				continue
			}
			m.lastSystemRec[key] = now
			m.systemRecs = append(m.systemRecs, SystemRecommendation{
				ID:             uuid.NewString(),
				Database:       database,
				Resource:       resource,
				CurrentUsage:   usage,
				Recommendation: fmt.Sprintf("%s (currently %.1f%%)", systemRecAdvice[resource], usage),
				Timestamp:      now,
			})
		}
	}
}

// QueryRecommendations returns the current query optimization advice.
func (m *Monitor) QueryRecommendations() []QueryRecommendation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]QueryRecommendation, 0, len(m.queryRecs))
	for _, rec := range m.queryRecs {
		out = append(out, rec)
	}
	return out
}

// SystemRecommendations returns the emitted resource advice, newest last.
func (m *Monitor) SystemRecommendations() []SystemRecommendation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SystemRecommendation, len(m.systemRecs))
	copy(out, m.systemRecs)
	return out
}
