package httpapi

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// handleSnapshot writes a plain-text state dump, meant for quick inspection
// with curl when the JSON surface is overkill.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	now := time.Now().UTC()

	fmt.Fprintf(&b, "dbvigil snapshot at %s\n\n", now.Format(time.RFC3339))

	b.WriteString("== Databases ==\n")
	snapshots := s.deps.Monitor.CurrentAll()
	names := make([]string, 0, len(snapshots))
	for name := range snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		b.WriteString("  (no metrics collected yet)\n")
	}
	for _, name := range names {
		snap := snapshots[name]
		fmt.Fprintf(&b, "  %-20s status=%s health=%.1f conns=%.1f%% avg_query=%.1fms slow/min=%.1f\n",
			name, snap.Status, snap.HealthScore,
			snap.Connections.UsagePercent,
			snap.Queries.AverageQueryTimeMs,
			snap.Queries.SlowQueriesPerMinute)
	}

	b.WriteString("\n== Active alerts ==\n")
	alerts := s.deps.Monitor.ActiveAlerts()
	if len(alerts) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, alert := range alerts {
		fmt.Fprintf(&b, "  [%s] %s %s current=%.2f threshold=%.2f since=%s\n",
			alert.Severity, alert.Database, alert.Metric,
			alert.CurrentValue, alert.ThresholdValue,
			alert.Timestamp.UTC().Format(time.RFC3339))
	}

	b.WriteString("\n== Pools ==\n")
	statuses := s.deps.Pools.Status()
	poolNames := make([]string, 0, len(statuses))
	for name := range statuses {
		poolNames = append(poolNames, name)
	}
	sort.Strings(poolNames)
	for _, name := range poolNames {
		st := statuses[name]
		health := "healthy"
		if !st.Healthy {
			health = "unhealthy"
		}
		fmt.Fprintf(&b, "  %-20s %s generation=%d", name, health, st.Generation)
		if st.LastError != "" {
			fmt.Fprintf(&b, " last_error=%q", st.LastError)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n== Circuit breakers ==\n")
	breakers := s.deps.Breakers.Snapshots()
	breakers = append(breakers, s.deps.Alerts.BreakerSnapshots()...)
	for _, snap := range breakers {
		fmt.Fprintf(&b, "  %-30s %-10s failures=%d/%d\n",
			snap.Name, snap.State, snap.ConsecutiveFailures, snap.TotalFailures)
	}

	b.WriteString("\n== Degradation ==\n")
	fmt.Fprintf(&b, "  level=%s\n", s.deps.Degradation.CurrentLevel())
	for _, rec := range s.deps.Degradation.Records() {
		fmt.Fprintf(&b, "  %-20s reason=%q since=%s\n",
			rec.Database, rec.Reason, rec.Since.UTC().Format(time.RFC3339))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}
