package monitor

// computeHealthScore folds the snapshot's signals into a 0-100 score.
// Deductions are cumulative; the score floors at zero.
func computeHealthScore(m *DatabaseMetrics) float64 {
	score := 100.0

	switch usage := m.Connections.UsagePercent; {
	case usage > 90:
		score -= 30
	case usage > 75:
		score -= 15
	case usage > 60:
		score -= 5
	}

	switch avg := m.Queries.AverageQueryTimeMs; {
	case avg > 2000:
		score -= 25
	case avg > 1000:
		score -= 15
	case avg > 500:
		score -= 5
	}

	switch rate := m.Queries.SlowQueriesPerMinute; {
	case rate > 20:
		score -= 15
	case rate > 5:
		score -= 5
	}

	if m.Replication.IsReplica {
		switch lag := m.Replication.LagSeconds; {
		case lag > 60:
			score -= 20
		case lag > 10:
			score -= 10
		}
	}

	score -= resourceDeduction(m.System.CPUPercent)
	score -= resourceDeduction(m.System.MemoryPercent)
	switch disk := m.System.DiskPercent; {
	case disk > 90:
		score -= 15
	case disk > 80:
		score -= 8
	}

	switch hit := m.Engine.CacheHitRatioPercent; {
	case hit < 80:
		score -= 10
	case hit < 90:
		score -= 3
	}

	if score < 0 {
		score = 0
	}
	return score
}

func resourceDeduction(percent float64) float64 {
	switch {
	case percent > 95:
		return 15
	case percent > 80:
		return 8
	}
	return 0
}

// deriveStatus maps the score plus the hard signals to a status. Saturated
// connections or heavy replication lag are critical regardless of score.
func deriveStatus(m *DatabaseMetrics) HealthStatus {
	switch {
	case m.Connections.UsagePercent > 90,
		m.Replication.IsReplica && m.Replication.LagSeconds > 120,
		m.HealthScore < 50:
		return StatusCritical
	case m.Connections.UsagePercent > 75, m.HealthScore < 75:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

func statusGaugeValue(s HealthStatus) float64 {
	switch s {
	case StatusHealthy:
		return 3
	case StatusWarning:
		return 2
	case StatusCritical:
		return 1
	default:
		return 0
	}
}
