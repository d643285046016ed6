package pool

import (
	"fmt"

	"github.com/dbvigil/dbvigil/logger"
)

// SizingRecommendation is advisory only. The manager never resizes a pool
// on its own.
type SizingRecommendation struct {
	PoolName        string  `json:"pool_name"`
	CurrentSize     int     `json:"current_size"`
	PeakConcurrency int     `json:"peak_concurrency"`
	Utilization     float64 `json:"utilization"`
	SuggestedSize   int     `json:"suggested_size"`
	Reason          string  `json:"reason"`
}

// OptimizePoolSize compares each pool's peak utilization against the target
// ratio and returns sizing suggestions for pools running outside it.
func (m *Manager) OptimizePoolSize() []SizingRecommendation {
	target := m.cfg.GetTargetUtilization()

	var recs []SizingRecommendation
	for name, pm := range m.Metrics() {
		rec, ok := sizingRecommendation(name, pm, target)
		if !ok {
			continue
		}
		logger.Info("Pool sizing recommendation", "pool", name,
			"current_size", rec.CurrentSize, "suggested_size", rec.SuggestedSize,
			"utilization", fmt.Sprintf("%.2f", rec.Utilization), "reason", rec.Reason)
		recs = append(recs, rec)
	}
	return recs
}

// sizingRecommendation computes the suggestion for one pool: grow when peak
// usage exceeds the target share of the pool, shrink when peak usage stays
// under half of it.
func sizingRecommendation(name string, pm Metrics, target float64) (SizingRecommendation, bool) {
	if pm.PoolSize <= 0 || pm.TotalRequests == 0 {
		return SizingRecommendation{}, false
	}

	utilization := float64(pm.PeakConcurrency) / float64(pm.PoolSize)
	rec := SizingRecommendation{
		PoolName:        name,
		CurrentSize:     pm.PoolSize,
		PeakConcurrency: pm.PeakConcurrency,
		Utilization:     utilization,
	}

	switch {
	case utilization > target:
		suggested := int(float64(pm.PeakConcurrency)/target) + 1
		rec.SuggestedSize = suggested
		rec.Reason = "peak concurrency above target utilization"
	case utilization < target/2:
		suggested := int(float64(pm.PeakConcurrency) / target)
		if suggested < 1 {
			suggested = 1
		}
		if suggested >= pm.PoolSize {
			return SizingRecommendation{}, false
		}
		rec.SuggestedSize = suggested
		rec.Reason = "pool oversized for observed peak concurrency"
	default:
		return SizingRecommendation{}, false
	}

	return rec, true
}
