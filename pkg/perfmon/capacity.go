package perfmon

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/alerting"
	"github.com/dbvigil/dbvigil/pkg/metrics"
)

// capacityResources maps a resource type to the tracked metric its usage
// history lives under.
var capacityResources = map[string]string{
	"cpu":         "cpu_usage_percent",
	"memory":      "memory_usage_percent",
	"disk":        "disk_usage_percent",
	"connections": "connection_usage_percent",
}

var capacityActions = map[string]string{
	"cpu":         "scale CPU up or distribute load across replicas",
	"memory":      "add memory or reduce per-connection memory settings",
	"disk":        "expand storage or reclaim space (vacuum, archive, rotate logs)",
	"connections": "raise max_connections and the pool ceiling or add a connection proxy",
}

var capacityCostNotes = map[string]string{
	"cpu":         "compute scaling typically raises instance cost one tier",
	"memory":      "memory upgrades typically raise instance cost one tier",
	"disk":        "storage expansion is usually the cheapest scaling path",
	"connections": "a connection proxy is cheaper than a larger instance",
}

// projectCapacity fits a linear trend per (database, resource) over the
// trend window, projects usage forward, and emits recommendations when the
// resource is at or heading toward its critical level. Returns the alerts
// for immediate capacity emergencies.
func (m *Monitor) projectCapacity(now time.Time) []*alerting.Alert {
	trendWindow, err := m.cfg.GetTrendWindow()
	if err != nil {
		trendWindow = 24 * time.Hour
	}
	projectionDays := float64(m.cfg.GetProjectionDays())

	m.mu.Lock()
	defer m.mu.Unlock()

	var alerts []*alerting.Alert
	cutoff := now.Add(-trendWindow)

	for key := range m.history {
		database, metric, _ := splitKey(key)
		resource := resourceForMetric(metric)
		if resource == "" {
			continue
		}

		var window []sample
		for _, s := range m.history[key] {
			if s.at.After(cutoff) {
				window = append(window, s)
			}
		}
		if len(window) == 0 {
			continue
		}
		current := window[len(window)-1].value
		slope := linearSlope(window) // percent per day
		projected := current + slope*projectionDays
		critical := m.cfg.GetResourceCritical(resource)
		warning := critical - 10

		days := daysToCapacity(current, critical, slope)
		metrics.CapacityDaysRemaining.WithLabelValues(database, resource).Set(days)

		recKey := database + "|" + resource
		switch {
		case current >= critical:
			rec := CapacityRecommendation{
				ID:              uuid.NewString(),
				Database:        database,
				Resource:        resource,
				CurrentUsage:    current,
				ProjectedUsage:  projected,
				DaysToCapacity:  0,
				Urgency:         UrgencyImmediate,
				SuggestedAction: capacityActions[resource],
				CostNote:        capacityCostNotes[resource],
				Timestamp:       now,
			}
			m.capacityRecs[recKey] = rec
			logger.Error("Capacity critical",
				"database", database, "resource", resource, "usage", current)
			alerts = append(alerts, &alerting.Alert{
				ID:       rec.ID,
				Database: database,
				Metric:   metric,
				Severity: "critical",
				Message: fmt.Sprintf("%s usage %.1f%% is above the critical level %.0f%%; %s",
					resource, current, critical, rec.SuggestedAction),
				CurrentValue:   current,
				ThresholdValue: critical,
				Timestamp:      now,
			})
		case projected >= warning && slope > 0:
			m.capacityRecs[recKey] = CapacityRecommendation{
				ID:              uuid.NewString(),
				Database:        database,
				Resource:        resource,
				CurrentUsage:    current,
				ProjectedUsage:  projected,
				DaysToCapacity:  days,
				Urgency:         urgencyFromDays(days),
				SuggestedAction: capacityActions[resource],
				CostNote:        capacityCostNotes[resource],
				Timestamp:       now,
			}
		default:
			// No pressure; drop any stale recommendation.
			delete(m.capacityRecs, recKey)
		}
	}
	return alerts
}

func resourceForMetric(metric string) string {
	for resource, m := range capacityResources {
		if m == metric {
			return resource
		}
	}
	return ""
}

// daysToCapacity estimates when usage hits the critical level at the
// observed growth rate. Returns -1 when usage is not growing.
func daysToCapacity(current, critical, slopePerDay float64) float64 {
	if slopePerDay <= 0 {
		return -1
	}
	if current >= critical {
		return 0
	}
	return (critical - current) / slopePerDay
}

func urgencyFromDays(days float64) CapacityUrgency {
	switch {
	case days >= 0 && days < 7:
		return UrgencyHigh
	case days >= 0 && days < 30:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// CapacityRecommendations returns the current per-resource capacity advice.
func (m *Monitor) CapacityRecommendations() []CapacityRecommendation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CapacityRecommendation, 0, len(m.capacityRecs))
	for _, rec := range m.capacityRecs {
		out = append(out, rec)
	}
	return out
}
