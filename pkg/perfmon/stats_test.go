package perfmon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMeanAndConfidenceInterval(t *testing.T) {
	values := []float64{48, 50, 52, 50}
	m := mean(values)
	assert.InDelta(t, 50, m, 0.001)

	ci := confidenceInterval95(values, m)
	assert.Greater(t, ci, 0.0)
	assert.Less(t, ci, 5.0)

	assert.Equal(t, 0.0, mean(nil))
	assert.Equal(t, 0.0, confidenceInterval95([]float64{50}, 50))
}

func TestLinearSlopePerDay(t *testing.T) {
	start := time.Now()
	var samples []sample
	// 1 percent per day over 4 days.
	for d := 0; d < 5; d++ {
		samples = append(samples, sample{
			at:    start.Add(time.Duration(d) * 24 * time.Hour),
			value: 80 + float64(d),
		})
	}
	assert.InDelta(t, 1.0, linearSlope(samples), 0.001)

	assert.Equal(t, 0.0, linearSlope(samples[:1]))
	flat := []sample{{at: start, value: 50}, {at: start, value: 60}}
	assert.Equal(t, 0.0, linearSlope(flat))
}

func TestDeviationPercentPolarity(t *testing.T) {
	// Higher is worse: rising above baseline is the degradation.
	assert.InDelta(t, 40, deviationPercent("cpu_usage_percent", 50, 70), 0.001)
	assert.InDelta(t, -40, deviationPercent("cpu_usage_percent", 50, 30), 0.001)

	// Higher is better: dropping below baseline is the degradation.
	assert.Greater(t, deviationPercent("cache_hit_ratio_percent", 95, 80), 0.0)
	assert.Less(t, deviationPercent("cache_hit_ratio_percent", 95, 99), 0.0)

	assert.Equal(t, 0.0, deviationPercent("cpu_usage_percent", 0, 70))
}

func TestClassifyRegressionBands(t *testing.T) {
	assert.Equal(t, RegressionMinor, classifyRegression(16))
	assert.Equal(t, RegressionModerate, classifyRegression(20))
	assert.Equal(t, RegressionModerate, classifyRegression(29.9))
	assert.Equal(t, RegressionMajor, classifyRegression(40))
	assert.Equal(t, RegressionCritical, classifyRegression(50))
	assert.Equal(t, RegressionCritical, classifyRegression(120))
}

func TestDaysToCapacity(t *testing.T) {
	assert.InDelta(t, 5, daysToCapacity(80, 90, 2), 0.001)
	assert.Equal(t, -1.0, daysToCapacity(80, 90, 0))
	assert.Equal(t, -1.0, daysToCapacity(80, 90, -1))
	assert.Equal(t, 0.0, daysToCapacity(95, 90, 2))
}

func TestUrgencyFromDays(t *testing.T) {
	assert.Equal(t, UrgencyHigh, urgencyFromDays(3))
	assert.Equal(t, UrgencyMedium, urgencyFromDays(20))
	assert.Equal(t, UrgencyLow, urgencyFromDays(60))
	assert.Equal(t, UrgencyLow, urgencyFromDays(-1))
}
