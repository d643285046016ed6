package perfmon

import (
	"math"
	"time"
)

// sample is one observed metric value.
type sample struct {
	at    time.Time
	value float64
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// confidenceInterval95 returns the half-width of the 95% confidence
// interval around the sample mean.
func confidenceInterval95(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return 1.96 * stddev(values, m) / math.Sqrt(float64(len(values)))
}

// linearSlope fits a least-squares line through the samples and returns
// the slope in value units per day. Returns 0 when fewer than two samples
// or no time spread.
func linearSlope(samples []sample) float64 {
	if len(samples) < 2 {
		return 0
	}
	origin := samples[0].at
	var sumX, sumY, sumXY, sumXX float64
	for _, s := range samples {
		x := s.at.Sub(origin).Hours() / 24
		sumX += x
		sumY += s.value
		sumXY += x * s.value
		sumXX += x * x
	}
	n := float64(len(samples))
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// deviationPercent reports how far current drifted from baseline, as a
// positive percentage when the drift is a degradation for the metric and
// negative otherwise.
func deviationPercent(metric string, baseline, current float64) float64 {
	if baseline == 0 {
		return 0
	}
	dev := (current - baseline) / math.Abs(baseline) * 100
	if higherIsBetter[metric] {
		dev = -dev
	}
	return dev
}

// classifyRegression bands a degradation percentage: minor below 20,
// moderate to 30, major to 50, critical beyond.
func classifyRegression(deviation float64) RegressionSeverity {
	switch {
	case deviation >= 50:
		return RegressionCritical
	case deviation >= 30:
		return RegressionMajor
	case deviation >= 20:
		return RegressionModerate
	default:
		return RegressionMinor
	}
}
