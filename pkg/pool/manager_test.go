package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolStatsAcquireRelease(t *testing.T) {
	s := newPoolStats()

	s.recordAcquire()
	s.recordAcquire()
	s.recordAcquire()
	s.recordRelease(100 * time.Millisecond)

	active, peak, total, failed, _, _ := s.snapshot()
	assert.Equal(t, 2, active)
	assert.Equal(t, 3, peak)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(0), failed)
}

func TestPoolStatsAverageResponseTime(t *testing.T) {
	s := newPoolStats()

	s.recordAcquire()
	s.recordRelease(100 * time.Millisecond)
	s.recordAcquire()
	s.recordRelease(300 * time.Millisecond)

	_, _, _, _, avg, _ := s.snapshot()
	assert.Equal(t, 200*time.Millisecond, avg)
}

func TestPoolStatsFailureCounting(t *testing.T) {
	s := newPoolStats()

	s.recordAcquireFailure()
	s.recordAcquireFailure()

	active, _, total, failed, _, _ := s.snapshot()
	assert.Equal(t, 0, active)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(2), failed)
}

func TestPoolStatsPeakHoldsAfterRelease(t *testing.T) {
	s := newPoolStats()

	s.recordAcquire()
	s.recordAcquire()
	s.recordRelease(time.Millisecond)
	s.recordRelease(time.Millisecond)
	s.recordAcquire()

	active, peak, _, _, _, _ := s.snapshot()
	assert.Equal(t, 1, active)
	assert.Equal(t, 2, peak)
}

func TestSizingRecommendationGrow(t *testing.T) {
	pm := Metrics{
		PoolSize:        10,
		PeakConcurrency: 9,
		TotalRequests:   100,
	}

	rec, ok := sizingRecommendation("orders", pm, 0.75)
	require.True(t, ok)
	assert.Equal(t, "orders", rec.PoolName)
	assert.Greater(t, rec.SuggestedSize, pm.PoolSize)
	assert.Equal(t, "peak concurrency above target utilization", rec.Reason)
}

func TestSizingRecommendationShrink(t *testing.T) {
	pm := Metrics{
		PoolSize:        50,
		PeakConcurrency: 5,
		TotalRequests:   100,
	}

	rec, ok := sizingRecommendation("orders", pm, 0.75)
	require.True(t, ok)
	assert.Less(t, rec.SuggestedSize, pm.PoolSize)
	assert.GreaterOrEqual(t, rec.SuggestedSize, 1)
}

func TestSizingRecommendationWithinTarget(t *testing.T) {
	pm := Metrics{
		PoolSize:        10,
		PeakConcurrency: 6,
		TotalRequests:   100,
	}

	_, ok := sizingRecommendation("orders", pm, 0.75)
	assert.False(t, ok)
}

func TestSizingRecommendationNoTraffic(t *testing.T) {
	pm := Metrics{PoolSize: 10}

	_, ok := sizingRecommendation("orders", pm, 0.75)
	assert.False(t, ok)
}
