package pool

import (
	"sync"
	"time"
)

// Metrics is a read-only snapshot of one pool's runtime counters.
type Metrics struct {
	PoolName            string        `json:"pool_name"`
	Generation          int           `json:"generation"`
	PoolSize            int           `json:"pool_size"`
	ActiveConnections   int           `json:"active_connections"`
	IdleConnections     int           `json:"idle_connections"`
	TotalRequests       int64         `json:"total_requests"`
	FailedRequests      int64         `json:"failed_requests"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	PeakConcurrency     int           `json:"peak_concurrency"`
	CreatedAt           time.Time     `json:"created_at"`
}

// poolStats tracks acquire/release counters for one pool generation.
// Reset when the pool is rebuilt.
type poolStats struct {
	mu             sync.Mutex
	active         int
	peak           int
	totalRequests  int64
	failedRequests int64
	releases       int64
	totalHeld      time.Duration
	createdAt      time.Time
}

func newPoolStats() *poolStats {
	return &poolStats{createdAt: time.Now()}
}

func (s *poolStats) recordAcquire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRequests++
	s.active++
	if s.active > s.peak {
		s.peak = s.active
	}
}

func (s *poolStats) recordAcquireFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRequests++
	s.failedRequests++
}

// recordRelease folds the acquire-to-release latency into the rolling average.
func (s *poolStats) recordRelease(held time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active > 0 {
		s.active--
	}
	s.releases++
	s.totalHeld += held
}

func (s *poolStats) averageResponseTime() time.Duration {
	if s.releases == 0 {
		return 0
	}
	return s.totalHeld / time.Duration(s.releases)
}

func (s *poolStats) snapshot() (active, peak int, total, failed int64, avg time.Duration, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.peak, s.totalRequests, s.failedRequests, s.averageResponseTime(), s.createdAt
}
