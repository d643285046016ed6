package circuitbreaker

import (
	"sync"
	"time"

	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/metrics"
)

// Registry hands out one circuit breaker per name, creating breakers on
// first use with shared settings. State transitions are logged and exported
// as prometheus gauges.
type Registry struct {
	mu               sync.RWMutex
	breakers         map[string]*CircuitBreaker
	failureThreshold uint32
	recoveryTimeout  time.Duration
}

func NewRegistry(failureThreshold uint32, recoveryTimeout time.Duration) *Registry {
	if failureThreshold == 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 60 * time.Second
	}
	return &Registry{
		breakers:         make(map[string]*CircuitBreaker),
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

// Get returns the breaker for name, creating it if necessary.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb = NewCircuitBreaker(DatabaseSettings(name, r.failureThreshold, r.recoveryTimeout, observeStateChange))
	r.breakers[name] = cb
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateGaugeValue(StateClosed))
	return cb
}

// Snapshots returns the observable state of every registered breaker.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(r.breakers))
	for _, cb := range r.breakers {
		snaps = append(snaps, cb.Snapshot())
	}
	return snaps
}

func observeStateChange(name string, from, to State) {
	logger.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateGaugeValue(to))
	metrics.CircuitBreakerTransitions.WithLabelValues(name, to.String()).Inc()
}

func stateGaugeValue(s State) float64 {
	switch s {
	case StateClosed:
		return 0
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return -1
	}
}
