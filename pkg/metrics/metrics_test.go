package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("failed to read gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestPoolAcquireCounter(t *testing.T) {
	c := PoolAcquiresTotal.WithLabelValues("testdb_acquires", "success")
	before := counterValue(t, c)

	c.Inc()
	c.Inc()

	after := counterValue(t, c)
	if after-before != 2 {
		t.Errorf("Expected counter to increase by 2, got %v", after-before)
	}
}

func TestHealthScoreGauge(t *testing.T) {
	g := DBHealthScore.WithLabelValues("testdb_score")
	g.Set(87.5)

	if v := gaugeValue(t, g); v != 87.5 {
		t.Errorf("Expected gauge value 87.5, got %v", v)
	}

	g.Set(12)
	if v := gaugeValue(t, g); v != 12 {
		t.Errorf("Expected gauge value 12, got %v", v)
	}
}

func TestCircuitBreakerStateEncoding(t *testing.T) {
	g := CircuitBreakerState.WithLabelValues("testdb_breaker")

	for _, v := range []float64{0, 1, 2} {
		g.Set(v)
		if got := gaugeValue(t, g); got != v {
			t.Errorf("Expected state %v, got %v", v, got)
		}
	}
}

func TestAlertDeliveryLabels(t *testing.T) {
	// Distinct label combinations must track independently.
	success := AlertDeliveriesTotal.WithLabelValues("email_test", "success")
	failure := AlertDeliveriesTotal.WithLabelValues("email_test", "failure")

	successBefore := counterValue(t, success)
	failureBefore := counterValue(t, failure)

	success.Inc()

	if got := counterValue(t, success) - successBefore; got != 1 {
		t.Errorf("Expected success counter +1, got %v", got)
	}
	if got := counterValue(t, failure) - failureBefore; got != 0 {
		t.Errorf("Expected failure counter unchanged, got +%v", got)
	}
}
