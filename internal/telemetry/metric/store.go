package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// StoreMetrics tracks session store operations.
//
// A nil *StoreMetrics is valid and records nothing.
type StoreMetrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	reaped      prometheus.Counter
	regenerated prometheus.Counter
	ready       prometheus.Gauge
}

// NewStoreMetrics creates store metrics and registers them with reg.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Session store operations by operation and result",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Session store operation latency, including the wait for readiness",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"op"}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "reaped_total",
			Help:      "Sessions removed by reap",
		}),
		regenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "regenerated_total",
			Help:      "Fetches that generated a new session because the id was unknown",
		}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "ready",
			Help:      "1 when the store connection is open, 0 otherwise",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.duration, m.reaped, m.regenerated, m.ready)
	}
	return m
}

// ObserveOperation records one store operation.
func (m *StoreMetrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// AddReaped records sessions removed by reap.
func (m *StoreMetrics) AddReaped(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reaped.Add(float64(n))
}

// IncRegenerated records a fetch that fell back to generate.
func (m *StoreMetrics) IncRegenerated() {
	if m == nil {
		return
	}
	m.regenerated.Inc()
}

// SetReady records the connection state.
func (m *StoreMetrics) SetReady(ready bool) {
	if m == nil {
		return
	}
	if ready {
		m.ready.Set(1)
	} else {
		m.ready.Set(0)
	}
}
