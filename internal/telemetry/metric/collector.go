package metric

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CountFunc returns the number of stored sessions.
type CountFunc func(ctx context.Context) (int64, error)

// SessionCollector reports the stored session count at scrape time.
// A failed count is reported through sessiondb_sessions_count_errors_total
// and the gauge is omitted for that scrape.
type SessionCollector struct {
	count   CountFunc
	timeout time.Duration

	sessions *prometheus.Desc
	errors   prometheus.Counter
}

// NewSessionCollector creates a collector calling count with timeout.
func NewSessionCollector(count CountFunc, timeout time.Duration) *SessionCollector {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &SessionCollector{
		count:   count,
		timeout: timeout,
		sessions: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "sessions"),
			"Sessions currently stored",
			nil, nil,
		),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_count_errors_total",
			Help:      "Scrapes that failed to count sessions",
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessions
	c.errors.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	n, err := c.count(ctx)
	if err != nil {
		c.errors.Inc()
	} else {
		ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.GaugeValue, float64(n))
	}
	c.errors.Collect(ch)
}
