// Package metric provides Prometheus metrics for SessionDB.
//
//   - prometheus.go: registry, HTTP handler and HTTP request metrics
//   - store.go: session store operation metrics
//   - collector.go: scrape-time session count
//
// Metrics are exposed at /metrics in Prometheus text format.
package metric
