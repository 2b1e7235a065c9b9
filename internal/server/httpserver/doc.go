// Package httpserver provides the HTTP/HTTPS server for SessionDB.
//
// It exposes the session store over a small JSON API built on net/http:
//
//   - Session endpoints: /sessions, /sessions/{id}
//   - Admin endpoints: /admin/v1/sessions/*, /admin/v1/status/summary
//   - Probe endpoints: /health, /ready, /metrics
//
// Requests pass through RequestID, per-IP RateLimit, Audit and Metrics
// middleware. Probes skip rate limiting and audit logging.
package httpserver
