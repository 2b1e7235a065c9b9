package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/sessiondb/internal/core/domain"
	"github.com/yndnr/sessiondb/internal/infra/buildinfo"
)

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": buildinfo.Get().Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /ready. It reports 503 until the store
// connection is open.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if !h.store.Ready() {
		w.Header().Set("Retry-After", "1")
		h.writeError(w, r, http.StatusServiceUnavailable, domain.ErrNotReady.Code, domain.ErrNotReady.Message, nil)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /metrics.
func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		h.writeError(w, r, http.StatusNotFound, CodeNotFound, "metrics are disabled", nil)
		return
	}
	h.metrics.ServeHTTP(w, r)
}
