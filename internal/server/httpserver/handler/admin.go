package handler

import (
	"math"
	"net/http"
	"time"

	"github.com/yndnr/sessiondb/internal/core/domain"
	"github.com/yndnr/sessiondb/internal/core/service"
	"github.com/yndnr/sessiondb/internal/infra/buildinfo"
)

// handleCount handles GET /admin/v1/sessions/count.
func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Length(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, CountResponse{Count: n})
}

// maxReapAgeMs is the largest max_age_ms that fits in a time.Duration.
const maxReapAgeMs = math.MaxInt64 / int64(time.Millisecond)

// handleReap handles POST /admin/v1/sessions/reap.
//
// With max_age_ms the sweep runs directly on the store. Without it the
// configured reaper runs (or the in-flight run is joined).
func (h *Handler) handleReap(w http.ResponseWriter, r *http.Request) {
	var req ReapRequest
	if _, err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid request body", err.Error())
		return
	}

	if req.MaxAgeMs != nil {
		if *req.MaxAgeMs > maxReapAgeMs {
			h.writeError(w, r, http.StatusBadRequest, domain.ErrInvalidArgument.Code,
				"max_age_ms is too large", nil)
			return
		}
		maxAge := time.Duration(*req.MaxAgeMs) * time.Millisecond
		n, err := h.store.Reap(r.Context(), maxAge)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		h.writeJSON(w, r, http.StatusOK, ReapResponse{
			Removed:    n,
			MaxAgeMs:   *req.MaxAgeMs,
			FinishedAt: time.Now().UnixMilli(),
		})
		return
	}

	if h.reaper == nil {
		h.writeError(w, r, http.StatusBadRequest, CodeBadRequest, "max_age_ms is required when the reaper is disabled", nil)
		return
	}
	res, err := h.reaper.Trigger(r.Context()).Wait(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newReapResponse(res))
}

// handleClear handles DELETE /admin/v1/sessions.
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Clear(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, ClearResponse{Removed: n})
}

// handleStatus handles GET /admin/v1/status/summary.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:  "running",
		Ready:   h.store.Ready(),
		Version: buildinfo.Get().Version,
	}
	if resp.Ready {
		if n, err := h.store.Length(r.Context()); err == nil {
			resp.Sessions = &n
		}
	}
	if h.reaper != nil {
		resp.Reaper = reaperStatus(h.reaper)
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

func reaperStatus(rp Reaper) *ReaperStatus {
	st := &ReaperStatus{MaxAgeMs: rp.MaxAge().Milliseconds()}
	if next := rp.Next(); !next.IsZero() {
		st.NextRun = next.UnixMilli()
	}
	if res, err, ok := rp.LastResult(); ok {
		if err != nil {
			st.LastErr = err.Error()
		} else {
			last := newReapResponse(res)
			st.LastRun = &last
		}
	}
	return st
}

var _ Reaper = (*service.Reaper)(nil)

var _ SessionStore = (*service.Store)(nil)
