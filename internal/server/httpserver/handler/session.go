package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/sessiondb/internal/core/domain"
)

// handleGenerateSession handles POST /sessions.
func (h *Handler) handleGenerateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Generate(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, newSessionResponse(s))
}

// handleFetchSession handles GET /sessions/{id}.
//
// An unknown id is not a 404: a new session is generated and returned with
// generated=true, matching Store.Fetch.
func (h *Handler) handleFetchSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Fetch(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newSessionResponse(s))
}

// handleCommitSession handles PUT /sessions/{id}.
func (h *Handler) handleCommitSession(w http.ResponseWriter, r *http.Request) {
	var req CommitSessionRequest
	if _, err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid request body", err.Error())
		return
	}

	s := &domain.Session{
		ID:         r.PathValue("id"),
		Attributes: req.Attributes,
	}
	if req.LastAccess != nil {
		s.LastAccess = *req.LastAccess
	} else {
		s.Touch(time.Now())
	}
	if s.Attributes == nil {
		s.Attributes = map[string]any{}
	}

	if _, err := h.store.Commit(r.Context(), s); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	// Echo the normalized form so clients see what was stored.
	if attrs, err := domain.NormalizeAttributes(s.Attributes); err == nil {
		s.Attributes = attrs
	}
	h.writeJSON(w, r, http.StatusOK, newSessionResponse(s))
}

// handleDestroySession handles DELETE /sessions/{id}.
func (h *Handler) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.Destroy(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, DestroySessionResponse{ID: id})
}
