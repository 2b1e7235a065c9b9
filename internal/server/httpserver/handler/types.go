package handler

import (
	"time"

	"github.com/yndnr/sessiondb/internal/core/domain"
	"github.com/yndnr/sessiondb/internal/core/service"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID         string         `json:"id"`
	LastAccess int64          `json:"last_access"`
	Attributes map[string]any `json:"attributes"`

	// Generated is true when the store created a new session instead of
	// returning the requested one.
	Generated bool `json:"generated"`
}

func newSessionResponse(s *domain.Session) SessionResponse {
	attrs := s.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	return SessionResponse{
		ID:         s.ID,
		LastAccess: s.LastAccess,
		Attributes: attrs,
		Generated:  s.Generated,
	}
}

// CommitSessionRequest is the request body for PUT /sessions/{id}.
type CommitSessionRequest struct {
	// LastAccess in Unix milliseconds. Omitted means now.
	LastAccess *int64         `json:"last_access,omitempty"`
	Attributes map[string]any `json:"attributes"`
}

// DestroySessionResponse is the response body for DELETE /sessions/{id}.
type DestroySessionResponse struct {
	ID string `json:"id"`
}

// CountResponse is the response body for GET /admin/v1/sessions/count.
type CountResponse struct {
	Count int64 `json:"count"`
}

// ReapRequest is the request body for POST /admin/v1/sessions/reap.
type ReapRequest struct {
	// MaxAgeMs overrides the reaper's configured max age.
	MaxAgeMs *int64 `json:"max_age_ms,omitempty"`
}

// ReapResponse is the response body for POST /admin/v1/sessions/reap.
type ReapResponse struct {
	Removed    int64 `json:"removed"`
	MaxAgeMs   int64 `json:"max_age_ms"`
	FinishedAt int64 `json:"finished_at"`
}

func newReapResponse(res service.ReapResult) ReapResponse {
	return ReapResponse{
		Removed:    res.Removed,
		MaxAgeMs:   res.MaxAge.Milliseconds(),
		FinishedAt: res.FinishedAt.UnixMilli(),
	}
}

// ClearResponse is the response body for DELETE /admin/v1/sessions.
type ClearResponse struct {
	Removed int64 `json:"removed"`
}

// StatusResponse is the response body for GET /admin/v1/status/summary.
type StatusResponse struct {
	Status   string        `json:"status"`
	Ready    bool          `json:"ready"`
	Version  string        `json:"version"`
	Sessions *int64        `json:"sessions,omitempty"`
	Reaper   *ReaperStatus `json:"reaper,omitempty"`
}

// ReaperStatus describes the scheduled reaper.
type ReaperStatus struct {
	MaxAgeMs int64         `json:"max_age_ms"`
	NextRun  int64         `json:"next_run,omitempty"`
	LastRun  *ReapResponse `json:"last_run,omitempty"`
	LastErr  string        `json:"last_error,omitempty"`
}
