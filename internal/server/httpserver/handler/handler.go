package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yndnr/sessiondb/internal/core/domain"
	"github.com/yndnr/sessiondb/internal/core/service"
	"github.com/yndnr/sessiondb/internal/telemetry/logger"
	"github.com/yndnr/sessiondb/pkg/oneshot"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Error codes produced by the HTTP layer itself.
const (
	CodeBadRequest = "SDB-HTTP-4000"
	CodeNotFound   = "SDB-HTTP-4040"
	CodeInternal   = "SDB-SYS-5000"
)

// jsonAPI decodes request numbers as json.Number so integer attributes stay
// integers.
var jsonAPI = sonic.Config{
	EscapeHTML: true,
	UseNumber:  true,
}.Froze()

// SessionStore is the part of service.Store the handlers use.
type SessionStore interface {
	Fetch(ctx context.Context, id string) (*domain.Session, error)
	Generate(ctx context.Context) (*domain.Session, error)
	Commit(ctx context.Context, s *domain.Session) (*domain.Session, error)
	Destroy(ctx context.Context, id string) error
	Clear(ctx context.Context) (int64, error)
	Length(ctx context.Context) (int64, error)
	Reap(ctx context.Context, maxAge time.Duration) (int64, error)
	Ready() bool
}

// Reaper is the part of service.Reaper the handlers use.
type Reaper interface {
	Trigger(ctx context.Context) *oneshot.Promise[service.ReapResult]
	LastResult() (service.ReapResult, error, bool)
	MaxAge() time.Duration
	Next() time.Time
}

// Config wires the handler's dependencies.
type Config struct {
	Store SessionStore

	// Reaper runs the configured sweep for POST /admin/v1/sessions/reap
	// without a max_age_ms. Optional.
	Reaper Reaper

	// Metrics serves GET /metrics. Optional.
	Metrics http.Handler

	Logger logger.Logger
}

// Handler routes requests to the endpoint handlers.
type Handler struct {
	store   SessionStore
	reaper  Reaper
	metrics http.Handler
	logger  logger.Logger
	mux     *http.ServeMux
}

// New creates a Handler.
func New(cfg Config) *Handler {
	l := cfg.Logger
	if l == nil {
		l = logger.Discard()
	}
	h := &Handler{
		store:   cfg.Store,
		reaper:  cfg.Reaper,
		metrics: cfg.Metrics,
		logger:  l,
		mux:     http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Routes lists every method and pattern the handler serves.
func Routes() []string {
	return []string{
		"GET /health",
		"GET /ready",
		"GET /metrics",
		"POST /sessions",
		"GET /sessions/{id}",
		"PUT /sessions/{id}",
		"DELETE /sessions/{id}",
		"GET /admin/v1/sessions/count",
		"POST /admin/v1/sessions/reap",
		"DELETE /admin/v1/sessions",
		"GET /admin/v1/status/summary",
	}
}

func (h *Handler) registerRoutes() {
	// Health endpoints
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)
	h.mux.HandleFunc("GET /metrics", h.handleMetrics)

	// Session endpoints
	h.mux.HandleFunc("POST /sessions", h.handleGenerateSession)
	h.mux.HandleFunc("GET /sessions/{id}", h.handleFetchSession)
	h.mux.HandleFunc("PUT /sessions/{id}", h.handleCommitSession)
	h.mux.HandleFunc("DELETE /sessions/{id}", h.handleDestroySession)

	// Admin endpoints
	h.mux.HandleFunc("GET /admin/v1/sessions/count", h.handleCount)
	h.mux.HandleFunc("POST /admin/v1/sessions/reap", h.handleReap)
	h.mux.HandleFunc("DELETE /admin/v1/sessions", h.handleClear)
	h.mux.HandleFunc("GET /admin/v1/status/summary", h.handleStatus)
}

// writeJSON writes a JSON response with the standard envelope.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsonAPI.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.logger.Error("failed to encode response", "error", err, "request_id", requestID)
	}
}

// writeError writes an error response with the standard envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := logger.RequestIDFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	jsonAPI.NewEncoder(w).Encode(NewErrorResponse(requestID, code, message, details))
}

// handleServiceError converts store errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if errors.As(err, &de) {
		status := errorCodeToHTTPStatus(de.Code)
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
		}
		h.writeError(w, r, status, de.Code, de.Error(), nil)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		h.writeError(w, r, http.StatusServiceUnavailable, domain.ErrNotReady.Code, err.Error(), nil)
		return
	}

	logger.L(r.Context()).Error("internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, CodeInternal, "internal server error", nil)
}

// errorCodeToHTTPStatus maps SDB-<AREA>-<NNNN> codes to HTTP status codes.
// 4xxx is a caller error, 5030/5031 mean the store is unavailable, any
// other code is an internal error.
func errorCodeToHTTPStatus(code string) int {
	idx := strings.LastIndex(code, "-")
	if idx < 0 {
		return http.StatusInternalServerError
	}
	n, err := strconv.Atoi(code[idx+1:])
	if err != nil {
		return http.StatusInternalServerError
	}

	switch {
	case n == 4040:
		return http.StatusNotFound
	case n >= 4000 && n < 5000:
		return http.StatusBadRequest
	case n == 5030, n == 5031:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes the JSON body into v. An empty body leaves v
// untouched and reports false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) (bool, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return false, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := jsonAPI.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}
