package httpserver

import (
	"net/http"
	"strings"

	"github.com/yndnr/sessiondb/internal/server/httpserver/handler"
	"github.com/yndnr/sessiondb/internal/telemetry/logger"
	"github.com/yndnr/sessiondb/internal/telemetry/metric"
)

// DefaultRateLimit is the default per-IP request rate (requests/second).
const DefaultRateLimit = 200

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Store serves the session and admin endpoints.
	Store handler.SessionStore

	// Reaper runs scheduled sweeps on demand. Optional.
	Reaper handler.Reaper

	// Metrics enables /metrics and per-route request metrics. Optional.
	Metrics *metric.Registry

	// Logger for request logging.
	Logger logger.Logger

	// RateLimit is the per-IP rate limit (requests/second). Zero disables it.
	RateLimit float64

	// RateBurst is the per-IP burst size.
	RateBurst int

	// EnableAudit logs every completed request.
	EnableAudit bool
}

// NewRouter creates the HTTP router with all routes and middleware.
//
// Probe endpoints (/health, /ready, /metrics) skip rate limiting and audit
// logging. Everything else runs
// Recover -> RequestID -> RateLimit -> Audit -> Metrics -> Handler.
func NewRouter(cfg *RouterConfig) http.Handler {
	l := cfg.Logger
	if l == nil {
		l = logger.Discard()
	}

	hcfg := handler.Config{
		Store:  cfg.Store,
		Reaper: cfg.Reaper,
		Logger: l,
	}
	if cfg.Metrics != nil {
		hcfg.Metrics = cfg.Metrics.Handler()
	}
	h := handler.New(hcfg)

	probe := Chain(h,
		Recover(l),
		RequestID(l),
		Metrics(cfg.Metrics),
	)

	apiMiddlewares := []Middleware{
		Recover(l),
		RequestID(l),
	}
	if cfg.RateLimit > 0 {
		apiMiddlewares = append(apiMiddlewares, RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.EnableAudit {
		apiMiddlewares = append(apiMiddlewares, Audit(l))
	}
	apiMiddlewares = append(apiMiddlewares, Metrics(cfg.Metrics))
	api := Chain(h, apiMiddlewares...)

	mux := http.NewServeMux()
	for _, pattern := range handler.Routes() {
		if isProbe(pattern) {
			mux.Handle(pattern, probe)
		} else {
			mux.Handle(pattern, api)
		}
	}
	return mux
}

func isProbe(pattern string) bool {
	switch pattern[strings.IndexByte(pattern, ' ')+1:] {
	case "/health", "/ready", "/metrics":
		return true
	}
	return false
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		RateLimit:   DefaultRateLimit,
		RateBurst:   DefaultRateLimit,
		EnableAudit: true,
	}
}
