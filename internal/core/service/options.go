package service

import (
	"time"

	"github.com/yndnr/sessiondb/internal/telemetry/logger"
	"github.com/yndnr/sessiondb/internal/telemetry/metric"
)

// DefaultConnectTimeout bounds the background connection attempt.
const DefaultConnectTimeout = 10 * time.Second

// Option configures a Store.
type Option func(*options)

type options struct {
	failFast       bool
	connectTimeout time.Duration
	now            func() time.Time
	logger         logger.Logger
	metrics        *metric.StoreMetrics
}

func defaultOptions() options {
	return options{
		connectTimeout: DefaultConnectTimeout,
		now:            time.Now,
		logger:         logger.Discard(),
	}
}

// WithFailFast makes operations fail with domain.ErrNotReady instead of
// waiting while the connection is still opening.
func WithFailFast(enabled bool) Option {
	return func(o *options) {
		o.failFast = enabled
	}
}

// WithConnectTimeout bounds the background connection attempt.
// Zero or negative disables the bound.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = d
	}
}

// WithClock sets the time source used for lastAccess and reap thresholds.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics enables operation metrics.
func WithMetrics(m *metric.StoreMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
