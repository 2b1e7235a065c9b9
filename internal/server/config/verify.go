package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/robfig/cron/v3"

	"github.com/yndnr/sessiondb/internal/telemetry/logger"
)

// MinEncryptionKeyLength is the shortest accepted badger encryption secret.
const MinEncryptionKeyLength = 16

// Verify validates the configuration and reports every problem found.
func Verify(cfg *ServerConfig) error {
	var errs []error
	errs = append(errs, verifyStore(cfg)...)
	errs = append(errs, verifyReaper(&cfg.Reaper)...)
	errs = append(errs, verifyServer(&cfg.Server)...)
	errs = append(errs, verifyLog(&cfg.Log)...)
	return errors.Join(errs...)
}

func verifyStore(cfg *ServerConfig) []error {
	var errs []error
	if cfg.Store.ConnectTimeout < 0 {
		errs = append(errs, errors.New("store.connect_timeout must not be negative"))
	}

	switch cfg.Store.Backend {
	case BackendMongo:
		m := cfg.Mongo
		if m.URI == "" {
			if m.Host == "" {
				errs = append(errs, errors.New("mongo.host is required when mongo.uri is empty"))
			}
			if m.Port < 1 || m.Port > 65535 {
				errs = append(errs, fmt.Errorf("mongo.port %d out of range", m.Port))
			}
		}
		if m.Database == "" {
			errs = append(errs, errors.New("mongo.database is required"))
		}
		if m.Collection == "" {
			errs = append(errs, errors.New("mongo.collection is required"))
		}
	case BackendBadger:
		b := cfg.Badger
		if b.DataDir == "" && !b.InMemory {
			errs = append(errs, errors.New("badger.data_dir is required unless badger.in_memory is set"))
		}
		if b.GCInterval < 0 {
			errs = append(errs, errors.New("badger.gc_interval must not be negative"))
		}
		if b.EncryptionKey != "" && len(b.EncryptionKey) < MinEncryptionKeyLength {
			errs = append(errs, fmt.Errorf("badger.encryption_key must be at least %d characters", MinEncryptionKeyLength))
		}
	case BackendRedis:
		if cfg.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required"))
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, errors.New("redis.db must not be negative"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of mongo, badger, memory, redis", cfg.Store.Backend))
	}
	return errs
}

func verifyReaper(cfg *ReaperSection) []error {
	var errs []error
	if cfg.MaxAge < 0 {
		errs = append(errs, errors.New("reaper.max_age must not be negative"))
	}
	if cfg.Timeout < 0 {
		errs = append(errs, errors.New("reaper.timeout must not be negative"))
	}
	if cfg.Enabled {
		if cfg.Schedule == "" {
			errs = append(errs, errors.New("reaper.schedule is required when the reaper is enabled"))
		} else if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("reaper.schedule: %w", err))
		}
	}
	return errs
}

func verifyServer(cfg *ServerSection) []error {
	var errs []error
	h := cfg.HTTP
	if h.Addr == "" {
		errs = append(errs, errors.New("server.http.addr is required"))
	} else if _, _, err := net.SplitHostPort(h.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.http.addr: %w", err))
	}
	if (h.TLSCertFile == "") != (h.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.http.tls_cert_file and tls_key_file must be set together"))
	}
	if h.RateLimit < 0 {
		errs = append(errs, errors.New("server.http.rate_limit must not be negative"))
	}
	if h.RateLimit > 0 && h.RateBurst < 1 {
		errs = append(errs, errors.New("server.http.rate_burst must be at least 1 when rate limiting"))
	}
	return errs
}

func verifyLog(cfg *LogSection) []error {
	var errs []error
	if !logger.ValidLevel(cfg.Level) {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level))
	}
	if cfg.Format != "json" && cfg.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, text", cfg.Format))
	}
	if cfg.MaxSizeMB < 0 || cfg.MaxBackups < 0 || cfg.MaxAgeDays < 0 {
		errs = append(errs, errors.New("log rotation limits must not be negative"))
	}
	return errs
}
