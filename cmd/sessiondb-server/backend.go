package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/sessiondb/internal/server/config"
	"github.com/yndnr/sessiondb/internal/storage"
	"github.com/yndnr/sessiondb/internal/storage/memory"
	"github.com/yndnr/sessiondb/internal/storage/mongo"
	"github.com/yndnr/sessiondb/internal/storage/redis"
	"github.com/yndnr/sessiondb/internal/telemetry/logger"
)

// newConnector maps the store configuration onto a backend connector.
// reg may be nil.
func newConnector(cfg *config.ServerConfig, l logger.Logger, reg prometheus.Registerer) (storage.Connector, error) {
	switch cfg.Store.Backend {
	case config.BackendMongo:
		mc := mongo.DefaultConfig()
		mc.URI = cfg.Mongo.URI
		mc.Host = cfg.Mongo.Host
		mc.Port = cfg.Mongo.Port
		mc.Database = cfg.Mongo.Database
		mc.Collection = cfg.Mongo.Collection
		mc.AutoReconnect = cfg.Mongo.AutoReconnect
		mc.ConnectTimeout = cfg.Store.ConnectTimeout
		return mongo.Connector{Config: mc}, nil

	case config.BackendBadger:
		bc := storage.DefaultBadgerConfig(cfg.Badger.DataDir)
		bc.InMemory = cfg.Badger.InMemory
		bc.GCInterval = cfg.Badger.GCInterval
		bc.SyncWrites = cfg.Badger.SyncWrites
		bc.EncryptionKey = cfg.Badger.EncryptionKey
		return storage.BadgerConnector{
			Config:     bc,
			Logger:     logger.Slog(l).With("component", "badger"),
			Registerer: reg,
		}, nil

	case config.BackendRedis:
		return redis.Connector{Config: redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}}, nil

	case config.BackendMemory:
		return memory.Connector(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// newLogger builds the process logger. The returned func releases the
// rotated log file, if any.
func newLogger(cfg config.LogSection) (logger.Logger, func() error, error) {
	lc := logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		File:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	closeFn := func() error { return nil }
	if cfg.File != "" {
		w := logger.FileWriter(lc)
		lc.Output, closeFn = w, w.Close
	} else {
		lc.Output = os.Stdout
	}

	l, err := logger.New(lc)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return l, closeFn, nil
}
