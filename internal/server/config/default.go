package config

import "time"

// Default configuration values.
const (
	DefaultBackend        = BackendMongo
	DefaultConnectTimeout = 10 * time.Second

	DefaultMongoHost       = "127.0.0.1"
	DefaultMongoPort       = 27017
	DefaultMongoDatabase   = "sessions"
	DefaultMongoCollection = "sessions"

	DefaultBadgerDataDir    = "/var/lib/sessiondb/badger"
	DefaultBadgerGCInterval = 10 * time.Minute

	DefaultRedisAddr   = "127.0.0.1:6379"
	DefaultRedisPrefix = "sessiondb:"

	DefaultReaperSchedule = "@every 10m"
	DefaultReaperMaxAge   = 24 * time.Hour
	DefaultReaperTimeout  = 5 * time.Minute

	DefaultHTTPAddr        = "127.0.0.1:5080"
	DefaultRateBurst       = 20
	DefaultShutdownTimeout = 15 * time.Second

	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultLogMaxSizeMB  = 100
	DefaultLogMaxBackups = 3
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Store: StoreSection{
			Backend:        DefaultBackend,
			ConnectTimeout: DefaultConnectTimeout,
		},
		Mongo: MongoSection{
			Host:          DefaultMongoHost,
			Port:          DefaultMongoPort,
			Database:      DefaultMongoDatabase,
			Collection:    DefaultMongoCollection,
			AutoReconnect: true,
		},
		Badger: BadgerSection{
			DataDir:    DefaultBadgerDataDir,
			GCInterval: DefaultBadgerGCInterval,
		},
		Redis: RedisSection{
			Addr:   DefaultRedisAddr,
			Prefix: DefaultRedisPrefix,
		},
		Reaper: ReaperSection{
			Enabled:  true,
			Schedule: DefaultReaperSchedule,
			MaxAge:   DefaultReaperMaxAge,
			Timeout:  DefaultReaperTimeout,
		},
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:            DefaultHTTPAddr,
				RateBurst:       DefaultRateBurst,
				ShutdownTimeout: DefaultShutdownTimeout,
			},
		},
		Log: LogSection{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFormat,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
		},
	}
}

// DefaultMap returns Default as a nested map keyed like the YAML file.
// It is the lowest layer of the loader, and its keys let environment
// variables such as SESSIONDB_MONGO_AUTO_RECONNECT resolve to keys that
// contain underscores.
func DefaultMap() map[string]any {
	return ToMap(Default())
}

// ToMap converts cfg into a nested map keyed like the YAML file.
// Durations are rendered as strings.
func ToMap(cfg *ServerConfig) map[string]any {
	return map[string]any{
		"store": map[string]any{
			"backend":         cfg.Store.Backend,
			"fail_fast":       cfg.Store.FailFast,
			"connect_timeout": cfg.Store.ConnectTimeout.String(),
		},
		"mongo": map[string]any{
			"uri":            cfg.Mongo.URI,
			"host":           cfg.Mongo.Host,
			"port":           cfg.Mongo.Port,
			"database":       cfg.Mongo.Database,
			"collection":     cfg.Mongo.Collection,
			"auto_reconnect": cfg.Mongo.AutoReconnect,
		},
		"badger": map[string]any{
			"data_dir":       cfg.Badger.DataDir,
			"in_memory":      cfg.Badger.InMemory,
			"gc_interval":    cfg.Badger.GCInterval.String(),
			"sync_writes":    cfg.Badger.SyncWrites,
			"encryption_key": cfg.Badger.EncryptionKey,
		},
		"redis": map[string]any{
			"addr":     cfg.Redis.Addr,
			"password": cfg.Redis.Password,
			"db":       cfg.Redis.DB,
			"prefix":   cfg.Redis.Prefix,
		},
		"reaper": map[string]any{
			"enabled":  cfg.Reaper.Enabled,
			"schedule": cfg.Reaper.Schedule,
			"max_age":  cfg.Reaper.MaxAge.String(),
			"timeout":  cfg.Reaper.Timeout.String(),
		},
		"server": map[string]any{
			"http": map[string]any{
				"addr":             cfg.Server.HTTP.Addr,
				"tls_cert_file":    cfg.Server.HTTP.TLSCertFile,
				"tls_key_file":     cfg.Server.HTTP.TLSKeyFile,
				"rate_limit":       cfg.Server.HTTP.RateLimit,
				"rate_burst":       cfg.Server.HTTP.RateBurst,
				"shutdown_timeout": cfg.Server.HTTP.ShutdownTimeout.String(),
			},
		},
		"log": map[string]any{
			"level":        cfg.Log.Level,
			"format":       cfg.Log.Format,
			"file":         cfg.Log.File,
			"max_size_mb":  cfg.Log.MaxSizeMB,
			"max_backups":  cfg.Log.MaxBackups,
			"max_age_days": cfg.Log.MaxAgeDays,
			"compress":     cfg.Log.Compress,
		},
	}
}
