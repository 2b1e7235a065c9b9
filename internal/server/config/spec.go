package config

import "time"

// Backend names.
const (
	BackendMongo  = "mongo"
	BackendBadger = "badger"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ServerConfig is the root configuration for sessiondb-server.
type ServerConfig struct {
	Store  StoreSection  `koanf:"store"`
	Mongo  MongoSection  `koanf:"mongo"`
	Badger BadgerSection `koanf:"badger"`
	Redis  RedisSection  `koanf:"redis"`
	Reaper ReaperSection `koanf:"reaper"`
	Server ServerSection `koanf:"server"`
	Log    LogSection    `koanf:"log"`
}

// StoreSection selects and tunes the session store.
type StoreSection struct {
	// Backend is one of mongo, badger, memory, redis.
	Backend string `koanf:"backend"`

	// FailFast rejects operations with a not-ready error while the
	// connection is still opening instead of waiting for it.
	FailFast bool `koanf:"fail_fast"`

	// ConnectTimeout bounds the background connection attempt.
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// MongoSection configures the MongoDB backend.
type MongoSection struct {
	// URI overrides Host and Port when set.
	URI           string `koanf:"uri"`
	Host          string `koanf:"host"`
	Port          int    `koanf:"port"`
	Database      string `koanf:"database"`
	Collection    string `koanf:"collection"`
	AutoReconnect bool   `koanf:"auto_reconnect"`
}

// BadgerSection configures the embedded backend.
type BadgerSection struct {
	DataDir    string        `koanf:"data_dir"`
	InMemory   bool          `koanf:"in_memory"`
	GCInterval time.Duration `koanf:"gc_interval"`
	SyncWrites bool          `koanf:"sync_writes"`

	// EncryptionKey enables at-rest encryption when set.
	EncryptionKey string `koanf:"encryption_key"`
}

// RedisSection configures the Redis backend.
type RedisSection struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// ReaperSection configures scheduled expiry sweeps.
type ReaperSection struct {
	Enabled  bool          `koanf:"enabled"`
	Schedule string        `koanf:"schedule"`
	MaxAge   time.Duration `koanf:"max_age"`
	Timeout  time.Duration `koanf:"timeout"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// RateLimit is the allowed requests per second per client IP.
	// Zero disables rate limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogSection configures logging.
type LogSection struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}
