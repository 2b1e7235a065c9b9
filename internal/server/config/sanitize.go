package config

import (
	"strings"

	"github.com/yndnr/sessiondb/internal/telemetry/logger"
)

// Sanitize returns a copy of the config with secrets masked, for logging.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	if sanitized.Badger.EncryptionKey != "" {
		sanitized.Badger.EncryptionKey = maskSecret(sanitized.Badger.EncryptionKey)
	}
	if sanitized.Redis.Password != "" {
		sanitized.Redis.Password = maskSecret(sanitized.Redis.Password)
	}
	if sanitized.Mongo.URI != "" {
		sanitized.Mongo.URI = logger.RedactURI(sanitized.Mongo.URI)
	}
	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
