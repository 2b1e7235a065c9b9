// Package config provides server configuration for SessionDB.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default values and the defaults layer for the loader
//   - verify.go: validation
//   - sanitize.go: masking of secrets before the config is logged
//
// Configuration is loaded via internal/infra/confloader from defaults, a
// YAML file and SESSIONDB_* environment variables.
package config
