// Package logger provides structured logging for SessionDB.
//
// It wraps the standard library log/slog:
//
//   - logger.go: Logger interface, configuration and the process default
//   - context.go: context propagation of loggers and request IDs
//   - redact.go: masking of secrets and URI credentials
//
// Output goes to stderr unless a file is configured, in which case it is
// rotated by lumberjack. The level is process wide and can be changed at
// runtime with SetLevel.
package logger
