// Package handler provides HTTP request handlers for SessionDB.
//
// This package contains handlers for all HTTP endpoints:
//
//   - session.go: fetch, generate, commit and destroy
//   - admin.go: count, reap, clear and status
//   - health.go: health, readiness and metrics
//
// All handlers follow a consistent pattern:
//
//   - Parse and validate request
//   - Call the session store
//   - Format and return response
//   - Map domain errors to HTTP status codes
package handler
