// Package buildinfo provides build information for SessionDB.
//
// Values are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/sessiondb/internal/infra/buildinfo.Version=v1.0.0"
//
// When they are not set, the module version and VCS data embedded by the
// Go toolchain are used.
package buildinfo
