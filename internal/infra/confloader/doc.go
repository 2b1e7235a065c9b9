// Package confloader loads layered configuration with koanf.
//
// Priority (highest to lowest):
//
//  1. Environment variables (SESSIONDB_SECTION_KEY)
//  2. YAML configuration file
//  3. Defaults
//
// Watcher reports changes to the configuration file through fsnotify so
// callers can re-apply the settings that are safe to change at runtime.
package confloader
