// Package service provides the session store and its reaper.
//
// This package contains:
//
//   - Store: fetch, generate, commit, destroy, clear, length and reap over
//     a storage.Collection, guarded by a connection readiness promise
//   - Reaper: cron-driven reap runs with single-completion results
//
// Store owns its collection. Open returns at once and connects in the
// background; operations wait for the connection (or fail with
// domain.ErrNotReady in fail-fast mode).
package service
