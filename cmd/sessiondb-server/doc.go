// Command sessiondb-server serves a document-backed session store over HTTP.
//
// The backend (mongo, badger, redis or memory) is chosen by configuration.
// The store connects in the background: /ready reports 503 until the
// connection is open, and operations either wait for it or fail fast.
//
// Usage:
//
//	sessiondb-server [--config FILE] [serve]
//	sessiondb-server [--config FILE] reap --max-age 24h
//	sessiondb-server [--config FILE] count
//	sessiondb-server [--config FILE] config
//	sessiondb-server version
package main
