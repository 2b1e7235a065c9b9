// Package domain defines the core domain models for SessionDB.
//
// Domain models are pure value objects without any IO dependencies or
// driver coupling. This package contains:
//
//   - Session: the in-memory view of a client session
//   - Document: the persisted form of a session and its codec
//   - Errors: store error taxonomy with stable codes
//
// Attribute values follow an explicit schema. NormalizeValue maps every
// accepted Go type onto a canonical form so that a committed session reads
// back identically from every backend.
package domain
