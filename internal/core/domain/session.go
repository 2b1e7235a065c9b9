package domain

import (
	"strings"
	"time"
)

// Reserved field names. They carry store metadata and cannot be used as
// attribute keys.
const (
	FieldID         = "_id"
	FieldAliasID    = "id"
	FieldLastAccess = "lastAccess"
)

// Session is the in-memory view of a persisted client session.
type Session struct {
	// ID is the opaque identifier assigned by the backing collection.
	// Empty means the session has not been persisted yet.
	ID string `json:"id"`

	// LastAccess is the last access timestamp (Unix milliseconds).
	LastAccess int64 `json:"last_access"`

	// Attributes holds the open-ended session data.
	Attributes map[string]any `json:"attributes"`

	// Generated is set when the store created this session instead of
	// loading the one that was asked for. It is never persisted.
	Generated bool `json:"generated"`
}

// NewSession returns an unpersisted session accessed at now.
func NewSession(now time.Time) *Session {
	return &Session{
		LastAccess: now.UnixMilli(),
		Attributes: make(map[string]any),
	}
}

// IsNew reports whether the session has not been persisted yet.
func (s *Session) IsNew() bool {
	return s.ID == ""
}

// Touch updates the LastAccess timestamp.
func (s *Session) Touch(now time.Time) {
	s.LastAccess = now.UnixMilli()
}

// LastAccessTime returns LastAccess as time.Time.
func (s *Session) LastAccessTime() time.Time {
	return time.UnixMilli(s.LastAccess)
}

// Get returns an attribute value.
func (s *Session) Get(key string) (any, bool) {
	v, ok := s.Attributes[key]
	return v, ok
}

// Set stores an attribute value.
func (s *Session) Set(key string, value any) {
	if s.Attributes == nil {
		s.Attributes = make(map[string]any)
	}
	s.Attributes[key] = value
}

// Delete removes an attribute.
func (s *Session) Delete(key string) {
	delete(s.Attributes, key)
}

// Clone creates a deep copy of the session.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Attributes = cloneMap(s.Attributes)
	return &clone
}

// Validate checks the attribute keys and values against the attribute schema.
// Returns ErrInvalidArgument describing every violation.
func (s *Session) Validate() error {
	var violations []string
	for k, v := range s.Attributes {
		if IsReservedField(k) {
			violations = append(violations, "attribute key "+k+" is reserved")
			continue
		}
		if k == "" {
			violations = append(violations, "attribute key must not be empty")
			continue
		}
		if _, err := NormalizeValue(v); err != nil {
			violations = append(violations, "attribute "+k+": "+err.Error())
		}
	}
	if len(violations) > 0 {
		return ErrInvalidArgument.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// IsReservedField reports whether name is a store metadata field.
func IsReservedField(name string) bool {
	switch name {
	case FieldID, FieldAliasID, FieldLastAccess:
		return true
	}
	return false
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return make(map[string]any)
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
