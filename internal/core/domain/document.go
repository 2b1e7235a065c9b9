package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Document is the persisted form of a session.
//
// Backends flatten Fields next to the reserved fields, so a stored record
// looks like {_id, lastAccess, ...attributes}.
type Document struct {
	// ID is the backend-encoded identifier in its string form. Empty on insert.
	ID string

	// LastAccess is the last access timestamp (Unix milliseconds).
	LastAccess int64

	// Fields holds normalized attribute values.
	Fields map[string]any
}

// Clone creates a deep copy of the document.
func (d *Document) Clone() *Document {
	return &Document{
		ID:         d.ID,
		LastAccess: d.LastAccess,
		Fields:     cloneMap(d.Fields),
	}
}

// ToDocument encodes a session into its persisted form.
//
// The identifier is copied as-is; backends decode it separately. Generated
// is never persisted. Attributes are normalized and validated against the
// attribute schema.
func ToDocument(s *Session) (*Document, error) {
	fields := make(map[string]any, len(s.Attributes))
	for k, v := range s.Attributes {
		if k == "" {
			return nil, ErrInvalidArgument.WithDetails("attribute key must not be empty")
		}
		if IsReservedField(k) {
			return nil, ErrInvalidArgument.WithDetails("attribute key " + k + " is reserved")
		}
		nv, err := NormalizeValue(v)
		if err != nil {
			return nil, ErrInvalidArgument.WithDetails("attribute " + k + ": " + err.Error())
		}
		fields[k] = nv
	}
	return &Document{
		ID:         s.ID,
		LastAccess: s.LastAccess,
		Fields:     fields,
	}, nil
}

// FromDocument decodes a persisted document into a session.
//
// Reserved field names that leaked into Fields are dropped. Values are
// normalized again so wide numeric wrappers produced by a decoder become
// plain int64/float64.
func FromDocument(d *Document) *Session {
	attrs := make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		if IsReservedField(k) {
			continue
		}
		if nv, err := NormalizeValue(v); err == nil {
			attrs[k] = nv
		} else {
			attrs[k] = v
		}
	}
	return &Session{
		ID:         d.ID,
		LastAccess: d.LastAccess,
		Attributes: attrs,
	}
}

// NormalizeAttributes returns the canonical form of an attribute map.
func NormalizeAttributes(attrs map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		nv, err := NormalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

// NormalizeValue maps an attribute value onto its canonical form.
//
// Accepted: nil, bool, string, every integer kind (int64), finite
// float32/float64 (float64), time.Time (epoch milliseconds), json.Number, []any, []string
// and map[string]any, recursively. Anything else is rejected.
func NormalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool, string:
		return t, nil
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return normalizeUint(uint64(t))
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		return normalizeUint(t)
	case float32:
		return normalizeFloat(float64(t))
	case float64:
		return normalizeFloat(t)
	case time.Time:
		return t.UnixMilli(), nil
	case json.Number:
		return normalizeNumber(t)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			ne, err := NormalizeValue(e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = ne
		}
		return out, nil
	case map[string]any:
		return NormalizeAttributes(t)
	default:
		return nil, fmt.Errorf("unsupported attribute type %T", v)
	}
}

func normalizeUint(u uint64) (any, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("integer %d overflows int64", u)
	}
	return int64(u), nil
}

func normalizeFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	return f, nil
}

// normalizeNumber keeps the integer/float distinction of the literal: a
// fraction or exponent makes a float64, so 42.0 stays a float.
func normalizeNumber(n json.Number) (any, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}
