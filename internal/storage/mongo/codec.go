package mongo

import (
	"fmt"
	"sort"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/yndnr/sessiondb/internal/core/domain"
	"github.com/yndnr/sessiondb/internal/storage"
)

// parseID decodes a 24-character hex ObjectID.
func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", storage.ErrInvalidID, id)
	}
	return oid, nil
}

// encode flattens d into {_id, lastAccess, ...fields}. Field order is
// sorted so the stored document is deterministic.
func encode(oid primitive.ObjectID, d *domain.Document) bson.D {
	keys := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		if domain.IsReservedField(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(bson.D, 0, len(keys)+2)
	out = append(out,
		bson.E{Key: domain.FieldID, Value: oid},
		bson.E{Key: domain.FieldLastAccess, Value: d.LastAccess},
	)
	for _, k := range keys {
		out = append(out, bson.E{Key: k, Value: d.Fields[k]})
	}
	return out
}

// decode turns a raw BSON document into a domain.Document.
func decode(raw bson.M) (*domain.Document, error) {
	d := &domain.Document{Fields: make(map[string]any, len(raw))}

	for k, v := range raw {
		switch k {
		case domain.FieldID:
			switch id := v.(type) {
			case primitive.ObjectID:
				d.ID = id.Hex()
			case string:
				d.ID = id
			default:
				return nil, fmt.Errorf("mongo: unsupported _id type %T", v)
			}
		case domain.FieldLastAccess:
			ms, err := toInt64(v)
			if err != nil {
				return nil, fmt.Errorf("mongo: lastAccess: %w", err)
			}
			d.LastAccess = ms
		case domain.FieldAliasID:
		default:
			d.Fields[k] = normalize(v)
		}
	}
	return d, nil
}

// normalize unwraps driver types into the plain attribute schema.
// Values with no plain equivalent are kept as decoded.
func normalize(v any) any {
	switch t := v.(type) {
	case int32:
		return int64(t)
	case primitive.DateTime:
		return int64(t)
	case primitive.Decimal128:
		if n, err := decimalToNumber(t); err == nil {
			return n
		}
		return t.String()
	case primitive.ObjectID:
		return t.Hex()
	case primitive.Timestamp:
		return int64(t.T) * 1000
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int32:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case primitive.DateTime:
		return int64(t), nil
	case primitive.Decimal128:
		n, err := decimalToNumber(t)
		if err != nil {
			return 0, err
		}
		switch x := n.(type) {
		case int64:
			return x, nil
		case float64:
			return int64(x), nil
		}
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

// decimalToNumber maps a Decimal128 onto int64 when integral, else float64.
func decimalToNumber(d primitive.Decimal128) (any, error) {
	s := d.String()
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("decimal %s: %w", s, err)
	}
	return f, nil
}

// buildFilter translates a storage filter into a query document.
func buildFilter(f storage.Filter) (bson.M, error) {
	q := bson.M{}
	if f.ID != "" {
		oid, err := parseID(f.ID)
		if err != nil {
			return nil, err
		}
		q[domain.FieldID] = oid
	}
	if f.LastAccessBefore != nil {
		q[domain.FieldLastAccess] = bson.M{"$lt": *f.LastAccessBefore}
	}
	return q, nil
}
