package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/yndnr/sessiondb/internal/core/domain"
)

// jsonAPI decodes numbers as json.Number so integers survive the round trip
// as int64 instead of float64.
var jsonAPI = sonic.Config{
	UseNumber:   true,
	SortMapKeys: true,
}.Froze()

// MarshalDocument encodes d as a flat JSON object {lastAccess, ...fields}.
// The id is not part of the payload; backends key records by it.
func MarshalDocument(d *domain.Document) ([]byte, error) {
	flat := make(map[string]any, len(d.Fields)+1)
	for k, v := range d.Fields {
		flat[k] = encodeValue(v)
	}
	flat[domain.FieldLastAccess] = d.LastAccess
	data, err := jsonAPI.Marshal(flat)
	if err != nil {
		return nil, fmt.Errorf("storage: encode document: %w", err)
	}
	return data, nil
}

// encodeValue rewrites float64 values as json.Number literals that always
// carry a fraction or exponent, so whole floats decode back as floats.
func encodeValue(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return t
		}
		s := strconv.FormatFloat(t, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return json.Number(s)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = encodeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = encodeValue(e)
		}
		return out
	default:
		return v
	}
}

// UnmarshalDocument decodes a payload written by MarshalDocument.
func UnmarshalDocument(id string, data []byte) (*domain.Document, error) {
	var flat map[string]any
	if err := jsonAPI.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("storage: decode document %s: %w", id, err)
	}

	d := &domain.Document{ID: id, Fields: make(map[string]any, len(flat))}
	for k, v := range flat {
		switch k {
		case domain.FieldLastAccess:
			n, ok := v.(json.Number)
			if !ok {
				return nil, fmt.Errorf("storage: decode document %s: lastAccess is %T", id, v)
			}
			ms, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("storage: decode document %s: lastAccess: %w", id, err)
			}
			d.LastAccess = ms
		case domain.FieldID, domain.FieldAliasID:
		default:
			nv, err := domain.NormalizeValue(v)
			if err != nil {
				return nil, fmt.Errorf("storage: decode document %s: %w", id, err)
			}
			d.Fields[k] = nv
		}
	}
	return d, nil
}
