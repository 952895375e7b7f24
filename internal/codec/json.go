package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jittakal/kafetl/internal/errors"
	"github.com/jittakal/kafetl/pkg/record"
)

// FromJSON decodes a JSON object into rec, which must already be bound to a schema.
// Unknown keys are ignored and missing keys become null; nullability is left to
// the validator. Bytes are base64 strings and timestamps RFC 3339 strings.
func FromJSON(data []byte, rec *record.Record) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return &errors.ValidationError{
			Schema: rec.Schema.Name,
			Reason: fmt.Sprintf("malformed JSON: %v", err),
		}
	}
	if obj == nil {
		return &errors.ValidationError{Schema: rec.Schema.Name, Reason: "expected a JSON object"}
	}

	rec.Reset()
	for i, f := range rec.Schema.Fields {
		raw, ok := obj[f.Name]
		if !ok || raw == nil {
			continue
		}
		v, err := fromJSONValue(f.Type, raw)
		if err != nil {
			return &errors.ValidationError{
				Schema: rec.Schema.Name,
				Field:  f.Name,
				Reason: err.Error(),
			}
		}
		rec.Values[i] = v
	}
	return nil
}

func fromJSONValue(t record.FieldType, raw any) (any, error) {
	switch t {
	case record.TypeString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
	case record.TypeLong:
		if n, ok := raw.(json.Number); ok {
			v, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("not an integer: %s", n)
			}
			return v, nil
		}
	case record.TypeDouble:
		if n, ok := raw.(json.Number); ok {
			v, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("not a number: %s", n)
			}
			return v, nil
		}
	case record.TypeBoolean:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	case record.TypeBytes:
		if s, ok := raw.(string); ok {
			v, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("invalid base64: %v", err)
			}
			return v, nil
		}
	case record.TypeTimestamp:
		if s, ok := raw.(string); ok {
			v, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp: %v", err)
			}
			return v.UTC().Truncate(time.Microsecond), nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", t, raw)
}

// ToJSON encodes rec as a JSON object keyed by field name.
func ToJSON(rec *record.Record) ([]byte, error) {
	obj := make(map[string]any, len(rec.Values))
	for i, f := range rec.Schema.Fields {
		v := rec.Values[i]
		switch tv := v.(type) {
		case time.Time:
			obj[f.Name] = tv.UTC().Format(time.RFC3339Nano)
		default:
			// []byte marshals as base64, matching FromJSON.
			obj[f.Name] = v
		}
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}
