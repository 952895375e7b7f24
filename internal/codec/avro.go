// Package codec converts records to and from their wire representations.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jittakal/kafetl/pkg/record"
	"github.com/linkedin/goavro/v2"
)

// Ensure implementation satisfies interface at compile time.
var _ record.Codec = (*AvroCodec)(nil)

const avroNamespace = "io.kafetl.record"

// AvroCodec encodes records with the Avro binary encoding of their schema.
// Frames carry no schema header; both ends share the record.Schema.
type AvroCodec struct {
	schema *record.Schema
	codec  *goavro.Codec
	names  []string // Avro field name per schema field
}

// NewAvroCodec creates a codec for records of the given schema.
func NewAvroCodec(schema *record.Schema) (*AvroCodec, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	avsc, err := AvroSchema(schema)
	if err != nil {
		return nil, err
	}
	codec, err := goavro.NewCodec(avsc)
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	names := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		names[i] = AvroName(f.Name)
	}

	return &AvroCodec{
		schema: schema,
		codec:  codec,
		names:  names,
	}, nil
}

// Schema returns the record schema served by this codec.
func (c *AvroCodec) Schema() *record.Schema {
	return c.schema
}

// Codec returns the underlying goavro codec.
func (c *AvroCodec) Codec() *goavro.Codec {
	return c.codec
}

// Serialize appends the Avro binary encoding of rec to dst.
func (c *AvroCodec) Serialize(dst []byte, rec *record.Record) ([]byte, error) {
	native, err := c.ToNative(rec)
	if err != nil {
		return dst, err
	}
	out, err := c.codec.BinaryFromNative(dst, native)
	if err != nil {
		return dst, fmt.Errorf("failed to encode record: %w", err)
	}
	return out, nil
}

// Deserialize decodes one record from src into rec and returns the remaining bytes.
// rec is re-bound to the codec's schema when it belongs to another one.
func (c *AvroCodec) Deserialize(src []byte, rec *record.Record) ([]byte, error) {
	native, rest, err := c.codec.NativeFromBinary(src)
	if err != nil {
		return src, fmt.Errorf("failed to decode record: %w", err)
	}
	m, ok := native.(map[string]interface{})
	if !ok {
		return src, fmt.Errorf("failed to decode record: unexpected native type %T", native)
	}

	if rec.Schema != c.schema || len(rec.Values) != len(c.schema.Fields) {
		rec.Schema = c.schema
		rec.Values = make([]any, len(c.schema.Fields))
	}

	for i, f := range c.schema.Fields {
		v, err := fromAvro(f, m[c.names[i]])
		if err != nil {
			return src, fmt.Errorf("field %s: %w", f.Name, err)
		}
		rec.Values[i] = v
	}
	return rest, nil
}

// ToNative converts rec into the goavro native form, checking every value.
func (c *AvroCodec) ToNative(rec *record.Record) (map[string]interface{}, error) {
	if len(rec.Values) != len(c.schema.Fields) {
		return nil, fmt.Errorf("record has %d values, schema %s has %d fields",
			len(rec.Values), c.schema.Name, len(c.schema.Fields))
	}

	native := make(map[string]interface{}, len(c.schema.Fields))
	for i, f := range c.schema.Fields {
		v := rec.Values[i]
		if err := record.CheckValue(f, v); err != nil {
			return nil, err
		}
		native[c.names[i]] = toAvro(f, v)
	}
	return native, nil
}

type avroField struct {
	Name    string          `json:"name"`
	Type    any             `json:"type"`
	Default json.RawMessage `json:"default,omitempty"`
}

type avroRecord struct {
	Type      string      `json:"type"`
	Name      string      `json:"name"`
	Namespace string      `json:"namespace"`
	Fields    []avroField `json:"fields"`
}

// AvroSchema renders the Avro schema JSON for s. Timestamps are longs holding
// microseconds since the Unix epoch; nullable fields are unions with null.
func AvroSchema(s *record.Schema) (string, error) {
	rs := avroRecord{
		Type:      "record",
		Name:      AvroName(s.Name),
		Namespace: avroNamespace,
		Fields:    make([]avroField, 0, len(s.Fields)),
	}

	for _, f := range s.Fields {
		af := avroField{Name: AvroName(f.Name), Type: avroType(f.Type)}
		if f.Nullable {
			af.Type = []string{"null", avroType(f.Type)}
			af.Default = json.RawMessage("null")
		}
		rs.Fields = append(rs.Fields, af)
	}

	b, err := json.Marshal(rs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal avro schema: %w", err)
	}
	return string(b), nil
}

// AvroName maps an arbitrary name onto the Avro name grammar [A-Za-z_][A-Za-z0-9_]*.
func AvroName(name string) string {
	var sb strings.Builder
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		return "_"
	}
	return sb.String()
}

func avroType(t record.FieldType) string {
	switch t {
	case record.TypeTimestamp:
		return "long"
	default:
		// The remaining field types share their Avro primitive names.
		return string(t)
	}
}

func toAvro(f record.Field, v any) interface{} {
	if v == nil {
		return nil
	}
	if t, ok := v.(time.Time); ok {
		v = t.UnixMicro()
	}
	if f.Nullable {
		return goavro.Union(avroType(f.Type), v)
	}
	return v
}

func fromAvro(f record.Field, v interface{}) (any, error) {
	if v == nil {
		if !f.Nullable {
			return nil, fmt.Errorf("unexpected null")
		}
		return nil, nil
	}
	if u, ok := v.(map[string]interface{}); ok {
		v = u[avroType(f.Type)]
	}

	switch f.Type {
	case record.TypeTimestamp:
		micros, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected native type %T for timestamp", v)
		}
		return time.UnixMicro(micros).UTC(), nil
	case record.TypeBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("unexpected native type %T for bytes", v)
		}
		// Decoded bytes may alias the frame, which the buffer reuses.
		return bytes.Clone(b), nil
	}
	return v, nil
}
