// Package record defines the structured records exchanged between graph nodes.
package record

import (
	"bytes"
	"fmt"
	"time"
)

// FieldType is the logical type of a record field.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeLong      FieldType = "long"
	TypeDouble    FieldType = "double"
	TypeBoolean   FieldType = "boolean"
	TypeBytes     FieldType = "bytes"
	TypeTimestamp FieldType = "timestamp"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeLong, TypeDouble, TypeBoolean, TypeBytes, TypeTimestamp:
		return true
	}
	return false
}

// Field describes one column of a record.
type Field struct {
	Name     string    `json:"name" mapstructure:"name"`
	Type     FieldType `json:"type" mapstructure:"type"`
	Nullable bool      `json:"nullable,omitempty" mapstructure:"nullable"`
}

// Schema describes the layout of a record.
type Schema struct {
	Name   string  `json:"name" mapstructure:"name"`
	Fields []Field `json:"fields" mapstructure:"fields"`
}

// Validate checks that the schema is well formed.
func (s *Schema) Validate() error {
	if s == nil {
		return fmt.Errorf("schema is nil")
	}
	if s.Name == "" {
		return fmt.Errorf("schema name is required")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %s has no fields", s.Name)
	}

	seen := make(map[string]struct{}, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %s: field %d has no name", s.Name, i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema %s: duplicate field %s", s.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
		if !f.Type.Valid() {
			return fmt.Errorf("schema %s: field %s has unsupported type %q", s.Name, f.Name, f.Type)
		}
	}
	return nil
}

// FieldIndex returns the position of the named field, or -1.
func (s *Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// NewRecord allocates an empty record of this schema.
func (s *Schema) NewRecord() *Record {
	return &Record{
		Schema: s,
		Values: make([]any, len(s.Fields)),
	}
}

// Record is one row of data laid out according to its Schema.
// Values[i] holds the value of Schema.Fields[i]; nil means null.
type Record struct {
	Schema *Schema
	Values []any
}

// Get returns the value of the named field.
func (r *Record) Get(name string) (any, bool) {
	i := r.Schema.FieldIndex(name)
	if i < 0 {
		return nil, false
	}
	return r.Values[i], true
}

// Set assigns the named field after checking the value's type.
func (r *Record) Set(name string, value any) error {
	i := r.Schema.FieldIndex(name)
	if i < 0 {
		return fmt.Errorf("schema %s has no field %s", r.Schema.Name, name)
	}
	if err := CheckValue(r.Schema.Fields[i], value); err != nil {
		return err
	}
	r.Values[i] = value
	return nil
}

// Reset sets every field to null so the record can be reused.
func (r *Record) Reset() {
	for i := range r.Values {
		r.Values[i] = nil
	}
}

// Copy returns a deep copy of the record. Byte slices are duplicated.
func (r *Record) Copy() *Record {
	c := &Record{Schema: r.Schema, Values: make([]any, len(r.Values))}
	for i, v := range r.Values {
		if b, ok := v.([]byte); ok {
			v = bytes.Clone(b)
		}
		c.Values[i] = v
	}
	return c
}

// Equal reports whether two records hold the same values.
func (r *Record) Equal(o *Record) bool {
	if o == nil || len(r.Values) != len(o.Values) {
		return false
	}
	for i := range r.Values {
		if !valueEqual(r.Values[i], o.Values[i]) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	switch av := a.(type) {
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	default:
		return a == b
	}
}

// CheckValue verifies that value is acceptable for the field.
func CheckValue(f Field, value any) error {
	if value == nil {
		if f.Nullable {
			return nil
		}
		return fmt.Errorf("field %s is not nullable", f.Name)
	}

	ok := false
	switch f.Type {
	case TypeString:
		_, ok = value.(string)
	case TypeLong:
		_, ok = value.(int64)
	case TypeDouble:
		_, ok = value.(float64)
	case TypeBoolean:
		_, ok = value.(bool)
	case TypeBytes:
		_, ok = value.([]byte)
	case TypeTimestamp:
		_, ok = value.(time.Time)
	}
	if !ok {
		return fmt.Errorf("field %s expects %s, got %T", f.Name, f.Type, value)
	}
	return nil
}

// Codec turns records into byte frames and back.
type Codec interface {
	// Serialize appends the encoded record to dst and returns the extended slice.
	Serialize(dst []byte, rec *Record) ([]byte, error)

	// Deserialize decodes one record from src into rec and returns the unread remainder.
	Deserialize(src []byte, rec *Record) ([]byte, error)
}

// FileStats contains statistics about a batch of records.
type FileStats struct {
	RecordCount    int
	SizeBytes      int64
	FirstWriteTime time.Time
	LastWriteTime  time.Time
}

// FileFormat represents the storage file format.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatAvro    FileFormat = "avro"
)
