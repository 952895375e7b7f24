// Package validator checks records against their schema.
package validator

import (
	"math"
	"time"

	"github.com/jittakal/kafetl/internal/errors"
	"github.com/jittakal/kafetl/pkg/record"
)

// RecordValidator validates records of one schema.
type RecordValidator struct {
	schema   *record.Schema
	nonEmpty map[int]struct{}
}

// NewRecordValidator creates a validator for schema. Fields listed in
// nonEmpty must hold a non-empty string or byte slice when present.
func NewRecordValidator(schema *record.Schema, nonEmpty ...string) (*RecordValidator, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	v := &RecordValidator{
		schema:   schema,
		nonEmpty: make(map[int]struct{}, len(nonEmpty)),
	}
	for _, name := range nonEmpty {
		i := schema.FieldIndex(name)
		if i < 0 {
			return nil, &errors.ValidationError{
				Schema: schema.Name,
				Field:  name,
				Reason: "non-empty rule names an unknown field",
			}
		}
		v.nonEmpty[i] = struct{}{}
	}
	return v, nil
}

// Validate checks that rec belongs to the schema and every value fits its field.
func (v *RecordValidator) Validate(rec *record.Record) error {
	if len(rec.Values) != len(v.schema.Fields) {
		return &errors.ValidationError{
			Schema: v.schema.Name,
			Reason: "record does not match schema layout",
		}
	}

	for i, f := range v.schema.Fields {
		val := rec.Values[i]
		if val == nil {
			if !f.Nullable {
				return &errors.ValidationError{
					Schema: v.schema.Name,
					Field:  f.Name,
					Reason: "required field is missing",
				}
			}
			continue
		}

		if err := record.CheckValue(f, val); err != nil {
			return &errors.ValidationError{
				Schema: v.schema.Name,
				Field:  f.Name,
				Reason: err.Error(),
			}
		}

		if reason := checkRange(val); reason != "" {
			return &errors.ValidationError{Schema: v.schema.Name, Field: f.Name, Reason: reason}
		}

		if _, ok := v.nonEmpty[i]; ok && isEmpty(val) {
			return &errors.ValidationError{
				Schema: v.schema.Name,
				Field:  f.Name,
				Reason: "value must not be empty",
			}
		}
	}
	return nil
}

func checkRange(val any) string {
	switch tv := val.(type) {
	case float64:
		if math.IsNaN(tv) || math.IsInf(tv, 0) {
			return "value is not a finite number"
		}
	case time.Time:
		if tv.IsZero() {
			return "timestamp is zero"
		}
	}
	return ""
}

func isEmpty(val any) bool {
	switch tv := val.(type) {
	case string:
		return tv == ""
	case []byte:
		return len(tv) == 0
	}
	return false
}
