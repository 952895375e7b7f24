package validator

import (
	stderrors "errors"
	"math"
	"testing"
	"time"

	"github.com/jittakal/kafetl/internal/errors"
	"github.com/jittakal/kafetl/pkg/record"
)

var schema = &record.Schema{
	Name: "orders",
	Fields: []record.Field{
		{Name: "id", Type: record.TypeString},
		{Name: "amount", Type: record.TypeDouble},
		{Name: "created_at", Type: record.TypeTimestamp},
		{Name: "note", Type: record.TypeString, Nullable: true},
	},
}

func validRecord() *record.Record {
	rec := schema.NewRecord()
	rec.Values[0] = "o-1"
	rec.Values[1] = 10.5
	rec.Values[2] = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return rec
}

func TestNewRecordValidator(t *testing.T) {
	tests := []struct {
		name     string
		schema   *record.Schema
		nonEmpty []string
		wantErr  bool
	}{
		{"valid", schema, []string{"id"}, false},
		{"unknown non-empty field", schema, []string{"missing"}, true},
		{"invalid schema", &record.Schema{}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecordValidator(tt.schema, tt.nonEmpty...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRecordValidator() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordValidator_ValidateSuccess(t *testing.T) {
	v, err := NewRecordValidator(schema, "id")
	if err != nil {
		t.Fatalf("NewRecordValidator() error = %v", err)
	}

	withNote := validRecord()
	withNote.Values[3] = "gift"

	for name, rec := range map[string]*record.Record{
		"null optional field": validRecord(),
		"all fields set":      withNote,
	} {
		t.Run(name, func(t *testing.T) {
			if err := v.Validate(rec); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestRecordValidator_ValidateFailure(t *testing.T) {
	v, err := NewRecordValidator(schema, "id")
	if err != nil {
		t.Fatalf("NewRecordValidator() error = %v", err)
	}

	tests := []struct {
		name      string
		mutate    func(*record.Record)
		wantField string
	}{
		{"missing required", func(r *record.Record) { r.Values[0] = nil }, "id"},
		{"empty id", func(r *record.Record) { r.Values[0] = "" }, "id"},
		{"wrong type", func(r *record.Record) { r.Values[1] = "ten" }, "amount"},
		{"NaN", func(r *record.Record) { r.Values[1] = math.NaN() }, "amount"},
		{"infinite", func(r *record.Record) { r.Values[1] = math.Inf(1) }, "amount"},
		{"zero timestamp", func(r *record.Record) { r.Values[2] = time.Time{} }, "created_at"},
		{"short record", func(r *record.Record) { r.Values = r.Values[:2] }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(rec)

			err := v.Validate(rec)
			if !stderrors.Is(err, errors.ErrInvalidRecord) {
				t.Fatalf("Validate() error = %v, want ErrInvalidRecord", err)
			}
			var ve *errors.ValidationError
			if !stderrors.As(err, &ve) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
			if ve.Schema != "orders" {
				t.Errorf("Schema = %q, want orders", ve.Schema)
			}
		})
	}
}
