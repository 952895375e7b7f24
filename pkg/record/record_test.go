package record

import (
	"testing"
	"time"
)

func testSchema() *Schema {
	return &Schema{
		Name: "orders",
		Fields: []Field{
			{Name: "id", Type: TypeString},
			{Name: "qty", Type: TypeLong},
			{Name: "price", Type: TypeDouble},
			{Name: "paid", Type: TypeBoolean},
			{Name: "blob", Type: TypeBytes, Nullable: true},
			{Name: "at", Type: TypeTimestamp, Nullable: true},
		},
	}
}

func TestSchema_Validate(t *testing.T) {
	tests := []struct {
		name    string
		schema  *Schema
		wantErr bool
	}{
		{
			name:    "valid schema",
			schema:  testSchema(),
			wantErr: false,
		},
		{
			name:    "nil schema",
			schema:  nil,
			wantErr: true,
		},
		{
			name:    "missing name",
			schema:  &Schema{Fields: []Field{{Name: "a", Type: TypeString}}},
			wantErr: true,
		},
		{
			name:    "no fields",
			schema:  &Schema{Name: "empty"},
			wantErr: true,
		},
		{
			name: "duplicate field",
			schema: &Schema{Name: "dup", Fields: []Field{
				{Name: "a", Type: TypeString},
				{Name: "a", Type: TypeLong},
			}},
			wantErr: true,
		},
		{
			name:    "unknown type",
			schema:  &Schema{Name: "bad", Fields: []Field{{Name: "a", Type: "decimal"}}},
			wantErr: true,
		},
		{
			name:    "unnamed field",
			schema:  &Schema{Name: "bad", Fields: []Field{{Type: TypeString}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchema_FieldIndex(t *testing.T) {
	s := testSchema()
	if got := s.FieldIndex("price"); got != 2 {
		t.Errorf("FieldIndex(price) = %d, want 2", got)
	}
	if got := s.FieldIndex("missing"); got != -1 {
		t.Errorf("FieldIndex(missing) = %d, want -1", got)
	}
}

func TestRecord_SetGet(t *testing.T) {
	rec := testSchema().NewRecord()

	if err := rec.Set("id", "o-1"); err != nil {
		t.Fatalf("Set(id) error = %v", err)
	}
	if err := rec.Set("qty", int64(3)); err != nil {
		t.Fatalf("Set(qty) error = %v", err)
	}
	if err := rec.Set("qty", 3); err == nil {
		t.Error("expected error when setting int instead of int64")
	}
	if err := rec.Set("id", nil); err == nil {
		t.Error("expected error when setting null on non-nullable field")
	}
	if err := rec.Set("blob", nil); err != nil {
		t.Errorf("Set(blob, nil) error = %v", err)
	}
	if err := rec.Set("unknown", "x"); err == nil {
		t.Error("expected error for unknown field")
	}

	v, ok := rec.Get("id")
	if !ok || v != "o-1" {
		t.Errorf("Get(id) = %v, %v; want o-1, true", v, ok)
	}
	if _, ok := rec.Get("unknown"); ok {
		t.Error("Get(unknown) should report false")
	}
}

func TestRecord_CopyAndEqual(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := testSchema().NewRecord()
	rec.Values = []any{"o-1", int64(2), 9.5, true, []byte{1, 2, 3}, now}

	c := rec.Copy()
	if !rec.Equal(c) {
		t.Fatal("copy should equal original")
	}

	c.Values[4].([]byte)[0] = 42
	if rec.Values[4].([]byte)[0] != 1 {
		t.Error("copy should not share byte slices with original")
	}
	if rec.Equal(c) {
		t.Error("records should differ after mutating copy")
	}
	if rec.Equal(nil) {
		t.Error("record should not equal nil")
	}
}

func TestRecord_Reset(t *testing.T) {
	rec := testSchema().NewRecord()
	rec.Values[0] = "x"
	rec.Reset()
	for i, v := range rec.Values {
		if v != nil {
			t.Errorf("Values[%d] = %v after Reset, want nil", i, v)
		}
	}
}

func TestFieldType_Valid(t *testing.T) {
	for _, ft := range []FieldType{TypeString, TypeLong, TypeDouble, TypeBoolean, TypeBytes, TypeTimestamp} {
		if !ft.Valid() {
			t.Errorf("%s should be valid", ft)
		}
	}
	if FieldType("int").Valid() {
		t.Error("int should not be valid")
	}
}
