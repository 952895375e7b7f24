package codec

import (
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/jittakal/kafetl/internal/errors"
	"github.com/jittakal/kafetl/pkg/record"
)

func testSchema() *record.Schema {
	return &record.Schema{
		Name: "orders-v1",
		Fields: []record.Field{
			{Name: "id", Type: record.TypeString},
			{Name: "quantity", Type: record.TypeLong},
			{Name: "price", Type: record.TypeDouble},
			{Name: "paid", Type: record.TypeBoolean},
			{Name: "payload", Type: record.TypeBytes, Nullable: true},
			{Name: "created-at", Type: record.TypeTimestamp},
			{Name: "note", Type: record.TypeString, Nullable: true},
		},
	}
}

func testRecord(t *testing.T, schema *record.Schema) *record.Record {
	t.Helper()

	rec := schema.NewRecord()
	values := map[string]any{
		"id":         "o-42",
		"quantity":   int64(3),
		"price":      19.99,
		"paid":       true,
		"payload":    []byte{0x01, 0x02, 0xff},
		"created-at": time.Date(2026, 3, 1, 12, 30, 0, 123456000, time.UTC),
	}
	for name, v := range values {
		if err := rec.Set(name, v); err != nil {
			t.Fatalf("Set(%s) error = %v", name, err)
		}
	}
	return rec
}

func TestNewAvroCodec(t *testing.T) {
	tests := []struct {
		name    string
		schema  *record.Schema
		wantErr bool
	}{
		{"valid schema", testSchema(), false},
		{"no fields", &record.Schema{Name: "empty"}, true},
		{"bad type", &record.Schema{Name: "bad", Fields: []record.Field{{Name: "x", Type: "int128"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewAvroCodec(tt.schema)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewAvroCodec() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && c.Schema() != tt.schema {
				t.Error("Schema() does not return the input schema")
			}
		})
	}
}

func TestAvroCodec_RoundTrip(t *testing.T) {
	schema := testSchema()
	c, err := NewAvroCodec(schema)
	if err != nil {
		t.Fatalf("NewAvroCodec() error = %v", err)
	}

	in := testRecord(t, schema)
	frame, err := c.Serialize(nil, in)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	out := &record.Record{}
	rest, err := c.Deserialize(frame, out)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("Deserialize() left %d bytes", len(rest))
	}
	if !in.Equal(out) {
		t.Errorf("round trip mismatch:\n got  %v\n want %v", out.Values, in.Values)
	}
}

func TestAvroCodec_SequentialFrames(t *testing.T) {
	schema := testSchema()
	c, err := NewAvroCodec(schema)
	if err != nil {
		t.Fatalf("NewAvroCodec() error = %v", err)
	}

	first := testRecord(t, schema)
	second := first.Copy()
	_ = second.Set("id", "o-43")
	_ = second.Set("note", "gift")
	_ = second.Set("payload", nil)

	buf, err := c.Serialize(nil, first)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	buf, err = c.Serialize(buf, second)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	rec := schema.NewRecord()
	rest, err := c.Deserialize(buf, rec)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if !rec.Equal(first) {
		t.Errorf("first record = %v, want %v", rec.Values, first.Values)
	}

	rest, err = c.Deserialize(rest, rec)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("Deserialize() left %d bytes", len(rest))
	}
	if !rec.Equal(second) {
		t.Errorf("second record = %v, want %v", rec.Values, second.Values)
	}
}

func TestAvroCodec_SerializeRejectsBadValues(t *testing.T) {
	schema := testSchema()
	c, err := NewAvroCodec(schema)
	if err != nil {
		t.Fatalf("NewAvroCodec() error = %v", err)
	}

	missing := testRecord(t, schema)
	missing.Values[0] = nil
	if _, err := c.Serialize(nil, missing); err == nil {
		t.Error("Serialize() with null in a required field succeeded")
	}

	short := &record.Record{Schema: schema, Values: []any{"x"}}
	if _, err := c.Serialize(nil, short); err == nil {
		t.Error("Serialize() with too few values succeeded")
	}
}

func TestAvroCodec_DeserializeTruncated(t *testing.T) {
	schema := testSchema()
	c, err := NewAvroCodec(schema)
	if err != nil {
		t.Fatalf("NewAvroCodec() error = %v", err)
	}

	frame, err := c.Serialize(nil, testRecord(t, schema))
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if _, err := c.Deserialize(frame[:len(frame)/2], schema.NewRecord()); err == nil {
		t.Error("Deserialize() of a truncated frame succeeded")
	}
}

func TestAvroSchema(t *testing.T) {
	avsc, err := AvroSchema(testSchema())
	if err != nil {
		t.Fatalf("AvroSchema() error = %v", err)
	}

	for _, want := range []string{
		`"name":"orders_v1"`,
		`"name":"created_at","type":"long"`,
		`"name":"note","type":["null","string"],"default":null`,
	} {
		if !strings.Contains(avsc, want) {
			t.Errorf("AvroSchema() = %s, missing %s", avsc, want)
		}
	}
}

func TestAvroName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"orders", "orders"},
		{"order-events.v2", "order_events_v2"},
		{"2fa", "_2fa"},
		{"", "_"},
	}

	for _, tt := range tests {
		if got := AvroName(tt.in); got != tt.want {
			t.Errorf("AvroName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFromJSON(t *testing.T) {
	schema := testSchema()

	rec := schema.NewRecord()
	data := []byte(`{
		"id": "o-42",
		"quantity": 3,
		"price": 19.99,
		"paid": true,
		"payload": "AQL/",
		"created-at": "2026-03-01T12:30:00.123456Z",
		"ignored": {"nested": 1}
	}`)
	if err := FromJSON(data, rec); err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}

	want := testRecord(t, schema)
	if !rec.Equal(want) {
		t.Errorf("FromJSON() = %v, want %v", rec.Values, want.Values)
	}
}

func TestFromJSON_Errors(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantField string
	}{
		{"malformed", `{"id":`, ""},
		{"not an object", `null`, ""},
		{"string for long", `{"quantity": "three"}`, "quantity"},
		{"fraction for long", `{"quantity": 1.5}`, "quantity"},
		{"number for boolean", `{"paid": 1}`, "paid"},
		{"bad base64", `{"payload": "***"}`, "payload"},
		{"bad timestamp", `{"created-at": "yesterday"}`, "created-at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromJSON([]byte(tt.data), testSchema().NewRecord())
			if !stderrors.Is(err, errors.ErrInvalidRecord) {
				t.Fatalf("FromJSON() error = %v, want ErrInvalidRecord", err)
			}
			var ve *errors.ValidationError
			if !stderrors.As(err, &ve) {
				t.Fatalf("FromJSON() error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestToJSON_RoundTrip(t *testing.T) {
	schema := testSchema()
	in := testRecord(t, schema)

	data, err := ToJSON(in)
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	if !strings.Contains(string(data), `"note":null`) {
		t.Errorf("ToJSON() = %s, want explicit null for note", data)
	}

	out := schema.NewRecord()
	if err := FromJSON(data, out); err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}
	if !in.Equal(out) {
		t.Errorf("round trip = %v, want %v", out.Values, in.Values)
	}
}
