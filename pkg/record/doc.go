// Package record defines the structured records exchanged between graph nodes.
//
// # Schemas
//
// A Schema names a record layout and lists its fields in order:
//
//	schema := &record.Schema{
//	    Name: "orders",
//	    Fields: []record.Field{
//	        {Name: "id", Type: record.TypeString},
//	        {Name: "amount", Type: record.TypeDouble},
//	        {Name: "note", Type: record.TypeString, Nullable: true},
//	    },
//	}
//
// Supported field types are string, long (int64), double (float64), boolean,
// bytes ([]byte) and timestamp (time.Time).
//
// # Records
//
// A Record holds one value per schema field; nil is null:
//
//	rec := schema.NewRecord()
//	_ = rec.Set("id", "o-1")
//	_ = rec.Set("amount", 12.5)
//
// # Codecs
//
// The Codec interface turns a record into an opaque byte frame and back.
// Buffers and edges never look inside frames; they only move them.
package record
