package encoder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
)

// orderRow mirrors the Parquet schema derived from orders.
type orderRow struct {
	ID        string    `parquet:"id"`
	Quantity  int64     `parquet:"quantity"`
	Price     float64   `parquet:"price"`
	Paid      bool      `parquet:"paid"`
	Payload   []byte    `parquet:"payload,optional"`
	CreatedAt time.Time `parquet:"created_at,timestamp(microsecond)"`
	Note      *string   `parquet:"note,optional"`
}

func TestParquetEncoder_WriteAndRead(t *testing.T) {
	enc, err := NewParquetEncoder(orders, "snappy")
	if err != nil {
		t.Fatalf("NewParquetEncoder() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "orders.parquet")
	stats, err := enc.Encode(path, testRecords(4))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if stats.RecordCount != 4 {
		t.Errorf("RecordCount = %d, want 4", stats.RecordCount)
	}

	rows, err := parquet.ReadFile[orderRow](path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("read %d rows, want 4", len(rows))
	}

	first, second := rows[0], rows[1]
	if first.ID != "o-0" || first.Quantity != 1 || first.Price != 0.5 || !first.Paid {
		t.Errorf("row 0 = %+v", first)
	}
	if !first.CreatedAt.Equal(baseTime) {
		t.Errorf("row 0 created_at = %v, want %v", first.CreatedAt, baseTime)
	}
	if first.Note != nil {
		t.Errorf("row 0 note = %q, want null", *first.Note)
	}
	if second.Note == nil || *second.Note != "gift" {
		t.Errorf("row 1 note = %v, want gift", second.Note)
	}
	if len(second.Payload) != 0 {
		t.Errorf("row 1 payload = %v, want null", second.Payload)
	}
}

func TestParquetEncoder_Schema(t *testing.T) {
	enc, err := NewParquetEncoder(orders, "")
	if err != nil {
		t.Fatalf("NewParquetEncoder() error = %v", err)
	}

	tests := []struct {
		column   string
		optional bool
	}{
		{"id", false},
		{"created_at", false},
		{"payload", true},
		{"note", true},
	}

	for _, tt := range tests {
		leaf, ok := enc.Schema().Lookup(tt.column)
		if !ok {
			t.Errorf("column %s missing", tt.column)
			continue
		}
		if leaf.Node.Optional() != tt.optional {
			t.Errorf("column %s optional = %v, want %v", tt.column, leaf.Node.Optional(), tt.optional)
		}
	}

	leaf, _ := enc.Schema().Lookup("created_at")
	if lt := leaf.Node.Type().LogicalType(); lt == nil || lt.Timestamp == nil {
		t.Error("created_at is not a TIMESTAMP logical type")
	}
}

func TestParquetEncoder_CompressionCodecs(t *testing.T) {
	dir := t.TempDir()
	for _, compression := range []string{"snappy", "gzip", "lz4", "zstd", "uncompressed"} {
		t.Run(compression, func(t *testing.T) {
			enc, err := NewParquetEncoder(orders, compression)
			if err != nil {
				t.Fatalf("NewParquetEncoder() error = %v", err)
			}
			path := filepath.Join(dir, compression+".parquet")
			if _, err := enc.Encode(path, testRecords(20)); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			f, err := os.Open(path)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				t.Fatalf("Stat() error = %v", err)
			}
			pf, err := parquet.OpenFile(f, info.Size())
			if err != nil {
				t.Fatalf("OpenFile() error = %v", err)
			}
			if pf.NumRows() != 20 {
				t.Errorf("NumRows() = %d, want 20", pf.NumRows())
			}
		})
	}
}
