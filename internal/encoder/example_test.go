package encoder_test

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jittakal/kafetl/internal/encoder"
	"github.com/jittakal/kafetl/pkg/record"
)

var clicks = &record.Schema{
	Name: "clicks",
	Fields: []record.Field{
		{Name: "user", Type: record.TypeString},
		{Name: "url", Type: record.TypeString},
		{Name: "at", Type: record.TypeTimestamp},
	},
}

func clickRecords() []*record.Record {
	rec := clicks.NewRecord()
	rec.Values[0] = "u-1"
	rec.Values[1] = "/home"
	rec.Values[2] = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return []*record.Record{rec}
}

func Example_parquetEncoder() {
	enc, err := encoder.NewParquetEncoder(clicks, "snappy")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	dir, err := os.MkdirTemp("", "encoder-example")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer os.RemoveAll(dir)

	stats, err := enc.Encode(filepath.Join(dir, "clicks"+enc.FileExtension()), clickRecords())
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	fmt.Printf("Encoded %d records\n", stats.RecordCount)
	fmt.Printf("File format: %s\n", enc.Format())
	fmt.Printf("File extension: %s\n", enc.FileExtension())

	// Output:
	// Encoded 1 records
	// File format: parquet
	// File extension: .parquet
}

func Example_encoderFactory() {
	factory := encoder.NewFactory(record.FormatAvro, "")

	enc, err := factory.CreateEncoder(clicks)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	dir, err := os.MkdirTemp("", "encoder-example")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer os.RemoveAll(dir)

	stats, err := enc.Encode(filepath.Join(dir, "clicks"+enc.FileExtension()), clickRecords())
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	fmt.Printf("Encoded %d records\n", stats.RecordCount)
	fmt.Printf("File format: %s\n", enc.Format())
	fmt.Printf("File extension: %s\n", enc.FileExtension())

	// Output:
	// Encoded 1 records
	// File format: avro
	// File extension: .avro.gz
}
