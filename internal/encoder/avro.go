// Package encoder implements file format encoders.
package encoder

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jittakal/kafetl/internal/codec"
	"github.com/jittakal/kafetl/pkg/encoder"
	"github.com/jittakal/kafetl/pkg/record"
	"github.com/linkedin/goavro/v2"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*AvroEncoder)(nil)

// AvroEncoder implements encoder.Encoder for Avro Object Container Files.
// "gzip" wraps the whole file; "deflate" and "snappy" compress OCF blocks.
type AvroEncoder struct {
	codec       *codec.AvroCodec
	compression string
}

// NewAvroEncoder creates an Avro encoder for records of schema.
func NewAvroEncoder(schema *record.Schema, compression string) (*AvroEncoder, error) {
	c, err := codec.NewAvroCodec(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	compression = strings.ToLower(compression)
	switch compression {
	case "", "none", "uncompressed", "gzip", "deflate", "snappy":
	default:
		return nil, fmt.Errorf("unsupported avro compression: %s", compression)
	}

	return &AvroEncoder{
		codec:       c,
		compression: compression,
	}, nil
}

// Encode writes records to an Avro file.
func (e *AvroEncoder) Encode(filePath string, records []*record.Record) (*record.FileStats, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	start := time.Now()
	if err := e.write(file, records); err != nil {
		return nil, err
	}

	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &record.FileStats{
		RecordCount:    len(records),
		SizeBytes:      fileInfo.Size(),
		FirstWriteTime: start,
		LastWriteTime:  time.Now(),
	}, nil
}

// EncodeToBytes encodes records to an in-memory Avro file.
func (e *AvroEncoder) EncodeToBytes(records []*record.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	var buf bytes.Buffer
	if err := e.write(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *AvroEncoder) write(w io.Writer, records []*record.Record) error {
	var gzipWriter *gzip.Writer
	if e.compression == "gzip" {
		gzipWriter = gzip.NewWriter(w)
		w = gzipWriter
	}

	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           e.codec.Codec(),
		CompressionName: e.blockCompression(),
	})
	if err != nil {
		return fmt.Errorf("failed to create OCF writer: %w", err)
	}

	batch := make([]interface{}, 0, len(records))
	for i, rec := range records {
		native, err := e.codec.ToNative(rec)
		if err != nil {
			return fmt.Errorf("failed to convert record %d: %w", i, err)
		}
		batch = append(batch, native)
	}
	if err := ocfWriter.Append(batch); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}

	if gzipWriter != nil {
		if err := gzipWriter.Close(); err != nil {
			return fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}
	return nil
}

func (e *AvroEncoder) blockCompression() string {
	switch e.compression {
	case "deflate":
		return goavro.CompressionDeflateLabel
	case "snappy":
		return goavro.CompressionSnappyLabel
	default:
		return goavro.CompressionNullLabel
	}
}

// Format returns the file format.
func (e *AvroEncoder) Format() record.FileFormat {
	return record.FormatAvro
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	if e.compression == "gzip" {
		return ".avro.gz"
	}
	return ".avro"
}
