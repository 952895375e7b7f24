package encoder

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jittakal/kafetl/pkg/encoder"
	"github.com/jittakal/kafetl/pkg/record"
	"github.com/parquet-go/parquet-go"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*ParquetEncoder)(nil)

// ParquetEncoder implements encoder.Encoder for Apache Parquet columnar format.
// The Parquet schema is derived from the record schema: timestamps become
// TIMESTAMP_MICROS, strings are dictionary encoded and nullable fields optional.
type ParquetEncoder struct {
	schema          *record.Schema
	parquetSchema   *parquet.Schema
	columns         []parquet.LeafColumn // per record field
	compressionName string
}

// NewParquetEncoder creates a Parquet encoder for records of schema.
func NewParquetEncoder(schema *record.Schema, compression string) (*ParquetEncoder, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	group := make(parquet.Group, len(schema.Fields))
	for _, f := range schema.Fields {
		node := parquetNode(f.Type)
		if f.Nullable {
			node = parquet.Optional(node)
		}
		group[f.Name] = node
	}
	ps := parquet.NewSchema(schema.Name, group)

	columns := make([]parquet.LeafColumn, len(schema.Fields))
	for i, f := range schema.Fields {
		leaf, ok := ps.Lookup(f.Name)
		if !ok {
			return nil, fmt.Errorf("parquet schema has no column %s", f.Name)
		}
		columns[i] = leaf
	}

	return &ParquetEncoder{
		schema:          schema,
		parquetSchema:   ps,
		columns:         columns,
		compressionName: compression,
	}, nil
}

func parquetNode(t record.FieldType) parquet.Node {
	switch t {
	case record.TypeString:
		return parquet.Encoded(parquet.String(), &parquet.RLEDictionary)
	case record.TypeLong:
		return parquet.Int(64)
	case record.TypeDouble:
		return parquet.Leaf(parquet.DoubleType)
	case record.TypeBoolean:
		return parquet.Leaf(parquet.BooleanType)
	case record.TypeTimestamp:
		return parquet.Timestamp(parquet.Microsecond)
	default:
		return parquet.Leaf(parquet.ByteArrayType)
	}
}

// compressionCodec converts string compression name to parquet WriterOption.
func compressionCodec(compression string) parquet.WriterOption {
	switch strings.ToLower(compression) {
	case "gzip":
		return parquet.Compression(&parquet.Gzip)
	case "lz4":
		return parquet.Compression(&parquet.Lz4Raw)
	case "zstd":
		return parquet.Compression(&parquet.Zstd)
	case "uncompressed", "none":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Snappy)
	}
}

// Schema returns the Parquet schema written by the encoder.
func (e *ParquetEncoder) Schema() *parquet.Schema {
	return e.parquetSchema
}

// Encode writes records to a Parquet file.
func (e *ParquetEncoder) Encode(filePath string, records []*record.Record) (*record.FileStats, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	rows := make([]parquet.Row, len(records))
	for i, rec := range records {
		row, err := e.toRow(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to convert record %d: %w", i, err)
		}
		rows[i] = row
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	start := time.Now()
	writer := parquet.NewWriter(
		file,
		e.parquetSchema,
		compressionCodec(e.compressionName),
		parquet.CreatedBy("kafetl", "1.0", "0"),
	)

	if _, err := writer.WriteRows(rows); err != nil {
		writer.Close()
		file.Close()
		return nil, fmt.Errorf("failed to write records: %w", err)
	}

	if err := writer.Close(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	// Close file before getting stats to ensure all data is flushed
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

// toRow converts rec into a flat Parquet row ordered by column index.
func (e *ParquetEncoder) toRow(rec *record.Record) (parquet.Row, error) {
	if len(rec.Values) != len(e.schema.Fields) {
		return nil, fmt.Errorf("record has %d values, schema %s has %d fields",
			len(rec.Values), e.schema.Name, len(e.schema.Fields))
	}

	row := make(parquet.Row, len(e.columns))
	for i, f := range e.schema.Fields {
		v := rec.Values[i]
		if err := record.CheckValue(f, v); err != nil {
			return nil, err
		}

		col := e.columns[i]
		def := col.MaxDefinitionLevel
		if v == nil {
			row[col.ColumnIndex] = parquet.NullValue().Level(0, 0, col.ColumnIndex)
			continue
		}
		row[col.ColumnIndex] = parquetValue(v).Level(0, def, col.ColumnIndex)
	}
	return row, nil
}

func parquetValue(v any) parquet.Value {
	switch tv := v.(type) {
	case string:
		return parquet.ByteArrayValue([]byte(tv))
	case int64:
		return parquet.Int64Value(tv)
	case float64:
		return parquet.DoubleValue(tv)
	case bool:
		return parquet.BooleanValue(tv)
	case []byte:
		return parquet.ByteArrayValue(tv)
	case time.Time:
		return parquet.Int64Value(tv.UnixMicro())
	}
	return parquet.NullValue()
}

// Format returns the file format.
func (e *ParquetEncoder) Format() record.FileFormat {
	return record.FormatParquet
}

// FileExtension returns the file extension.
func (e *ParquetEncoder) FileExtension() string {
	return ".parquet"
}
