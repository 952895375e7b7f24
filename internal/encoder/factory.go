package encoder

import (
	"fmt"

	"github.com/jittakal/kafetl/pkg/encoder"
	"github.com/jittakal/kafetl/pkg/record"
)

// Factory creates encoders based on format and configuration.
type Factory struct {
	format      record.FileFormat
	compression string
}

// NewFactory creates a new encoder factory. An empty compression selects the
// format default.
func NewFactory(format record.FileFormat, compression string) *Factory {
	if compression == "" {
		compression = DefaultCompression(format)
	}
	return &Factory{
		format:      format,
		compression: compression,
	}
}

// CreateEncoder creates an encoder for records of schema.
func (f *Factory) CreateEncoder(schema *record.Schema) (encoder.Encoder, error) {
	switch f.format {
	case record.FormatParquet:
		return NewParquetEncoder(schema, f.compression)
	case record.FormatAvro:
		return NewAvroEncoder(schema, f.compression)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", f.format)
	}
}

// SupportedFormats returns a list of supported file formats.
func SupportedFormats() []record.FileFormat {
	return []record.FileFormat{
		record.FormatParquet,
		record.FormatAvro,
	}
}

// SupportedCompressions returns supported compression codecs for a given format.
func SupportedCompressions(format record.FileFormat) []string {
	switch format {
	case record.FormatParquet:
		return []string{"uncompressed", "snappy", "gzip", "lz4", "zstd"}
	case record.FormatAvro:
		return []string{"uncompressed", "gzip", "deflate", "snappy"}
	default:
		return []string{}
	}
}

// DefaultCompression returns the default compression for a format.
func DefaultCompression(format record.FileFormat) string {
	switch format {
	case record.FormatParquet:
		return "snappy"
	case record.FormatAvro:
		return "gzip"
	default:
		return "uncompressed"
	}
}
