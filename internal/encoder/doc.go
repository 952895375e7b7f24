// Package encoder writes batches of records to analytics file formats.
//
// Encoders are bound to one record schema and derive the file schema from it.
//
// # Supported Formats
//
//   - Parquet: columnar, timestamps stored as TIMESTAMP_MICROS, strings dictionary encoded
//   - Avro: Object Container File carrying the Avro schema of the record schema
//
// # Encoder Factory
//
//	factory := encoder.NewFactory(record.FormatParquet, "snappy")
//	enc, err := factory.CreateEncoder(schema)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	stats, err := enc.Encode(filePath, records)
//
// # Compression Options
//
//	Parquet: "snappy" (default), "gzip", "lz4", "zstd", "uncompressed"
//	Avro:    "gzip" (default, whole file), "deflate", "snappy" (OCF blocks), "uncompressed"
//
// Encoder instances hold no per-call state and are safe for concurrent use.
package encoder
