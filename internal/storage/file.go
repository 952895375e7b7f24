// Package storage writes record batches to local and cloud storage and
// provides the sink node that feeds them from a graph edge.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jittakal/kafetl/internal/encoder"
	"github.com/jittakal/kafetl/internal/errors"
	pkgencoder "github.com/jittakal/kafetl/pkg/encoder"
	"github.com/jittakal/kafetl/pkg/record"
	"github.com/jittakal/kafetl/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*FileWriter)(nil)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncFilesWritten(schema string, format string, status string)
	ObserveFileWriteDuration(backend string, format string, duration float64)
	ObserveFileSize(schema string, format string, size float64)
	ObserveStorageWriteDuration(schema string, duration float64)
	IncStorageErrors(backend string, errorType string)
	IncNodeRecords(node, port string)
}

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// FileWriter implements storage.Writer for local filesystem storage.
// Files are organized in the directory tree produced by the router.
type FileWriter struct {
	basePath string
	batch    *batchEncoder
	logger   *slog.Logger
	metrics  MetricsCollector
	mu       sync.Mutex
	closed   bool
}

// NewFileWriter creates a new filesystem storage writer for records of schema.
func NewFileWriter(
	config FileConfig,
	schema *record.Schema,
	format record.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*FileWriter, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	batch, err := newBatchEncoder("file", schema, format, compression, metrics)
	if err != nil {
		return nil, err
	}

	logger.Info("filesystem writer created",
		"base_path", config.BasePath,
		"schema", schema.Name,
		"format", format,
		"compression", compression,
	)

	return &FileWriter{
		basePath: config.BasePath,
		batch:    batch,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Write encodes records into a new file below path.
func (w *FileWriter) Write(ctx context.Context, records []*record.Record, path string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, errors.ErrWriterClosed
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("no records to write")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	startTime := time.Now()

	dir := filepath.Join(w.basePath, strings.TrimPrefix(path, "file://"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		w.batch.fail("mkdir")
		return 0, &errors.StorageError{Operation: "mkdir", Path: dir, Err: err}
	}

	fullPath := filepath.Join(dir, w.batch.nextFileName())
	stats, err := w.batch.enc.Encode(fullPath, records)
	if err != nil {
		w.batch.fail("encode")
		return 0, &errors.StorageError{Operation: "encode", Path: fullPath, Err: err}
	}

	duration := time.Since(startTime)
	w.batch.succeed(stats, duration)

	w.logger.Info("wrote records to file",
		"path", fullPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", w.batch.enc.Format(),
		"total_duration_ms", duration.Milliseconds(),
	)

	return stats.SizeBytes, nil
}

// Close closes the writer.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	w.logger.Info("closing filesystem writer")
	return nil
}

// batchEncoder holds what every backend shares: the schema-bound encoder,
// file naming and metrics reporting.
type batchEncoder struct {
	backend string
	schema  string
	enc     pkgencoder.Encoder
	metrics MetricsCollector

	mu            sync.Mutex
	fileSequence  int    // files created in the same second
	lastTimestamp string // last timestamp used for file names
}

func newBatchEncoder(
	backend string,
	schema *record.Schema,
	format record.FileFormat,
	compression string,
	metrics MetricsCollector,
) (*batchEncoder, error) {
	enc, err := encoder.NewFactory(format, compression).CreateEncoder(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	return &batchEncoder{
		backend: backend,
		schema:  schema.Name,
		enc:     enc,
		metrics: metrics,
	}, nil
}

// nextFileName returns part_YYYYMMDD_HHMMSS_NNN.{ext}, unique within the writer.
func (b *batchEncoder) nextFileName() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	timestamp := time.Now().UTC().Format("20060102_150405")
	if timestamp == b.lastTimestamp {
		b.fileSequence++
	} else {
		b.fileSequence = 1
		b.lastTimestamp = timestamp
	}
	return fmt.Sprintf("part_%s_%03d%s", timestamp, b.fileSequence, b.enc.FileExtension())
}

// encodeTemp encodes records into a temporary file for upload. The caller
// removes the returned path.
func (b *batchEncoder) encodeTemp(records []*record.Record) (string, *record.FileStats, error) {
	f, err := os.CreateTemp("", b.backend+"-upload-*"+b.enc.FileExtension())
	if err != nil {
		b.fail("temp_file")
		return "", nil, &errors.StorageError{Operation: "create", Path: os.TempDir(), Err: err}
	}
	tempFile := f.Name()
	f.Close()

	stats, err := b.enc.Encode(tempFile, records)
	if err != nil {
		os.Remove(tempFile)
		b.fail("encode")
		return "", nil, &errors.StorageError{Operation: "encode", Path: tempFile, Err: err}
	}
	return tempFile, stats, nil
}

func (b *batchEncoder) fail(errorType string) {
	if b.metrics == nil {
		return
	}
	b.metrics.IncStorageErrors(b.backend, errorType)
	b.metrics.IncFilesWritten(b.schema, string(b.enc.Format()), "failure")
}

func (b *batchEncoder) succeed(stats *record.FileStats, duration time.Duration) {
	if b.metrics == nil {
		return
	}
	format := string(b.enc.Format())
	b.metrics.IncFilesWritten(b.schema, format, "success")
	b.metrics.ObserveFileSize(b.schema, format, float64(stats.SizeBytes))
	b.metrics.ObserveFileWriteDuration(b.backend, format, duration.Seconds())
	b.metrics.ObserveStorageWriteDuration(b.schema, duration.Seconds())
}

// objectKey strips scheme://bucket/ from path and appends name.
// Paths without the scheme are used as is.
func objectKey(path, scheme, name string) string {
	key := path
	if rest, ok := strings.CutPrefix(path, scheme+"://"); ok {
		if _, after, found := strings.Cut(rest, "/"); found {
			key = after
		} else {
			key = ""
		}
	}
	if key != "" && !strings.HasSuffix(key, "/") {
		key += "/"
	}
	return strings.TrimPrefix(key+name, "/")
}
