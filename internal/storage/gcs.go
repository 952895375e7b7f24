package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jittakal/kafetl/internal/errors"
	"github.com/jittakal/kafetl/pkg/record"
	pkgstorage "github.com/jittakal/kafetl/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.Writer = (*GCSWriter)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// openObjectFunc opens a writer that creates one object when closed.
type openObjectFunc func(ctx context.Context, bucket, object, contentType string) io.WriteCloser

// GCSWriter implements storage.Writer for Google Cloud Storage.
type GCSWriter struct {
	client     *storage.Client
	openObject openObjectFunc
	bucket     string
	batch      *batchEncoder
	logger     *slog.Logger
	mu         sync.Mutex
	closed     bool
}

// ClientOptions returns the GCS client options for cfg, preferring default
// credentials, then inline JSON, then a credentials file.
func (cfg GCSConfig) ClientOptions() []option.ClientOption {
	var clientOpts []option.ClientOption
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}

	switch {
	case cfg.UseDefaultCredential:
	case cfg.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	return clientOpts
}

// NewGCSWriter creates a new Google Cloud Storage writer for records of schema.
func NewGCSWriter(
	cfg GCSConfig,
	schema *record.Schema,
	format record.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*GCSWriter, error) {
	client, err := storage.NewClient(context.Background(), cfg.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	open := func(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = contentType
		return w
	}

	w, err := newGCSWriter(cfg, open, schema, format, compression, logger, metrics)
	if err != nil {
		client.Close()
		return nil, err
	}
	w.client = client
	return w, nil
}

func newGCSWriter(
	cfg GCSConfig,
	open openObjectFunc,
	schema *record.Schema,
	format record.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*GCSWriter, error) {
	batch, err := newBatchEncoder("gcs", schema, format, compression, metrics)
	if err != nil {
		return nil, err
	}

	logger.Info("GCS writer created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
		"schema", schema.Name,
		"format", format,
		"compression", compression,
		"default_credentials", cfg.UseDefaultCredential,
	)

	return &GCSWriter{
		openObject: open,
		bucket:     cfg.Bucket,
		batch:      batch,
		logger:     logger,
	}, nil
}

func contentType(format record.FileFormat) string {
	if format == record.FormatAvro {
		return "application/avro"
	}
	return "application/octet-stream"
}

// Write encodes records and uploads them as one object below path.
func (w *GCSWriter) Write(ctx context.Context, records []*record.Record, path string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, errors.ErrWriterClosed
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("no records to write")
	}

	startTime := time.Now()
	objectPath := objectKey(path, "gs", w.batch.nextFileName())

	tempFile, stats, err := w.batch.encodeTemp(records)
	if err != nil {
		return 0, err
	}
	defer os.Remove(tempFile)

	file, err := os.Open(tempFile)
	if err != nil {
		w.batch.fail("file_open")
		return 0, fmt.Errorf("failed to open encoded file: %w", err)
	}
	defer file.Close()

	gcsWriter := w.openObject(ctx, w.bucket, objectPath, contentType(w.batch.enc.Format()))

	bytesWritten, err := io.Copy(gcsWriter, file)
	if err != nil {
		w.batch.fail("upload")
		gcsWriter.Close()
		return 0, &errors.StorageError{Operation: "upload", Path: "gs://" + w.bucket + "/" + objectPath, Err: err}
	}

	// Closing the writer finalizes the upload.
	if err := gcsWriter.Close(); err != nil {
		w.batch.fail("close")
		return 0, &errors.StorageError{Operation: "upload", Path: "gs://" + w.bucket + "/" + objectPath, Err: err}
	}

	duration := time.Since(startTime)
	w.batch.succeed(stats, duration)

	w.logger.Info("wrote records to GCS",
		"bucket", w.bucket,
		"object", objectPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"bytes_written", bytesWritten,
		"format", w.batch.enc.Format(),
		"total_duration_ms", duration.Milliseconds(),
	)

	return stats.SizeBytes, nil
}

// Close closes the GCS writer.
func (w *GCSWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.logger.Info("closing GCS writer")
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}
