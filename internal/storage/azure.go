package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/jittakal/kafetl/internal/errors"
	"github.com/jittakal/kafetl/pkg/record"
	"github.com/jittakal/kafetl/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*AzureWriter)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	Endpoint      string
}

// azureUploader is the part of azblob.Client used by AzureWriter.
type azureUploader interface {
	UploadFile(ctx context.Context, containerName string, blobName string, file *os.File, o *azblob.UploadFileOptions) (azblob.UploadFileResponse, error)
}

// AzureWriter implements storage.Writer for Azure Blob Storage using
// shared key authentication.
type AzureWriter struct {
	client        azureUploader
	containerName string
	batch         *batchEncoder
	logger        *slog.Logger
	mu            sync.Mutex
	closed        bool
}

// ConnectionString builds the azblob connection string for cfg.
func (cfg AzureConfig) ConnectionString() string {
	if cfg.Endpoint != "" {
		return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			cfg.AccountName, cfg.AccountKey, cfg.Endpoint)
	}
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		cfg.AccountName, cfg.AccountKey)
}

// NewAzureWriter creates a new Azure Blob storage writer for records of schema.
func NewAzureWriter(
	cfg AzureConfig,
	schema *record.Schema,
	format record.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*AzureWriter, error) {
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return newAzureWriter(cfg, client, schema, format, compression, logger, metrics)
}

func newAzureWriter(
	cfg AzureConfig,
	client azureUploader,
	schema *record.Schema,
	format record.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*AzureWriter, error) {
	batch, err := newBatchEncoder("azure", schema, format, compression, metrics)
	if err != nil {
		return nil, err
	}

	logger.Info("Azure writer created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
		"schema", schema.Name,
		"format", format,
		"compression", compression,
	)

	return &AzureWriter{
		client:        client,
		containerName: cfg.ContainerName,
		batch:         batch,
		logger:        logger,
	}, nil
}

// Write encodes records and uploads them as one blob below path.
func (w *AzureWriter) Write(ctx context.Context, records []*record.Record, path string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, errors.ErrWriterClosed
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("no records to write")
	}

	startTime := time.Now()
	blobPath := objectKey(path, "wasbs", w.batch.nextFileName())

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

	if _, err := w.client.UploadFile(ctx, w.containerName, blobPath, file, nil); err != nil {
		w.batch.fail("upload")
		return 0, &errors.StorageError{Operation: "upload", Path: w.containerName + "/" + blobPath, Err: err}
	}

	duration := time.Since(startTime)
	w.batch.succeed(stats, duration)

	w.logger.Info("wrote records to Azure Blob",
		"container", w.containerName,
		"blob", blobPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", w.batch.enc.Format(),
		"total_duration_ms", duration.Milliseconds(),
	)

	return stats.SizeBytes, nil
}

// Close closes the Azure writer.
func (w *AzureWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	w.logger.Info("Azure writer closed")
	return nil
}
