package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jittakal/kafetl/internal/errors"
	"github.com/jittakal/kafetl/pkg/record"
	"github.com/jittakal/kafetl/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*S3Writer)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// s3Uploader is the part of manager.Uploader used by S3Writer.
type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Writer implements storage.Writer for AWS S3 storage with multipart
// uploads and optional server-side encryption.
type S3Writer struct {
	uploader    s3Uploader
	bucket      string
	sseEnabled  bool
	sseKMSKeyID string
	batch       *batchEncoder
	logger      *slog.Logger
	mu          sync.Mutex
	closed      bool
}

// NewS3Writer creates a new S3 storage writer for records of schema.
func NewS3Writer(
	cfg S3Config,
	schema *record.Schema,
	format record.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*S3Writer, error) {
	awsConfig, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 5
	})

	return newS3Writer(cfg, uploader, schema, format, compression, logger, metrics)
}

func newS3Writer(
	cfg S3Config,
	uploader s3Uploader,
	schema *record.Schema,
	format record.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*S3Writer, error) {
	batch, err := newBatchEncoder("s3", schema, format, compression, metrics)
	if err != nil {
		return nil, err
	}

	logger.Info("S3 writer created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"schema", schema.Name,
		"format", format,
		"compression", compression,
		"sse_enabled", cfg.SSEEnabled,
	)

	return &S3Writer{
		uploader:    uploader,
		bucket:      cfg.Bucket,
		sseEnabled:  cfg.SSEEnabled,
		sseKMSKeyID: cfg.SSEKMSKeyID,
		batch:       batch,
		logger:      logger,
	}, nil
}

// Write encodes records and uploads them as one object below path.
func (w *S3Writer) Write(ctx context.Context, records []*record.Record, path string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, errors.ErrWriterClosed
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("no records to write")
	}

	startTime := time.Now()
	s3Key := objectKey(path, "s3", w.batch.nextFileName())

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

	uploadInput := &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(s3Key),
		Body:   file,
	}

	if w.sseEnabled {
		if w.sseKMSKeyID != "" {
			uploadInput.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			uploadInput.SSEKMSKeyId = aws.String(w.sseKMSKeyID)
		} else {
			uploadInput.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	result, err := w.uploader.Upload(ctx, uploadInput)
	if err != nil {
		w.batch.fail("upload")
		return 0, &errors.StorageError{Operation: "upload", Path: "s3://" + w.bucket + "/" + s3Key, Err: err}
	}

	duration := time.Since(startTime)
	w.batch.succeed(stats, duration)

	w.logger.Info("wrote records to S3",
		"bucket", w.bucket,
		"key", s3Key,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", w.batch.enc.Format(),
		"location", result.Location,
		"total_duration_ms", duration.Milliseconds(),
	)

	return stats.SizeBytes, nil
}

// Close closes the S3 writer.
func (w *S3Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	w.logger.Info("closing S3 writer")
	return nil
}
