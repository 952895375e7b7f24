package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jittakal/kafetl/internal/errors"
	"github.com/jittakal/kafetl/internal/graph"
	"github.com/jittakal/kafetl/pkg/buffer"
	"github.com/jittakal/kafetl/pkg/record"
	"github.com/jittakal/kafetl/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ graph.Node = (*SinkNode)(nil)

// SinkConfig controls retries and shutdown of a sink node.
type SinkConfig struct {
	// MaxRetries is the number of extra attempts for a retryable write failure.
	MaxRetries   int
	RetryBackoff time.Duration

	// UploadTimeout bounds one batch write. Writes are not cancelled by the
	// node context so that a batch read from the edge is never lost.
	UploadTimeout time.Duration

	// DrainTimeout bounds how long the node keeps reading for end of stream
	// after its context is cancelled.
	DrainTimeout time.Duration
}

func (c *SinkConfig) setDefaults() {
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = 5 * time.Minute
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 10 * time.Second
	}
}

// maxDurationPolicy is implemented by policies that rotate on batch age.
type maxDurationPolicy interface {
	MaxDuration() time.Duration
}

// SinkNode is a graph node that batches records from its input port and
// writes each batch as one file through a storage.Writer.
type SinkNode struct {
	name    string
	config  SinkConfig
	schema  *record.Schema
	in      buffer.RecordReader
	writer  storage.Writer
	router  storage.Router
	policy  storage.RotationPolicy
	maxAge  time.Duration
	logger  *slog.Logger
	metrics MetricsCollector

	batch []*record.Record
	stats record.FileStats

	filesWritten int
	recordsIn    int64
}

// NewSinkNode creates a sink node. policy may be nil, in which case the whole
// stream is written as one batch at end of stream.
func NewSinkNode(
	name string,
	config SinkConfig,
	schema *record.Schema,
	in buffer.RecordReader,
	writer storage.Writer,
	router storage.Router,
	policy storage.RotationPolicy,
	logger *slog.Logger,
	metrics MetricsCollector,
) *SinkNode {
	config.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	var maxAge time.Duration
	if p, ok := policy.(maxDurationPolicy); ok {
		maxAge = p.MaxDuration()
	}

	return &SinkNode{
		name:    name,
		config:  config,
		schema:  schema,
		in:      in,
		writer:  writer,
		router:  router,
		policy:  policy,
		maxAge:  maxAge,
		logger:  logger.With("node", name),
		metrics: metrics,
	}
}

// Name returns the node name.
func (s *SinkNode) Name() string {
	return s.name
}

// FilesWritten returns the number of batches written so far.
func (s *SinkNode) FilesWritten() int {
	return s.filesWritten
}

// Execute reads until end of stream, flushing a batch whenever the policy
// asks for rotation and once more at the end. When ctx is cancelled the node
// keeps reading for up to DrainTimeout so an upstream EOF still gets flushed.
func (s *SinkNode) Execute(ctx context.Context) error {
	rec := s.schema.NewRecord()
	readCtx := ctx

	for {
		ok, err := s.read(readCtx, rec)
		if err != nil {
			if !stderrors.Is(err, errors.ErrCancelled) {
				return err
			}
			if readCtx != ctx {
				// Drain window closed without end of stream.
				if ferr := s.flush(ctx); ferr != nil {
					return ferr
				}
				return err
			}

			s.logger.Info("sink cancelled, draining input", "drain_timeout", s.config.DrainTimeout)
			var cancel context.CancelFunc
			readCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), s.config.DrainTimeout)
			defer cancel()
			continue
		}

		if !ok {
			if err := s.flush(ctx); err != nil {
				return err
			}
			s.logger.Info("sink finished",
				"records", s.recordsIn,
				"files", s.filesWritten,
			)
			return nil
		}

		s.add(rec)
		if s.policy != nil && s.policy.ShouldRotate(s.stats) {
			if err := s.flush(ctx); err != nil {
				return err
			}
		}
	}
}

// read reads one record. With an age limit and a pending batch it stops
// waiting when the batch gets too old and flushes it.
func (s *SinkNode) read(ctx context.Context, rec *record.Record) (bool, error) {
	for {
		if s.maxAge <= 0 || len(s.batch) == 0 {
			return s.in.ReadRecord(ctx, rec)
		}

		deadline := s.stats.FirstWriteTime.Add(s.maxAge)
		readCtx, cancel := context.WithDeadline(ctx, deadline)
		ok, err := s.in.ReadRecord(readCtx, rec)
		cancel()

		if err == nil || ctx.Err() != nil || !stderrors.Is(err, errors.ErrCancelled) {
			return ok, err
		}

		s.logger.Debug("batch age limit reached", "records", len(s.batch))
		if err := s.flush(ctx); err != nil {
			return false, err
		}
	}
}

func (s *SinkNode) add(rec *record.Record) {
	now := time.Now()
	if len(s.batch) == 0 {
		s.stats.FirstWriteTime = now
	}
	s.batch = append(s.batch, rec.Copy())
	s.stats.RecordCount++
	s.stats.SizeBytes += estimateSize(rec)
	s.stats.LastWriteTime = now

	s.recordsIn++
	if s.metrics != nil {
		s.metrics.IncNodeRecords(s.name, "in")
	}
}

// flush writes the pending batch, retrying retryable failures.
func (s *SinkNode) flush(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}

	path := s.router.Route(s.schema.Name, time.Now())

	var err error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("retrying batch write",
				"attempt", attempt,
				"path", path,
				"error", err,
			)
			time.Sleep(s.config.RetryBackoff * time.Duration(attempt))
		}

		uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.UploadTimeout)
		_, err = s.writer.Write(uploadCtx, s.batch, path)
		cancel()

		if err == nil || !errors.IsRetryable(err) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to write batch of %d records: %w", len(s.batch), err)
	}

	s.filesWritten++
	clear(s.batch)
	s.batch = s.batch[:0]
	s.stats = record.FileStats{}
	return nil
}

// estimateSize approximates the encoded size of rec for size-based rotation.
func estimateSize(rec *record.Record) int64 {
	var n int64
	for _, v := range rec.Values {
		switch tv := v.(type) {
		case string:
			n += int64(len(tv))
		case []byte:
			n += int64(len(tv))
		case nil:
			n++
		default:
			n += 8
		}
	}
	return n
}
