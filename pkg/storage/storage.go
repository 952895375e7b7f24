// Package storage defines interfaces for writing record batches to storage.
//
// This package provides abstractions for writing records to various
// storage backends (S3, Azure Blob, GCS, local filesystem).
package storage

import (
	"context"
	"time"

	"github.com/jittakal/kafetl/pkg/record"
)

// Writer writes record batches to storage as files.
type Writer interface {
	// Write encodes records into one new file under the directory path.
	// Returns the number of bytes written.
	Write(ctx context.Context, records []*record.Record, path string) (int64, error)

	// Close closes the writer and releases resources.
	Close() error
}

// Router determines storage paths for record batches.
type Router interface {
	// Route returns the directory path for records of schema written at t.
	Route(schema string, t time.Time) string
}

// RotationPolicy determines when to rotate (flush) buffered records to storage.
type RotationPolicy interface {
	// ShouldRotate returns true if the batch should be flushed based on stats.
	ShouldRotate(stats record.FileStats) bool
}
