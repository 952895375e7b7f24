// Package buffer defines interfaces for record buffering between graph nodes.
//
// A buffer decouples exactly one producer from exactly one consumer and
// returns frames in the order they were written.
package buffer

import (
	"context"

	"github.com/jittakal/kafetl/pkg/record"
)

// FrameBuffer moves opaque byte frames from one writer to one reader.
type FrameBuffer interface {
	// Write appends one frame. The writer never blocks on the reader.
	Write(frame []byte) error

	// Read returns the next frame, appending it to dst.
	// ok is false once end of stream has been reached.
	// Read blocks until data arrives or ctx is done.
	Read(ctx context.Context, dst []byte) (frame []byte, ok bool, err error)

	// SetEOF marks that no further frames will be written.
	SetEOF() error

	// Clear discards all buffered frames, keeping allocated resources.
	Clear()

	// Close releases all resources. It is safe to call more than once.
	Close() error

	// IsEmpty returns true if no unread frames remain.
	IsEmpty() bool

	// HasData returns true if Read would not block.
	HasData() bool

	// BufferedRecords returns writes minus reads.
	BufferedRecords() int64
}

// RecordWriter is the output side of a port.
type RecordWriter interface {
	WriteRecord(rec *record.Record) error
	EOF() error
}

// RecordReader is the input side of a port.
type RecordReader interface {
	// ReadRecord fills rec with the next record; ok is false at end of stream.
	ReadRecord(ctx context.Context, rec *record.Record) (ok bool, err error)
}
