package buffer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jittakal/kafetl/internal/errors"
	"github.com/jittakal/kafetl/pkg/buffer"
	"github.com/jittakal/kafetl/pkg/record"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ buffer.RecordWriter = (*RecordBuffer)(nil)
	_ buffer.RecordReader = (*RecordBuffer)(nil)
)

// RecordBuffer carries whole records over a SpillBuffer using a codec.
//
// The write side and the read side keep separate scratch space, so one
// goroutine may call WriteRecord while another calls ReadRecord.
type RecordBuffer struct {
	*SpillBuffer

	codec    record.Codec
	writeBuf []byte
	readBuf  []byte
}

// NewRecordBuffer creates an inactive record buffer. Init must be called before use.
func NewRecordBuffer(cfg Config, codec record.Codec, logger *slog.Logger, metrics MetricsCollector) *RecordBuffer {
	return &RecordBuffer{
		SpillBuffer: New(cfg, logger, metrics),
		codec:       codec,
	}
}

// WriteRecord serializes rec and appends it as one frame.
func (b *RecordBuffer) WriteRecord(rec *record.Record) error {
	frame, err := b.codec.Serialize(b.writeBuf[:0], rec)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}
	b.writeBuf = frame
	return b.Write(frame)
}

// EOF marks the end of the record stream.
func (b *RecordBuffer) EOF() error {
	return b.SetEOF()
}

// ReadRecord fills rec with the next record. ok is false at end of stream.
func (b *RecordBuffer) ReadRecord(ctx context.Context, rec *record.Record) (bool, error) {
	frame, ok, err := b.Read(ctx, b.readBuf[:0])
	if err != nil || !ok {
		return false, err
	}
	b.readBuf = frame

	rest, err := b.codec.Deserialize(frame, rec)
	if err != nil {
		return false, fmt.Errorf("failed to deserialize record: %w", err)
	}
	if len(rest) != 0 {
		return false, fmt.Errorf("%w: %d trailing bytes after record", errors.ErrInvalidRecord, len(rest))
	}
	return true, nil
}
