// Package buffer implements the disk-spilling FIFO buffer that backs graph edges.
package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jittakal/kafetl/internal/errors"
	"github.com/jittakal/kafetl/pkg/buffer"
)

// Ensure implementation satisfies interface at compile time.
var _ buffer.FrameBuffer = (*SpillBuffer)(nil)

const (
	// DefaultMaxRecordSize is the largest frame payload accepted by default.
	DefaultMaxRecordSize = 12 * 1024

	// DefaultDataRegionSize is the default capacity of each memory region.
	DefaultDataRegionSize = 64 * 1024
)

// MetricsCollector defines metrics operations for buffers.
type MetricsCollector interface {
	IncBufferSpills(edge string)
	IncBufferDirectSwaps(edge string)
	IncBufferSlotReads(edge string)
	SetBufferRecords(edge string, count float64)
	SetBufferSpillFileBytes(edge string, size float64)
}

// Config configures a SpillBuffer.
type Config struct {
	// Name identifies the buffer in logs and metrics.
	Name string

	// DataRegionSize is the capacity of each of the two memory regions.
	// It is raised to MaxRecordSize+HeaderSize when smaller.
	DataRegionSize int

	// MaxRecordSize is the largest accepted frame payload.
	MaxRecordSize int

	// SpillDirectory holds the spill file. Empty means os.TempDir().
	SpillDirectory string
}

// Stats is a point-in-time view of a buffer.
type Stats struct {
	BufferedRecords int64
	HasFile         bool
	Slots           int
	FilledSlots     int
	FreeSlots       int
	Spills          uint64
	DirectSwaps     uint64
	SlotReads       uint64
}

// SpillBuffer is a single-producer, single-consumer FIFO of byte frames.
//
// Memory use is bounded by two regions of equal size. When the write region
// fills up and the reader is waiting, the regions change owners without any
// copy. Otherwise the write region is stored in a slot of a temporary file and
// handed back to the reader later, in order. The writer never blocks; only Read
// waits, and only when there is nothing to return yet.
type SpillBuffer struct {
	name          string
	regionSize    int
	maxRecordSize int
	spillDir      string
	logger        *slog.Logger
	metrics       MetricsCollector

	mu       sync.Mutex
	dataCond sync.Cond

	write       *region
	read        *region
	store       *spillStore
	initialized bool
	closed      bool
	awaiting    bool
	failed      error

	buffered    atomic.Int64
	spills      uint64
	directSwaps uint64
	slotReads   uint64
}

// New creates an inactive buffer. Init must be called before use.
func New(cfg Config, logger *slog.Logger, metrics MetricsCollector) *SpillBuffer {
	maxRecord := cfg.MaxRecordSize
	if maxRecord <= 0 {
		maxRecord = DefaultMaxRecordSize
	}
	if maxRecord > MaxFrameSize {
		maxRecord = MaxFrameSize
	}
	size := cfg.DataRegionSize
	if size <= 0 {
		size = DefaultDataRegionSize
	}
	size = max(size, maxRecord+HeaderSize)

	if logger == nil {
		logger = slog.Default()
	}

	b := &SpillBuffer{
		name:          cfg.Name,
		regionSize:    size,
		maxRecordSize: maxRecord,
		spillDir:      cfg.SpillDirectory,
		logger:        logger.With("buffer", cfg.Name),
		metrics:       metrics,
	}
	b.dataCond.L = &b.mu
	return b
}

// Init allocates both regions and resets all counters.
// Calling Init on a used buffer discards its content and spill file.
func (b *SpillBuffer) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.store != nil {
		err = b.store.close()
	}

	b.write = newRegion(b.regionSize)
	b.read = newRegion(b.regionSize)
	b.store = newSpillStore(b.spillDir, b.regionSize, b.logger)
	b.initialized = true
	b.closed = false
	b.awaiting = false
	b.failed = nil
	b.buffered.Store(0)
	b.spills, b.directSwaps, b.slotReads = 0, 0, 0

	return err
}

// RegionSize returns the effective capacity of each region, which is also the slot size.
func (b *SpillBuffer) RegionSize() int {
	return b.regionSize
}

// MaxRecordSize returns the frame size the regions are guaranteed to hold.
// Larger frames are accepted as long as they fit an empty region.
func (b *SpillBuffer) MaxRecordSize() int {
	return b.maxRecordSize
}

// Write appends one frame. It flushes the write region first when the frame
// and its header do not fit in the remaining space. A frame that cannot fit
// even an empty region fails with errors.ErrRecordTooLarge.
func (b *SpillBuffer) Write(frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.usableLocked(); err != nil {
		return err
	}
	if len(frame)+HeaderSize > b.regionSize {
		return fmt.Errorf("%w: %d bytes does not fit a region of %d", errors.ErrRecordTooLarge, len(frame), b.regionSize)
	}

	if b.write.free() < len(frame)+HeaderSize {
		if err := b.flushLocked(); err != nil {
			return err
		}
	}

	b.write.appendFrame(frame)
	b.buffered.Add(1)
	return nil
}

// SetEOF appends the end-of-stream marker and flushes the write region.
func (b *SpillBuffer) SetEOF() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.usableLocked(); err != nil {
		return err
	}

	if b.write.free() < HeaderSize {
		if err := b.flushLocked(); err != nil {
			return err
		}
	}
	b.write.appendSentinel()
	return b.flushLocked()
}

// Read returns the next frame appended to dst. When the end-of-stream marker
// is reached the buffer closes itself and Read returns ok == false with a nil
// error. Read blocks while nothing has been flushed yet; cancelling ctx
// releases it with errors.ErrCancelled.
func (b *SpillBuffer) Read(ctx context.Context, dst []byte) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.usableLocked(); err != nil {
		return nil, false, err
	}

	if b.read.unread() < HeaderSize {
		if err := b.refillLocked(ctx); err != nil {
			return nil, false, err
		}
	}

	n := b.read.nextLength()
	if n == Sentinel {
		b.logger.Debug("end of stream reached")
		if err := b.closeLocked(); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	frame := b.read.take(dst, int(n))
	b.buffered.Add(-1)
	return frame, true, nil
}

// flushLocked hands the write region to a waiting reader, or spills it.
func (b *SpillBuffer) flushLocked() error {
	if b.awaiting {
		// The reader exhausted its region and found no slots, so the regions
		// can change owners.
		b.write, b.read = b.read, b.write
		b.write.reset()
		b.awaiting = false
		b.directSwaps++
		b.dataCond.Signal()

		if b.metrics != nil {
			b.metrics.IncBufferDirectSwaps(b.name)
		}
		return nil
	}

	hadFile := b.store.hasFile()
	sl, err := b.store.store(b.write.data, b.write.tail)
	if err != nil {
		b.failed = err
		return err
	}
	b.write.reset()
	b.spills++

	b.logger.Debug("write region spilled",
		"slot", sl.index,
		"used_bytes", sl.used,
		"filled_slots", len(b.store.filled),
	)

	if b.metrics != nil {
		b.metrics.IncBufferSpills(b.name)
		b.metrics.SetBufferRecords(b.name, float64(b.buffered.Load()))
		if !hadFile || sl.index == b.store.slots()-1 {
			b.metrics.SetBufferSpillFileBytes(b.name, float64(b.store.fileBytes()))
		}
	}
	return nil
}

// refillLocked makes unread data available in the read region, waiting for
// the writer if neither a filled slot nor a direct swap is available.
func (b *SpillBuffer) refillLocked(ctx context.Context) error {
	b.read.reset()

	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.dataCond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	for {
		if err := b.usableLocked(); err != nil {
			return err
		}

		// A direct swap delivered data while we waited. It is older than any
		// slot spilled after it.
		if b.read.unread() > 0 {
			return nil
		}

		if len(b.store.filled) > 0 {
			n, err := b.store.load(b.read.data)
			if err != nil {
				b.failed = err
				return err
			}
			b.read.tail = n
			b.slotReads++

			if b.metrics != nil {
				b.metrics.IncBufferSlotReads(b.name)
				b.metrics.SetBufferRecords(b.name, float64(b.buffered.Load()))
			}
			return nil
		}

		if ctx.Err() != nil {
			b.awaiting = false
			return fmt.Errorf("%w: %w", errors.ErrCancelled, context.Cause(ctx))
		}

		b.awaiting = true
		b.dataCond.Wait()
	}
}

func (b *SpillBuffer) usableLocked() error {
	switch {
	case !b.initialized:
		return errors.ErrNotInitialized
	case b.closed:
		return errors.ErrBufferClosed
	case b.failed != nil:
		return fmt.Errorf("buffer unusable after earlier failure: %w", b.failed)
	}
	return nil
}

// Clear discards all buffered frames and resets the record count.
// An allocated spill file is kept and its slots are reused.
func (b *SpillBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized || b.closed {
		return
	}

	b.store.reclaim()
	b.write.reset()
	b.read.reset()
	b.buffered.Store(0)

	if b.metrics != nil {
		b.metrics.SetBufferRecords(b.name, 0)
	}
}

// Close releases the regions and deletes the spill file.
// A reader blocked in Read is released with errors.ErrBufferClosed.
func (b *SpillBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *SpillBuffer) closeLocked() error {
	if !b.initialized || b.closed {
		return nil
	}

	b.closed = true
	b.awaiting = false
	b.dataCond.Broadcast()

	b.write = nil
	b.read = nil
	err := b.store.close()

	if b.metrics != nil {
		b.metrics.SetBufferRecords(b.name, 0)
		b.metrics.SetBufferSpillFileBytes(b.name, 0)
	}
	return err
}

// IsEmpty returns true if neither region holds unread bytes and no slot is filled.
func (b *SpillBuffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized || b.closed {
		return true
	}
	return b.write.tail == 0 && b.read.unread() == 0 && len(b.store.filled) == 0
}

// HasData returns true if Read would return without waiting for the writer.
func (b *SpillBuffer) HasData() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized || b.closed {
		return false
	}
	return b.read.unread() > 0 || len(b.store.filled) > 0
}

// HasFile returns true if a spill file has been allocated.
func (b *SpillBuffer) HasFile() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store != nil && b.store.hasFile()
}

// IsClosed returns true after Close or after end of stream was read.
func (b *SpillBuffer) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// BufferedRecords returns the number of frames written but not yet read.
func (b *SpillBuffer) BufferedRecords() int64 {
	return b.buffered.Load()
}

// Stats returns current buffer statistics.
func (b *SpillBuffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		BufferedRecords: b.buffered.Load(),
		Spills:          b.spills,
		DirectSwaps:     b.directSwaps,
		SlotReads:       b.slotReads,
	}
	if b.store != nil {
		s.HasFile = b.store.hasFile()
		s.Slots = b.store.slots()
		s.FilledSlots = len(b.store.filled)
		s.FreeSlots = len(b.store.free)
	}
	return s
}
