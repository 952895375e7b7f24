// Package buffer provides the bounded-memory FIFO that connects graph nodes.
//
// A SpillBuffer carries length-prefixed byte frames from exactly one writer
// goroutine to exactly one reader goroutine. It owns two memory regions of the
// same size. The writer fills the write region; the reader drains the read
// region. When the write region has no room for the next frame it is flushed:
//
//   - If the reader is waiting, the two regions swap owners. No bytes are copied.
//   - Otherwise the region is written to a slot of a temporary spill file and
//     queued. The reader loads queued slots back in the order they were written.
//
// The writer therefore never blocks on a slow reader, and memory stays at two
// regions no matter how far the writer gets ahead. Disk usage grows one slot at
// a time and consumed slots are reused.
//
// # Frames
//
// Every frame is a 4-byte big-endian length followed by the payload. The
// length 0xFFFFFFFF is reserved as the end-of-stream marker written by SetEOF.
//
// # Usage
//
//	buf := buffer.New(buffer.Config{Name: "orders", DataRegionSize: 64 * 1024}, logger, nil)
//	if err := buf.Init(); err != nil {
//	    return err
//	}
//
//	// writer goroutine
//	for _, frame := range frames {
//	    if err := buf.Write(frame); err != nil {
//	        return err
//	    }
//	}
//	buf.SetEOF()
//
//	// reader goroutine
//	for {
//	    frame, ok, err := buf.Read(ctx, scratch[:0])
//	    if err != nil {
//	        return err
//	    }
//	    if !ok {
//	        break // end of stream, buffer closed
//	    }
//	    process(frame)
//	}
//
// RecordBuffer layers a record.Codec on top so graph nodes exchange
// *record.Record values instead of raw frames.
//
// # Cleanup
//
// Spill files are created with os.CreateTemp and deleted on Close or when the
// reader consumes the end-of-stream marker. RemoveOrphans deletes files of
// buffers that were never closed and is meant for signal handlers.
package buffer
