package buffer

import (
	"encoding/binary"
	"math"
)

const (
	// HeaderSize is the width of the length prefix in front of every frame.
	HeaderSize = 4

	// Sentinel is the reserved length value marking end of stream.
	// No legal frame can have this length.
	Sentinel = math.MaxUint32

	// MaxFrameSize bounds the configurable record size so a region always fits in an int.
	MaxFrameSize = math.MaxInt32 - HeaderSize
)

// encodeLength writes the frame header for n into dst.
func encodeLength(dst []byte, n uint32) {
	binary.BigEndian.PutUint32(dst[:HeaderSize], n)
}

// decodeLength reads a frame header. The caller guarantees len(src) >= HeaderSize.
func decodeLength(src []byte) uint32 {
	return binary.BigEndian.Uint32(src[:HeaderSize])
}

// region is one fixed-capacity memory area holding whole frames.
// Bytes in [head, tail) are unread; [tail, len(data)) is free.
type region struct {
	data []byte
	head int
	tail int
}

func newRegion(capacity int) *region {
	return &region{data: make([]byte, capacity)}
}

func (r *region) free() int {
	return len(r.data) - r.tail
}

func (r *region) unread() int {
	return r.tail - r.head
}

func (r *region) reset() {
	r.head = 0
	r.tail = 0
}

// appendFrame copies header and payload behind tail. The caller has checked free().
func (r *region) appendFrame(payload []byte) {
	encodeLength(r.data[r.tail:], uint32(len(payload)))
	r.tail += HeaderSize
	r.tail += copy(r.data[r.tail:], payload)
}

// appendSentinel writes the end-of-stream marker.
func (r *region) appendSentinel() {
	encodeLength(r.data[r.tail:], Sentinel)
	r.tail += HeaderSize
}

// nextLength consumes a header and returns the frame length it carries.
func (r *region) nextLength() uint32 {
	n := decodeLength(r.data[r.head:])
	r.head += HeaderSize
	return n
}

// take consumes n payload bytes and appends them to dst.
func (r *region) take(dst []byte, n int) []byte {
	dst = append(dst, r.data[r.head:r.head+n]...)
	r.head += n
	return dst
}
