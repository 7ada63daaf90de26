package buffer

import (
	"fmt"
	"sync/atomic"
)

// Pass values stamped on buffers.
const (
	PassSingle   = 0
	PassAnalysis = 1
	PassFinal    = 2
)

// Buffer is a payload with pipeline metadata.
type Buffer struct {
	// Data holds the payload. len(Data) is the payload size and cap(Data) the
	// allocated size.
	Data []byte

	// Position is the normalized progress of the source read when this buffer
	// was produced, in [0,1].
	Position float64

	// StreamID is the source stream identifier (0xE0 video, 0x80BD AC-3 ...).
	StreamID int
	// Track is the output track index assigned by the muxer (0 video, 1.. audio).
	Track int
	// Pass is PassSingle, PassAnalysis or PassFinal.
	Pass int

	KeyFrame bool
	Repeat   bool

	// PTS is the presentation timestamp in 90 kHz units, or -1 when unknown.
	PTS int64
	// Granule is the codec defined granule position used by Ogg packets.
	Granule int64

	refs   atomic.Int32
	onFree func(*Buffer)
}

// Option customizes a new Buffer.
type Option func(*Buffer)

// WithFreeHook registers a callback invoked once when the buffer is freed.
func WithFreeHook(fn func(*Buffer)) Option {
	return func(b *Buffer) {
		b.onFree = fn
	}
}

// New allocates a buffer with a payload of size bytes and one reference.
func New(size int, opts ...Option) *Buffer {
	if size < 0 {
		size = 0
	}
	b := &Buffer{Data: make([]byte, size), PTS: -1}
	b.refs.Store(1)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FromBytes wraps data (without copying) in a new buffer.
func FromBytes(data []byte, opts ...Option) *Buffer {
	b := New(0, opts...)
	b.Data = data
	return b
}

// Size returns the payload length.
func (b *Buffer) Size() int {
	return len(b.Data)
}

// Alloc returns the allocated capacity.
func (b *Buffer) Alloc() int {
	return cap(b.Data)
}

// Resize changes the payload length, reallocating when n exceeds the
// allocation. Existing bytes are preserved.
func (b *Buffer) Resize(n int) {
	if n < 0 {
		n = 0
	}
	if n <= cap(b.Data) {
		b.Data = b.Data[:n]
		return
	}
	grown := make([]byte, n)
	copy(grown, b.Data)
	b.Data = grown
}

// CopyMeta copies routing metadata (not payload) from src.
func (b *Buffer) CopyMeta(src *Buffer) {
	b.Position = src.Position
	b.StreamID = src.StreamID
	b.Track = src.Track
	b.Pass = src.Pass
	b.KeyFrame = src.KeyFrame
	b.Repeat = src.Repeat
	b.PTS = src.PTS
	b.Granule = src.Granule
}

// Retain adds a reference.
func (b *Buffer) Retain() *Buffer {
	if b.refs.Add(1) <= 1 {
		panic("buffer: retain after free")
	}
	return b
}

// Release drops a reference and frees the buffer when none remain.
// Releasing a freed buffer panics.
func (b *Buffer) Release() {
	n := b.refs.Add(-1)
	switch {
	case n > 0:
		return
	case n < 0:
		panic(fmt.Sprintf("buffer: release of freed buffer (refs=%d)", n))
	}
	if b.onFree != nil {
		b.onFree(b)
	}
	b.Data = nil
}

// Refs reports the current reference count.
func (b *Buffer) Refs() int {
	return int(b.refs.Load())
}
