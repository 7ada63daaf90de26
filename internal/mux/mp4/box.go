package mp4

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// box appends a size and type header to the concatenated payloads.
func box(typ string, payloads ...[]byte) []byte {
	size := 8
	for _, p := range payloads {
		size += len(p)
	}
	out := make([]byte, 8, size)
	binary.BigEndian.PutUint32(out, uint32(size))
	copy(out[4:], typ)
	for _, p := range payloads {
		out = append(out, p...)
	}
	return out
}

// fullBox is a box whose payload starts with version and flags.
func fullBox(typ string, version byte, flags uint32, payloads ...[]byte) []byte {
	head := []byte{version, byte(flags >> 16), byte(flags >> 8), byte(flags)}
	return box(typ, append([][]byte{head}, payloads...)...)
}

type bw struct {
	b []byte
}

func (w *bw) u8(v uint8)   { w.b = append(w.b, v) }
func (w *bw) u16(v uint16) { w.b = binary.BigEndian.AppendUint16(w.b, v) }
func (w *bw) u32(v uint32) { w.b = binary.BigEndian.AppendUint32(w.b, v) }
func (w *bw) u64(v uint64) { w.b = binary.BigEndian.AppendUint64(w.b, v) }
func (w *bw) zero(n int)   { w.b = append(w.b, make([]byte, n)...) }
func (w *bw) raw(p []byte) { w.b = append(w.b, p...) }

// unityMatrix is the identity transform used by mvhd and tkhd.
func (w *bw) unityMatrix() {
	for _, v := range []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000} {
		w.u32(v)
	}
}

// boxHeader is a parsed box header.
type boxHeader struct {
	Type      string
	Offset    int64
	HeaderLen int64
	Size      int64
}

var errTruncated = errors.New("truncated box")

// readBoxHeader parses the header at off. end bounds the parent.
func readBoxHeader(r io.ReaderAt, off, end int64) (boxHeader, error) {
	var hdr [16]byte
	if _, err := r.ReadAt(hdr[:8], off); err != nil {
		return boxHeader{}, fmt.Errorf("read box header at %d: %w", off, err)
	}
	h := boxHeader{
		Type:      string(hdr[4:8]),
		Offset:    off,
		HeaderLen: 8,
		Size:      int64(binary.BigEndian.Uint32(hdr[:4])),
	}
	switch h.Size {
	case 0:
		h.Size = end - off
	case 1:
		if _, err := r.ReadAt(hdr[8:16], off+8); err != nil {
			return boxHeader{}, fmt.Errorf("read largesize at %d: %w", off, err)
		}
		h.Size = int64(binary.BigEndian.Uint64(hdr[8:16]))
		h.HeaderLen = 16
	}
	if h.Size < h.HeaderLen || off+h.Size > end {
		return boxHeader{}, fmt.Errorf("%w: %q at %d size %d", errTruncated, h.Type, off, h.Size)
	}
	return h, nil
}

// walkBoxes lists the boxes in data, a byte slice holding sibling boxes.
func walkBoxes(data []byte) ([]boxHeader, error) {
	var out []boxHeader
	r := bytes.NewReader(data)
	for off := int64(0); off < int64(len(data)); {
		h, err := readBoxHeader(r, off, int64(len(data)))
		if err != nil {
			return nil, err
		}
		out = append(out, h)
		off += h.Size
	}
	return out, nil
}
