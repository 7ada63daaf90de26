package mux

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Patch rewrites a fixed-width integer field at an absolute file offset.
type Patch struct {
	Offset int64
	// Width is 2, 4 or 8 bytes.
	Width int
	Value uint64
	// BigEndian selects network byte order; AVI fields are little-endian.
	BigEndian bool
}

// Bytes encodes the patch value.
func (p Patch) Bytes() ([]byte, error) {
	var order binary.ByteOrder = binary.LittleEndian
	if p.BigEndian {
		order = binary.BigEndian
	}
	buf := make([]byte, p.Width)
	switch p.Width {
	case 2:
		if p.Value > 0xFFFF {
			return nil, fmt.Errorf("patch at %d: value %d overflows 16 bits", p.Offset, p.Value)
		}
		order.PutUint16(buf, uint16(p.Value))
	case 4:
		if p.Value > 0xFFFFFFFF {
			return nil, fmt.Errorf("patch at %d: value %d overflows 32 bits", p.Offset, p.Value)
		}
		order.PutUint32(buf, uint32(p.Value))
	case 8:
		order.PutUint64(buf, p.Value)
	default:
		return nil, fmt.Errorf("patch at %d: unsupported width %d", p.Offset, p.Width)
	}
	return buf, nil
}

// ApplyPatches writes every patch through w.
func ApplyPatches(w io.WriterAt, patches ...Patch) error {
	for _, p := range patches {
		buf, err := p.Bytes()
		if err != nil {
			return err
		}
		if _, err := w.WriteAt(buf, p.Offset); err != nil {
			return fmt.Errorf("patch at %d: %w", p.Offset, err)
		}
	}
	return nil
}

// Uint32LE returns a 4-byte little-endian patch.
func Uint32LE(offset int64, value uint32) Patch {
	return Patch{Offset: offset, Width: 4, Value: uint64(value)}
}

// Uint32BE returns a 4-byte big-endian patch.
func Uint32BE(offset int64, value uint32) Patch {
	return Patch{Offset: offset, Width: 4, Value: uint64(value), BigEndian: true}
}

// Uint64BE returns an 8-byte big-endian patch.
func Uint64BE(offset int64, value uint64) Patch {
	return Patch{Offset: offset, Width: 8, Value: value, BigEndian: true}
}
