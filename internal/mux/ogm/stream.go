package ogm

import (
	"encoding/binary"
	"io"
)

// Page header flags.
const (
	FlagContinued = 0x01
	FlagBOS       = 0x02
	FlagEOS       = 0x04
)

const (
	maxSegments   = 255
	pageHeaderLen = 27
)

// stream is one Ogg logical bitstream.
type stream struct {
	serial   uint32
	sequence uint32
	packetNo int64
	bos      bool
}

func newStream(serial uint32) *stream {
	return &stream{serial: serial, bos: true}
}

// writePacket frames one packet into as many pages as it needs and writes
// them to w immediately. It returns the bytes written.
func (s *stream) writePacket(w io.Writer, packet []byte, granule int64) (int64, error) {
	lacing := make([]byte, 0, len(packet)/255+1)
	for n := len(packet); ; n -= 255 {
		if n < 255 {
			lacing = append(lacing, byte(n))
			break
		}
		lacing = append(lacing, 255)
	}

	var written int64
	continued := false
	for len(lacing) > 0 {
		segs := lacing
		last := true
		if len(segs) > maxSegments {
			segs = segs[:maxSegments]
			last = false
		}
		bodyLen := 0
		for _, l := range segs {
			bodyLen += int(l)
		}

		var flags byte
		if continued {
			flags |= FlagContinued
		}
		if s.bos {
			flags |= FlagBOS
			s.bos = false
		}
		pageGranule := int64(-1)
		if last {
			pageGranule = granule
		}

		page := make([]byte, pageHeaderLen+len(segs)+bodyLen)
		copy(page, "OggS")
		page[5] = flags
		binary.LittleEndian.PutUint64(page[6:], uint64(pageGranule))
		binary.LittleEndian.PutUint32(page[14:], s.serial)
		binary.LittleEndian.PutUint32(page[18:], s.sequence)
		page[26] = byte(len(segs))
		copy(page[pageHeaderLen:], segs)
		copy(page[pageHeaderLen+len(segs):], packet[:bodyLen])
		binary.LittleEndian.PutUint32(page[22:], Checksum(page))

		n, err := w.Write(page)
		written += int64(n)
		if err != nil {
			return written, err
		}
		s.sequence++
		packet = packet[bodyLen:]
		lacing = lacing[len(segs):]
		continued = true
	}
	s.packetNo++
	return written, nil
}
