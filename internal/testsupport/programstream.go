package testsupport

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// PES describes one packet placed in a synthetic program stream pack. A
// negative PTS omits the timestamp. Sub is the private stream 1 substream id.
type PES struct {
	StreamID int
	Sub      byte
	PTS      int64
	Payload  []byte
}

// BuildPack assembles a 2048-byte MPEG-2 program stream pack holding the
// given PES packets, padded with a padding stream.
func BuildPack(withSystemHeader bool, packets ...PES) []byte {
	pack := make([]byte, 0, 2048)
	pack = append(pack, 0, 0, 1, 0xBA)
	pack = append(pack, 0x44, 0, 4, 0, 4, 1, 0x01, 0x89, 0xC3)
	pack = append(pack, 0xF8)
	if withSystemHeader {
		pack = append(pack, 0, 0, 1, 0xBB, 0, 6, 1, 2, 3, 4, 5, 6)
	}
	for _, p := range packets {
		var header []byte
		flags := byte(0)
		if p.PTS >= 0 {
			flags = 0x80
			header = EncodePTS(p.PTS)
		}
		body := []byte{0x81, flags, byte(len(header))}
		body = append(body, header...)
		if p.StreamID == 0xBD {
			body = append(body, p.Sub, 1, 0, 1)
		}
		body = append(body, p.Payload...)
		length := make([]byte, 2)
		binary.BigEndian.PutUint16(length, uint16(len(body)))
		pack = append(pack, 0, 0, 1, byte(p.StreamID))
		pack = append(pack, length...)
		pack = append(pack, body...)
	}
	if remaining := 2048 - len(pack); remaining >= 6 {
		pad := make([]byte, 2)
		binary.BigEndian.PutUint16(pad, uint16(remaining-6))
		pack = append(pack, 0, 0, 1, 0xBE)
		pack = append(pack, pad...)
		pack = append(pack, make([]byte, remaining-6)...)
	}
	for len(pack) < 2048 {
		pack = append(pack, 0xFF)
	}
	return pack
}

// EncodePTS renders a 33-bit PTS in PES header form.
func EncodePTS(pts int64) []byte {
	return []byte{
		byte(0x21 | (pts>>29)&0x0E),
		byte(pts >> 22),
		byte((pts>>14)&0xFE | 1),
		byte(pts >> 7),
		byte((pts<<1)&0xFE | 1),
	}
}

// WriteProgramStream writes a title of n packs to path. Every pack carries
// one video packet and, for each audio substream in audioSubs, one AC-3
// packet. Audio starts audioLag 90 kHz ticks after video.
func WriteProgramStream(t testing.TB, path string, n int, audioSubs []byte, audioLag int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	for i := 0; i < n; i++ {
		pts := int64(i) * 3600
		packets := []PES{{StreamID: 0xE0, PTS: pts, Payload: pattern(byte(i), 200+i%7)}}
		for _, sub := range audioSubs {
			packets = append(packets, PES{StreamID: 0xBD, Sub: sub, PTS: pts + audioLag, Payload: pattern(sub+byte(i), 96)})
		}
		if _, err := f.Write(BuildPack(i == 0, packets...)); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

func pattern(seed byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i)
	}
	return out
}
