package demux

import (
	"errors"
	"fmt"
	"io"

	"ripline/internal/errcode"
	"ripline/internal/title"
)

// PackSize is the DVD sector and program stream pack size.
const PackSize = 2048

// ErrSyncLost reports a pack that does not start with a pack header.
var ErrSyncLost = errcode.Wrap(errcode.SyncLost, "demux", "parse pack", errors.New("missing pack start code"))

// Packet is one PES payload extracted from a pack.
type Packet struct {
	StreamID int
	// PTS in 90 kHz units, -1 when absent.
	PTS     int64
	Payload []byte
}

// ParsePack extracts the video and private stream 1 payloads from pack.
// Payload slices alias pack.
func ParsePack(pack []byte) ([]Packet, error) {
	if len(pack) < 14 || pack[0] != 0 || pack[1] != 0 || pack[2] != 1 || pack[3] != 0xBA {
		return nil, ErrSyncLost
	}
	pos := 4 + 9
	pos += 1 + int(pack[pos]&0x7)

	if pos+6 <= len(pack) && pack[pos] == 0 && pack[pos+1] == 0 && pack[pos+2] == 1 && pack[pos+3] == 0xBB {
		pos += 4
		headerLength := int(pack[pos])<<8 | int(pack[pos+1])
		pos += 2 + headerLength
	}

	var packets []Packet
	for pos+6 <= len(pack) && pack[pos] == 0 && pack[pos+1] == 0 && pack[pos+2] == 1 {
		pos += 3
		streamID := int(pack[pos])
		pos++
		packetLength := int(pack[pos])<<8 | int(pack[pos+1])
		pos += 2
		packetEnd := pos + packetLength
		if packetEnd > len(pack) {
			return packets, errcode.Wrap(errcode.SyncLost, "demux", "parse pes",
				fmt.Errorf("pes length %d overruns pack", packetLength))
		}

		if streamID != title.VideoStreamID && streamID != title.PrivateStream1 {
			pos = packetEnd
			continue
		}
		if pos+3 > packetEnd {
			return packets, errcode.Wrap(errcode.SyncLost, "demux", "parse pes", errors.New("truncated pes header"))
		}

		hasPTS := (pack[pos+1]>>6)&0x2 != 0
		pos += 2
		headerEnd := pos + 1 + int(pack[pos])
		pos++
		pts := int64(-1)
		if hasPTS && pos+5 <= packetEnd {
			pts = int64(pack[pos]>>1&0x7)<<30 |
				int64(pack[pos+1])<<22 |
				int64(pack[pos+2]>>1)<<15 |
				int64(pack[pos+3])<<7 |
				int64(pack[pos+4]>>1)
		}
		pos = headerEnd

		if streamID == title.PrivateStream1 {
			if pos+4 > packetEnd {
				return packets, errcode.Wrap(errcode.SyncLost, "demux", "parse pes", errors.New("truncated private stream header"))
			}
			streamID |= int(pack[pos]) << 8
			pos += 4
		}
		if pos > packetEnd {
			return packets, errcode.Wrap(errcode.SyncLost, "demux", "parse pes", errors.New("pes header overruns packet"))
		}

		packets = append(packets, Packet{StreamID: streamID, PTS: pts, Payload: pack[pos:packetEnd]})
		pos = packetEnd
	}
	return packets, nil
}

// ProbeResult lists the streams found at the start of a program stream.
type ProbeResult struct {
	Video bool
	// Audio holds folded AC-3 stream ids in first-seen order.
	Audio []int
	Packs int
	// FirstPTS per stream id.
	FirstPTS map[int]int64
}

// Probe scans up to maxPacks packs from r.
func Probe(r io.Reader, maxPacks int) (ProbeResult, error) {
	res := ProbeResult{FirstPTS: make(map[int]int64)}
	pack := make([]byte, PackSize)
	seen := make(map[int]bool)
	for res.Packs < maxPacks {
		if _, err := io.ReadFull(r, pack); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return res, errcode.Wrap(errcode.ReadFailed, "demux", "probe", err)
		}
		res.Packs++
		packets, err := ParsePack(pack)
		if err != nil && len(packets) == 0 {
			continue
		}
		for _, p := range packets {
			if _, ok := res.FirstPTS[p.StreamID]; !ok && p.PTS >= 0 {
				res.FirstPTS[p.StreamID] = p.PTS
			}
			if seen[p.StreamID] {
				continue
			}
			seen[p.StreamID] = true
			switch {
			case p.StreamID == title.VideoStreamID:
				res.Video = true
			case isAC3(p.StreamID):
				res.Audio = append(res.Audio, p.StreamID)
			}
		}
	}
	return res, nil
}

func isAC3(streamID int) bool {
	if streamID&0xFF != title.PrivateStream1 {
		return false
	}
	sub := streamID >> 8
	return sub >= 0x80 && sub <= 0x87
}
