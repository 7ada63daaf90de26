package ogm

import (
	"bytes"
	"encoding/binary"

	"ripline/internal/mux"
	"ripline/internal/title"
)

const streamHeaderSize = 53

type videoHeader struct {
	PacketType     byte
	StreamType     [8]byte
	SubType        [4]byte
	Size           int32
	TimeUnit       int64
	SamplesPerUnit int64
	DefaultLen     int32
	BufferSize     int32
	BitsPerSample  int16
	Padding        int16
	Width          int32
	Height         int32
}

type audioHeader struct {
	PacketType     byte
	StreamType     [8]byte
	SubType        [4]byte
	Size           int32
	TimeUnit       int64
	SamplesPerUnit int64
	DefaultLen     int32
	BufferSize     int32
	BitsPerSample  int16
	Padding        int16
	Channels       int16
	BlockAlign     int16
	AvgBytesPerSec int32
}

// field8 and field4 space-pad s to a fixed-width header field.
func field8(s string) [8]byte {
	f := [8]byte{' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	copy(f[:], s)
	return f
}

func field4(s string) [4]byte {
	f := [4]byte{' ', ' ', ' ', ' '}
	copy(f[:], s)
	return f
}

func encodeHeader(h any) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, h)
	return buf.Bytes()
}

func videoStreamHeader(info mux.Info) []byte {
	sub := "XVID"
	if info.VideoCodec == title.VideoH264 {
		sub = "H264"
	}
	return encodeHeader(videoHeader{
		PacketType:     0x01,
		StreamType:     field8("video"),
		SubType:        field4(sub),
		Size:           streamHeaderSize - 1,
		TimeUnit:       10_000_000 * int64(info.RateBase) / int64(info.Rate),
		SamplesPerUnit: 1,
		BufferSize:     1024 * 1024,
		Width:          int32(info.Width),
		Height:         int32(info.Height),
	})
}

func mp3StreamHeader(info mux.Info) []byte {
	channels := info.Channels
	if channels <= 0 {
		channels = 2
	}
	return encodeHeader(audioHeader{
		PacketType:     0x01,
		StreamType:     field8("audio"),
		SubType:        field4("55"),
		Size:           streamHeaderSize - 1,
		SamplesPerUnit: int64(info.SampleRate),
		DefaultLen:     1,
		BufferSize:     30 * 1024,
		Channels:       int16(channels),
		AvgBytesPerSec: int32(info.Bitrate * 1024 / 8),
	})
}
