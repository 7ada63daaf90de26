package avi

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"ripline/internal/mux"
	"ripline/internal/title"
)

// Fixed header layout offsets.
const (
	HeaderSize       = 2048
	moviListOffset   = 2036
	riffSizeOffset   = 4
	flagsOffset      = 44
	totalFrameOffset = 48
	videoLenOffset   = 140
	audioLenOffset   = 264
	audioStrlSize    = 114
	moviSizeOffset   = 2040
	riffSizeBase     = 2040
)

// Flags.
const (
	FlagHasIndex      = 0x10
	IndexFlagKeyFrame = 0x10
)

type mainHeader struct {
	MicroSecPerFrame    uint32
	MaxBytesPerSec      uint32
	PaddingGranularity  uint32
	Flags               uint32
	TotalFrames         uint32
	InitialFrames       uint32
	Streams             uint32
	SuggestedBufferSize uint32
	Width               uint32
	Height              uint32
	Reserved            [4]uint32
}

type streamHeader struct {
	Type                [4]byte
	Handler             [4]byte
	Flags               uint32
	Priority            uint16
	Language            uint16
	InitialFrames       uint32
	Scale               uint32
	Rate                uint32
	Start               uint32
	Length              uint32
	SuggestedBufferSize uint32
	Quality             uint32
	SampleSize          uint32
	Left, Top           int16
	Right, Bottom       int16
}

type bitmapInfo struct {
	Size          uint32
	Width         uint32
	Height        uint32
	Planes        uint16
	BitCount      uint16
	Compression   [4]byte
	SizeImage     uint32
	XPelsPerMeter uint32
	YPelsPerMeter uint32
	ClrUsed       uint32
	ClrImportant  uint32
}

// waveFormatMP3 is WAVEFORMATEX followed by MPEGLAYER3WAVEFORMAT fields.
type waveFormatMP3 struct {
	FormatTag      uint16
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
	Size           uint16
	ID             uint16
	Flags          uint32
	BlockSize      uint16
	FramesPerBlock uint16
	CodecDelay     uint16
}

func fourCC(s string) [4]byte {
	var f [4]byte
	copy(f[:], s)
	return f
}

// chunkTag returns 00dc for the video track and NNwb for audio track NN.
func chunkTag(track int) [4]byte {
	if track == 0 {
		return fourCC("00dc")
	}
	return fourCC(fmt.Sprintf("%02dwb", track))
}

// audioLengthOffset is the strh Length field of audio track i (0-based).
func audioLengthOffset(i int) int64 {
	return int64(audioLenOffset + audioStrlSize*i)
}

func videoFourCCs(c title.VideoCodec) (handler, compression string, err error) {
	switch c {
	case title.VideoMPEG4:
		return "divx", "DX50", nil
	case title.VideoXviD:
		return "xvid", "XVID", nil
	case title.VideoH264:
		return "H264", "H264", nil
	default:
		return "", "", fmt.Errorf("video codec %s not supported in avi", c)
	}
}

type headerWriter struct {
	buf bytes.Buffer
}

func (w *headerWriter) tag(s string) {
	w.buf.WriteString(s)
}

func (w *headerWriter) u32(v uint32) {
	_ = binary.Write(&w.buf, binary.LittleEndian, v)
}

func (w *headerWriter) chunk(id string, payload any) {
	w.tag(id)
	w.u32(uint32(binary.Size(payload)))
	_ = binary.Write(&w.buf, binary.LittleEndian, payload)
}

// buildHeader renders the full 2048-byte header region for tracks.
func buildHeader(tracks []mux.Info) ([]byte, error) {
	video := tracks[0]
	audios := tracks[1:]
	handler, compression, err := videoFourCCs(video.VideoCodec)
	if err != nil {
		return nil, err
	}

	main := mainHeader{
		MicroSecPerFrame: uint32(uint64(1000000) * uint64(video.RateBase) / uint64(video.Rate)),
		Streams:          uint32(len(tracks)),
		Width:            uint32(video.Width),
		Height:           uint32(video.Height),
	}
	vsh := streamHeader{
		Type:    fourCC("vids"),
		Handler: fourCC(handler),
		Scale:   uint32(video.RateBase),
		Rate:    uint32(video.Rate),
	}
	bmi := bitmapInfo{
		Width:       uint32(video.Width),
		Height:      uint32(video.Height),
		Planes:      1,
		BitCount:    24,
		Compression: fourCC(compression),
	}
	bmi.Size = uint32(binary.Size(bmi))

	mainSize := 8 + binary.Size(main)
	strhSize := 8 + binary.Size(vsh)
	strfVideo := 8 + binary.Size(bmi)
	strfAudio := 8 + binary.Size(waveFormatMP3{})
	hdrlBytes := 4 + mainSize + len(tracks)*(12+strhSize) + strfVideo + len(audios)*strfAudio

	w := &headerWriter{}
	w.tag("RIFF")
	w.u32(riffSizeBase)
	w.tag("AVI ")
	w.tag("LIST")
	w.u32(uint32(hdrlBytes))
	w.tag("hdrl")
	w.chunk("avih", main)

	w.tag("LIST")
	w.u32(uint32(4 + strhSize + strfVideo))
	w.tag("strl")
	w.chunk("strh", vsh)
	w.chunk("strf", bmi)

	for i, a := range audios {
		if a.AudioCodec != title.AudioMP3 {
			return nil, fmt.Errorf("audio track %d: codec %s not supported in avi", i+1, a.AudioCodec)
		}
		channels := a.Channels
		if channels <= 0 {
			channels = 2
		}
		ash := streamHeader{
			Type:          fourCC("auds"),
			InitialFrames: 1,
			Scale:         1152,
			Rate:          uint32(a.SampleRate),
			Quality:       0xFFFFFFFF,
		}
		wf := waveFormatMP3{
			FormatTag:      0x55,
			Channels:       uint16(channels),
			SamplesPerSec:  uint32(a.SampleRate),
			AvgBytesPerSec: uint32(a.Bitrate * 1024 / 8),
			BlockAlign:     1152,
			Size:           12,
			ID:             1,
			Flags:          2,
			BlockSize:      1152,
			FramesPerBlock: 1,
			CodecDelay:     1393,
		}
		w.tag("LIST")
		w.u32(uint32(4 + strhSize + strfAudio))
		w.tag("strl")
		w.chunk("strh", ash)
		w.chunk("strf", wf)
	}

	junk := moviListOffset - w.buf.Len() - 8
	if junk < 0 {
		return nil, fmt.Errorf("avi header overflows %d bytes", moviListOffset)
	}
	w.tag("JUNK")
	w.u32(uint32(junk))
	w.buf.Write(make([]byte, junk))
	w.tag("LIST")
	w.u32(4)
	w.tag("movi")
	return w.buf.Bytes(), nil
}
