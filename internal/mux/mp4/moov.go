package mp4

import (
	"ripline/internal/language"
	"ripline/internal/mux"
	"ripline/internal/title"
)

const movieTimescale = 1000

// Object type indications for esds.
const (
	objectMPEG4Visual = 0x20
	objectAAC         = 0x40
	objectMP3         = 0x6B
)

type sampleTable struct {
	id        uint32
	info      mux.Info
	timescale uint32
	delta     uint32
	sizes     []uint32
	offsets   []uint64
	sync      []uint32
}

func newSampleTable(id uint32, info mux.Info) *sampleTable {
	t := &sampleTable{id: id, info: info}
	if info.Kind == mux.KindVideo {
		t.timescale = uint32(info.Rate)
		t.delta = uint32(info.RateBase)
	} else {
		t.timescale = uint32(info.SampleRate)
		t.delta = 1152
		if info.AudioCodec == title.AudioAAC {
			t.delta = 1024
		}
	}
	return t
}

func (t *sampleTable) mediaDuration() uint64 {
	return uint64(len(t.sizes)) * uint64(t.delta)
}

func (t *sampleTable) movieDuration() uint64 {
	if t.timescale == 0 {
		return 0
	}
	return t.mediaDuration() * movieTimescale / uint64(t.timescale)
}

func (t *sampleTable) maxOffset() uint64 {
	if len(t.offsets) == 0 {
		return 0
	}
	return t.offsets[len(t.offsets)-1]
}

// buildMoov renders the movie box. co64 selects 64-bit chunk offsets.
func buildMoov(tables []*sampleTable, co64 bool) []byte {
	var duration uint64
	for _, t := range tables {
		if d := t.movieDuration(); d > duration {
			duration = d
		}
	}
	children := [][]byte{mvhd(duration, uint32(len(tables)+1))}
	for _, t := range tables {
		children = append(children, trak(t, co64))
	}
	return box("moov", children...)
}

func mvhd(duration uint64, nextTrack uint32) []byte {
	w := &bw{}
	w.u32(0)
	w.u32(0)
	w.u32(movieTimescale)
	w.u32(uint32(duration))
	w.u32(0x00010000)
	w.u16(0x0100)
	w.zero(10)
	w.unityMatrix()
	w.zero(24)
	w.u32(nextTrack)
	return fullBox("mvhd", 0, 0, w.b)
}

func trak(t *sampleTable, co64 bool) []byte {
	return box("trak", tkhd(t), box("mdia", mdhd(t), hdlr(t), minf(t, co64)))
}

func tkhd(t *sampleTable) []byte {
	w := &bw{}
	w.u32(0)
	w.u32(0)
	w.u32(t.id)
	w.u32(0)
	w.u32(uint32(t.movieDuration()))
	w.zero(8)
	w.u16(0)
	w.u16(0)
	if t.info.Kind == mux.KindAudio {
		w.u16(0x0100)
	} else {
		w.u16(0)
	}
	w.u16(0)
	w.unityMatrix()
	if t.info.Kind == mux.KindVideo {
		w.u32(uint32(t.info.Width) << 16)
		w.u32(uint32(t.info.Height) << 16)
	} else {
		w.u32(0)
		w.u32(0)
	}
	// enabled, in movie, in preview
	return fullBox("tkhd", 0, 0x7, w.b)
}

func mdhd(t *sampleTable) []byte {
	w := &bw{}
	w.u32(0)
	w.u32(0)
	w.u32(t.timescale)
	w.u32(uint32(t.mediaDuration()))
	w.u16(language.PackISO3(t.info.Language))
	w.u16(0)
	return fullBox("mdhd", 0, 0, w.b)
}

func hdlr(t *sampleTable) []byte {
	handler, name := "vide", "VideoHandler"
	if t.info.Kind == mux.KindAudio {
		handler, name = "soun", "SoundHandler"
	}
	w := &bw{}
	w.u32(0)
	w.raw([]byte(handler))
	w.zero(12)
	w.raw(append([]byte(name), 0))
	return fullBox("hdlr", 0, 0, w.b)
}

func minf(t *sampleTable, co64 bool) []byte {
	var header []byte
	if t.info.Kind == mux.KindVideo {
		header = fullBox("vmhd", 0, 1, make([]byte, 8))
	} else {
		header = fullBox("smhd", 0, 0, make([]byte, 4))
	}
	dref := fullBox("dref", 0, 0, []byte{0, 0, 0, 1}, fullBox("url ", 0, 1))
	return box("minf", header, box("dinf", dref), stbl(t, co64))
}

func stbl(t *sampleTable, co64 bool) []byte {
	children := [][]byte{stsd(t), stts(t), stsc(t), stsz(t), chunkOffsets(t, co64)}
	if t.info.Kind == mux.KindVideo {
		children = append(children, stss(t))
	}
	return box("stbl", children...)
}

func stsd(t *sampleTable) []byte {
	var entry []byte
	if t.info.Kind == mux.KindVideo {
		entry = visualEntry(t)
	} else {
		entry = audioEntry(t)
	}
	return fullBox("stsd", 0, 0, []byte{0, 0, 0, 1}, entry)
}

func visualEntry(t *sampleTable) []byte {
	w := &bw{}
	w.zero(6)
	w.u16(1)
	w.zero(16)
	w.u16(uint16(t.info.Width))
	w.u16(uint16(t.info.Height))
	w.u32(0x00480000)
	w.u32(0x00480000)
	w.u32(0)
	w.u16(1)
	w.zero(32)
	w.u16(0x0018)
	w.u16(0xFFFF)
	if t.info.VideoCodec == title.VideoH264 {
		if len(t.info.Config) > 0 {
			return box("avc1", w.b, box("avcC", t.info.Config))
		}
		return box("avc1", w.b)
	}
	return box("mp4v", w.b, esds(t, objectMPEG4Visual, 4))
}

func audioEntry(t *sampleTable) []byte {
	channels := t.info.Channels
	if channels <= 0 {
		channels = 2
	}
	w := &bw{}
	w.zero(6)
	w.u16(1)
	w.zero(8)
	w.u16(uint16(channels))
	w.u16(16)
	w.u16(0)
	w.u16(0)
	w.u32(uint32(t.info.SampleRate) << 16)
	object := byte(objectMP3)
	if t.info.AudioCodec == title.AudioAAC {
		object = objectAAC
	}
	return box("mp4a", w.b, esds(t, object, 5))
}

// esds builds an ES descriptor box with decoder config and optional
// decoder specific info.
func esds(t *sampleTable, object byte, streamType byte) []byte {
	dc := &bw{}
	dc.u8(object)
	dc.u8(streamType<<2 | 1)
	dc.raw([]byte{0, 0, 0})
	bitrate := uint32(t.info.Bitrate * 1000)
	dc.u32(bitrate)
	dc.u32(bitrate)
	if len(t.info.Config) > 0 {
		dc.raw(descriptor(0x05, t.info.Config))
	}

	es := &bw{}
	es.u16(uint16(t.id))
	es.u8(0)
	es.raw(descriptor(0x04, dc.b))
	es.raw(descriptor(0x06, []byte{0x02}))
	return fullBox("esds", 0, 0, descriptor(0x03, es.b))
}

// descriptor encodes an MPEG-4 descriptor with a 4-byte expandable length.
func descriptor(tag byte, payload []byte) []byte {
	n := len(payload)
	out := []byte{tag, byte(n>>21) | 0x80, byte(n>>14) | 0x80, byte(n>>7) | 0x80, byte(n) & 0x7F}
	return append(out, payload...)
}

func stts(t *sampleTable) []byte {
	w := &bw{}
	if len(t.sizes) == 0 {
		w.u32(0)
	} else {
		w.u32(1)
		w.u32(uint32(len(t.sizes)))
		w.u32(t.delta)
	}
	return fullBox("stts", 0, 0, w.b)
}

// stsc maps every chunk to a single sample.
func stsc(t *sampleTable) []byte {
	w := &bw{}
	if len(t.sizes) == 0 {
		w.u32(0)
	} else {
		w.u32(1)
		w.u32(1)
		w.u32(1)
		w.u32(1)
	}
	return fullBox("stsc", 0, 0, w.b)
}

func stsz(t *sampleTable) []byte {
	w := &bw{}
	w.u32(0)
	w.u32(uint32(len(t.sizes)))
	for _, s := range t.sizes {
		w.u32(s)
	}
	return fullBox("stsz", 0, 0, w.b)
}

func chunkOffsets(t *sampleTable, co64 bool) []byte {
	w := &bw{}
	w.u32(uint32(len(t.offsets)))
	for _, off := range t.offsets {
		if co64 {
			w.u64(off)
		} else {
			w.u32(uint32(off))
		}
	}
	if co64 {
		return fullBox("co64", 0, 0, w.b)
	}
	return fullBox("stco", 0, 0, w.b)
}

func stss(t *sampleTable) []byte {
	w := &bw{}
	w.u32(uint32(len(t.sync)))
	for _, n := range t.sync {
		w.u32(n)
	}
	return fullBox("stss", 0, 0, w.b)
}
