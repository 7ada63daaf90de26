package avi_test

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"ripline/internal/buffer"
	"ripline/internal/mux"
	"ripline/internal/mux/avi"
	"ripline/internal/title"
)

func testTracks(audios int) []mux.Info {
	tracks := []mux.Info{{
		Kind: mux.KindVideo, VideoCodec: title.VideoMPEG4,
		Width: 640, Height: 352, Rate: 25, RateBase: 1,
	}}
	for i := 0; i < audios; i++ {
		tracks = append(tracks, mux.Info{
			Kind: mux.KindAudio, AudioCodec: title.AudioMP3,
			SampleRate: 44100, Bitrate: 128, Channels: 2,
		})
	}
	return tracks
}

func u32(data []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(data[off:])
}

func payload(size int, key bool) *buffer.Buffer {
	b := buffer.New(size)
	for i := range b.Data {
		b.Data[i] = byte(i)
	}
	b.KeyFrame = key
	return b
}

func even(n int) int { return (n + 1) &^ 1 }

func TestHeaderLayout(t *testing.T) {
	for audios := 0; audios <= 2; audios++ {
		path := filepath.Join(t.TempDir(), "out.avi")
		m, err := avi.New(path, testTracks(audios), nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := m.Start(context.Background(), nil); err != nil {
			t.Fatal(err)
		}
		if err := m.Finish(); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(data[0:4]) != "RIFF" || string(data[8:12]) != "AVI " || string(data[20:24]) != "hdrl" {
			t.Fatalf("bad riff header: %q", data[:24])
		}
		if string(data[24:28]) != "avih" || u32(data, 28) != 56 {
			t.Fatalf("bad avih")
		}
		if u32(data, 32) != 40000 {
			t.Fatalf("microsec per frame = %d", u32(data, 32))
		}
		if u32(data, 56) != uint32(1+audios) {
			t.Fatalf("streams = %d", u32(data, 56))
		}
		if string(data[108:112]) != "vids" || string(data[112:116]) != "divx" {
			t.Fatalf("video strh = %q", data[108:116])
		}
		if string(data[164:168]) != "strf" || u32(data, 168) != 40 || string(data[188:192]) != "DX50" {
			t.Fatalf("video strf = %q", data[164:192])
		}
		for i := 0; i < audios; i++ {
			base := 212 + 114*i
			if string(data[base+12:base+16]) != "strh" || string(data[base+20:base+24]) != "auds" {
				t.Fatalf("audio %d strl = %q", i, data[base:base+24])
			}
			if u32(data, base+40) != 1152 || u32(data, base+44) != 44100 {
				t.Fatalf("audio %d scale/rate", i)
			}
			if string(data[base+76:base+80]) != "strf" || u32(data, base+80) != 30 {
				t.Fatalf("audio %d strf = %q", i, data[base+76:base+84])
			}
			if binary.LittleEndian.Uint16(data[base+84:]) != 0x55 {
				t.Fatalf("audio %d format tag", i)
			}
		}
		hdrl := int(u32(data, 16))
		if string(data[20+hdrl:24+hdrl]) != "JUNK" || int(u32(data, 24+hdrl))+28+hdrl != 2036 {
			t.Fatalf("junk does not fill to 2036 (audios=%d)", audios)
		}
		if string(data[2036:2040]) != "LIST" || string(data[2044:2048]) != "movi" {
			t.Fatalf("movi list at %q", data[2036:2048])
		}
	}
}

func TestSizeFieldsAfterEveryChunk(t *testing.T) {
	for _, tc := range []struct{ n, m int }{{0, 0}, {1, 0}, {0, 3}, {5, 7}, {12, 4}} {
		path := filepath.Join(t.TempDir(), "out.avi")
		m, err := avi.New(path, testTracks(2), nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := m.Start(context.Background(), nil); err != nil {
			t.Fatal(err)
		}
		sum := 0
		for i := 0; i < tc.n+tc.m; i++ {
			track, size := 0, 100+i
			if i >= tc.n {
				track = 1 + i%2
				size = 417 + i
			}
			b := payload(size, i%3 == 0)
			if err := m.Write(track, b); err != nil {
				t.Fatal(err)
			}
			b.Release()
			sum += 8 + even(size)

			data, _ := os.ReadFile(path)
			if got := u32(data, 4); got != uint32(2040+sum) {
				t.Fatalf("riff size = %d, want %d", got, 2040+sum)
			}
			if got := u32(data, 2040); got != uint32(4+sum) {
				t.Fatalf("movi size = %d, want %d", got, 4+sum)
			}
			if len(data) != 2048+sum {
				t.Fatalf("file size = %d, want %d", len(data), 2048+sum)
			}
		}
		if err := m.Finish(); err != nil {
			t.Fatal(err)
		}

		data, _ := os.ReadFile(path)
		entries := tc.n + tc.m
		if got := u32(data, 4); got != uint32(2040+sum+8+16*entries) {
			t.Fatalf("final riff size = %d", got)
		}
		if u32(data, 44)&avi.FlagHasIndex == 0 {
			t.Fatal("AVIF_HASINDEX not set")
		}
		if u32(data, 48) != uint32(tc.n) || u32(data, 140) != uint32(tc.n) {
			t.Fatalf("video frames = %d/%d, want %d", u32(data, 48), u32(data, 140), tc.n)
		}
		audioLen := u32(data, 264) + u32(data, 264+114)
		if audioLen != uint32(tc.m) {
			t.Fatalf("audio lengths = %d, want %d", audioLen, tc.m)
		}

		video, audio := readSamples(t, data)
		if video != tc.n || audio != tc.m {
			t.Fatalf("reader recovered %d video %d audio, want %d/%d", video, audio, tc.n, tc.m)
		}
	}
}

// readSamples walks the movi list and cross-checks every idx1 entry.
func readSamples(t *testing.T, data []byte) (video, audio int) {
	t.Helper()
	moviEnd := 2044 + int(u32(data, 2040))
	type chunk struct {
		tag    string
		offset int
		size   int
	}
	var chunks []chunk
	for off := 2048; off < moviEnd; {
		tag := string(data[off : off+4])
		size := int(u32(data, off+4))
		chunks = append(chunks, chunk{tag, off - 2044, size})
		switch tag {
		case "00dc":
			video++
		case "01wb", "02wb":
			audio++
		default:
			t.Fatalf("unexpected chunk %q at %d", tag, off)
		}
		off += 8 + even(size)
	}
	if string(data[moviEnd:moviEnd+4]) != "idx1" {
		t.Fatalf("idx1 missing at %d", moviEnd)
	}
	n := int(u32(data, moviEnd+4)) / 16
	if n != len(chunks) {
		t.Fatalf("index has %d entries for %d chunks", n, len(chunks))
	}
	for i := 0; i < n; i++ {
		e := moviEnd + 8 + 16*i
		if string(data[e:e+4]) != chunks[i].tag || int(u32(data, e+8)) != chunks[i].offset || int(u32(data, e+12)) != chunks[i].size {
			t.Fatalf("index entry %d mismatch", i)
		}
	}
	return video, audio
}

func TestKeyFrameFlagInIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avi")
	m, _ := avi.New(path, testTracks(0), nil)
	m.Start(context.Background(), nil)
	for _, key := range []bool{true, false} {
		b := payload(10, key)
		m.Write(0, b)
		b.Release()
	}
	m.Finish()
	data, _ := os.ReadFile(path)
	idx := 2048 + 2*18
	if u32(data, idx+8+4) != avi.IndexFlagKeyFrame || u32(data, idx+8+16+4) != 0 {
		t.Fatal("keyframe flags not recorded")
	}
}

func TestAbortBeforeHeadersDeletesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avi")
	m, err := avi.New(path, testTracks(1), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Abort(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("output still present: %v", err)
	}
}

func TestAbortAfterHeadersKeepsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avi")
	m, _ := avi.New(path, testTracks(1), nil)
	m.Start(context.Background(), nil)
	if err := m.Abort(); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() != avi.HeaderSize {
		t.Fatalf("partial output = %v, %v", info, err)
	}
}

func TestRejectsNonMP3Audio(t *testing.T) {
	tracks := testTracks(1)
	tracks[1].AudioCodec = title.AudioVorbis
	if _, err := avi.New(filepath.Join(t.TempDir(), "out.avi"), tracks, nil); err == nil {
		t.Fatal("expected vorbis rejection")
	}
}
