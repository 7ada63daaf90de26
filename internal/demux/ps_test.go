package demux_test

import (
	"bytes"
	"errors"
	"testing"

	"ripline/internal/demux"
	"ripline/internal/errcode"
	"ripline/internal/testsupport"
)

func TestParsePackExtractsVideoAndAC3(t *testing.T) {
	pack := testsupport.BuildPack(true,
		testsupport.PES{StreamID: 0xE0, PTS: 3600, Payload: []byte("video")},
		testsupport.PES{StreamID: 0xBD, Sub: 0x80, PTS: 3000, Payload: []byte("ac3-a")},
		testsupport.PES{StreamID: 0xC0, PTS: -1, Payload: []byte("mpeg audio ignored")},
		testsupport.PES{StreamID: 0xBD, Sub: 0x81, PTS: -1, Payload: []byte("ac3-b")},
	)
	packets, err := demux.ParsePack(pack)
	if err != nil {
		t.Fatalf("ParsePack: %v", err)
	}
	if len(packets) != 3 {
		t.Fatalf("got %d packets, want 3", len(packets))
	}
	want := []struct {
		id      int
		pts     int64
		payload string
	}{
		{0xE0, 3600, "video"},
		{0x80BD, 3000, "ac3-a"},
		{0x81BD, -1, "ac3-b"},
	}
	for i, w := range want {
		p := packets[i]
		if p.StreamID != w.id || p.PTS != w.pts || !bytes.Equal(p.Payload, []byte(w.payload)) {
			t.Fatalf("packet %d = {%#x %d %q}, want {%#x %d %q}", i, p.StreamID, p.PTS, p.Payload, w.id, w.pts, w.payload)
		}
	}
}

func TestParsePackLargePTS(t *testing.T) {
	const pts = int64(1)<<32 | 0x12345678
	packets, err := demux.ParsePack(testsupport.BuildPack(false, testsupport.PES{StreamID: 0xE0, PTS: pts, Payload: []byte{1}}))
	if err != nil {
		t.Fatal(err)
	}
	if packets[0].PTS != pts {
		t.Fatalf("PTS = %#x, want %#x", packets[0].PTS, pts)
	}
}

func TestParsePackSyncLost(t *testing.T) {
	garbage := make([]byte, demux.PackSize)
	_, err := demux.ParsePack(garbage)
	if !errors.Is(err, errcode.ErrSyncLost) {
		t.Fatalf("err = %v, want sync lost", err)
	}
	if errcode.CodeOf(err) != errcode.SyncLost {
		t.Fatalf("code = %v", errcode.CodeOf(err))
	}
}

func TestParsePackOverrunReported(t *testing.T) {
	pack := testsupport.BuildPack(false, testsupport.PES{StreamID: 0xE0, PTS: -1, Payload: []byte("abc")})
	// Corrupt the PES length so it runs past the pack.
	pack[18] = 0xFF
	pack[19] = 0xFF
	if _, err := demux.ParsePack(pack); errcode.CodeOf(err) != errcode.SyncLost {
		t.Fatalf("expected sync lost, got %v", err)
	}
}

func TestProbeFindsStreams(t *testing.T) {
	var src bytes.Buffer
	src.Write(testsupport.BuildPack(true, testsupport.PES{StreamID: 0xBD, Sub: 0x81, PTS: 9000, Payload: []byte("a")}))
	src.Write(make([]byte, demux.PackSize))
	src.Write(testsupport.BuildPack(false,
		testsupport.PES{StreamID: 0xE0, PTS: 4500, Payload: []byte("v")},
		testsupport.PES{StreamID: 0xBD, Sub: 0x80, PTS: 4600, Payload: []byte("b")},
	))
	src.Write(testsupport.BuildPack(false, testsupport.PES{StreamID: 0xBD, Sub: 0x81, PTS: 9100, Payload: []byte("a")}))

	res, err := demux.Probe(&src, 100)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !res.Video {
		t.Fatal("expected video")
	}
	if len(res.Audio) != 2 || res.Audio[0] != 0x81BD || res.Audio[1] != 0x80BD {
		t.Fatalf("audio = %#v", res.Audio)
	}
	if res.Packs != 4 {
		t.Fatalf("packs = %d", res.Packs)
	}
	if res.FirstPTS[0x81BD] != 9000 || res.FirstPTS[0xE0] != 4500 {
		t.Fatalf("first pts = %v", res.FirstPTS)
	}
}

func TestProbeHonorsLimit(t *testing.T) {
	var src bytes.Buffer
	for i := 0; i < 5; i++ {
		src.Write(testsupport.BuildPack(false, testsupport.PES{StreamID: 0xE0, PTS: -1, Payload: []byte("v")}))
	}
	res, err := demux.Probe(&src, 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Packs != 2 {
		t.Fatalf("packs = %d", res.Packs)
	}
}
