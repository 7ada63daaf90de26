package volume_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ripline/internal/errcode"
	"ripline/internal/testsupport"
	"ripline/internal/title"
	"ripline/internal/volume"
)

func TestScanDirectoryWithVideoTS(t *testing.T) {
	root := t.TempDir()
	videoTS := filepath.Join(root, "video_ts")
	testsupport.WriteProgramStream(t, filepath.Join(videoTS, "VTS_01_1.VOB"), 10, []byte{0x80, 0x81}, 1800)
	testsupport.WriteFile(t, filepath.Join(videoTS, "VTS_02_1.VOB"), testsupport.BuildPack(true))
	testsupport.WriteFile(t, filepath.Join(videoTS, "VIDEO_TS.IFO"), []byte("ifo"))

	var calls [][2]int
	scanner := &volume.Scanner{}
	vol, err := scanner.Scan(context.Background(), root, func(index, total int) {
		calls = append(calls, [2]int{index, total})
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(calls) != 2 || calls[0] != [2]int{1, 2} || calls[1] != [2]int{2, 2} {
		t.Fatalf("progress calls = %v", calls)
	}
	if len(vol.Titles) != 1 {
		t.Fatalf("titles = %d, want 1", len(vol.Titles))
	}
	got := vol.Titles[0]
	if got.Index != 1 || got.Length != 10*2048 {
		t.Fatalf("title index=%d length=%d", got.Index, got.Length)
	}
	if got.InWidth != 720 || got.InHeight != 576 || got.Rate != 25 || got.RateBase != 1 {
		t.Fatalf("unexpected geometry %+v", got)
	}
	if len(got.Audios) != 2 {
		t.Fatalf("audios = %d, want 2", len(got.Audios))
	}
	for i, a := range got.Audios {
		if a.ID != title.AC3StreamID(i) {
			t.Fatalf("audio %d id = %#x", i, a.ID)
		}
		if a.StartDelay != 20*time.Millisecond {
			t.Fatalf("audio %d start delay = %v", i, a.StartDelay)
		}
	}
	if vol.Title(1) != got || vol.Title(2) != nil {
		t.Fatal("Title lookup mismatch")
	}
}

func TestScanSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movie.mpg")
	testsupport.WriteProgramStream(t, path, 3, nil, 0)

	vol, err := (&volume.Scanner{ProbePacks: 2}).Scan(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(vol.Titles) != 1 || vol.Titles[0].Source != path || len(vol.Titles[0].Audios) != 0 {
		t.Fatalf("unexpected volume %+v", vol.Titles)
	}
}

func TestScanReportsNoTitles(t *testing.T) {
	t.Run("empty directory", func(t *testing.T) {
		_, err := (&volume.Scanner{}).Scan(context.Background(), t.TempDir(), nil)
		if !errors.Is(err, volume.ErrNoTitles) {
			t.Fatalf("err = %v, want ErrNoTitles", err)
		}
	})

	t.Run("no video", func(t *testing.T) {
		dir := t.TempDir()
		testsupport.WriteFile(t, filepath.Join(dir, "a.vob"), testsupport.BuildPack(false))
		_, err := (&volume.Scanner{}).Scan(context.Background(), dir, nil)
		if !errors.Is(err, volume.ErrNoTitles) {
			t.Fatalf("err = %v, want ErrNoTitles", err)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := (&volume.Scanner{}).Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
		if errcode.CodeOf(err) != errcode.OpenFailed {
			t.Fatalf("err = %v, want open_failed", err)
		}
	})
}

func TestScanHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteProgramStream(t, filepath.Join(dir, "a.vob"), 2, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&volume.Scanner{}).Scan(ctx, dir, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.vob")); err != nil {
		t.Fatalf("source touched: %v", err)
	}
}
