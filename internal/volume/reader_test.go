package volume_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ripline/internal/buffer"
	"ripline/internal/errcode"
	"ripline/internal/fifo"
	"ripline/internal/stage"
	"ripline/internal/testsupport"
	"ripline/internal/title"
	"ripline/internal/volume"
)

func writeTitle(t *testing.T, packs int) *title.Title {
	t.Helper()
	path := filepath.Join(t.TempDir(), "title.vob")
	testsupport.WriteProgramStream(t, path, packs, []byte{0x80}, 0)
	return &title.Title{Index: 1, Source: path, Length: int64(packs) * 2048}
}

func drain(f *fifo.Fifo) []*buffer.Buffer {
	var out []*buffer.Buffer
	for b := f.Pop(); b != nil; b = f.Pop() {
		out = append(out, b)
	}
	return out
}

func TestReaderSinglePass(t *testing.T) {
	ttl := writeTitle(t, 4)
	testsupport.AppendFile(t, ttl.Source, make([]byte, 100))
	out := fifo.New(16)

	r := &volume.Reader{Title: ttl, Out: out, Passes: 1}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Dead() {
		t.Fatal("expected output fifo to be dead after EOF")
	}
	bufs := drain(out)
	if len(bufs) != 4 {
		t.Fatalf("packs = %d, want 4 (partial tail dropped)", len(bufs))
	}
	for i, b := range bufs {
		if b.Size() != 2048 || b.Pass != buffer.PassSingle {
			t.Fatalf("pack %d size=%d pass=%d", i, b.Size(), b.Pass)
		}
		if want := float64(i) / 4; b.Position != want {
			t.Fatalf("pack %d position = %v, want %v", i, b.Position, want)
		}
	}
}

func TestReaderTwoPassPositions(t *testing.T) {
	ttl := writeTitle(t, 4)
	out := fifo.New(16)

	r := &volume.Reader{Title: ttl, Out: out, Passes: 2}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	bufs := drain(out)
	if len(bufs) != 8 {
		t.Fatalf("packs = %d, want 8", len(bufs))
	}
	for i, b := range bufs {
		wantPass := 1 + i/4
		if b.Pass != wantPass {
			t.Fatalf("pack %d pass = %d, want %d", i, b.Pass, wantPass)
		}
		if want := float64(i) / 8; b.Position != want {
			t.Fatalf("pack %d position = %v, want %v", i, b.Position, want)
		}
		if wantPass == 1 && b.Position >= 0.5 {
			t.Fatalf("pass 1 position %v escaped [0,0.5)", b.Position)
		}
	}
}

func TestReaderOpenFailure(t *testing.T) {
	out := fifo.New(4)
	r := &volume.Reader{Title: &title.Title{Source: filepath.Join(t.TempDir(), "missing.vob")}, Out: out}
	err := r.Run(context.Background())
	if !errors.Is(err, errcode.ErrOpenFailed) {
		t.Fatalf("err = %v, want open_failed", err)
	}
	if !out.Dead() {
		t.Fatal("expected output fifo to be dead after failure")
	}
}

func TestReaderStopsOnCancelAndDeath(t *testing.T) {
	t.Run("cancel", func(t *testing.T) {
		ttl := writeTitle(t, 8)
		out := fifo.New(1)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- (&volume.Reader{Title: ttl, Out: out}).Run(ctx) }()

		waitSize(t, out, 1)
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Run after cancel: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("reader did not stop after cancel")
		}
		if !out.Dead() {
			t.Fatal("expected fifo dead")
		}
	})

	t.Run("downstream death", func(t *testing.T) {
		ttl := writeTitle(t, 8)
		out := fifo.New(1)
		done := make(chan error, 1)
		go func() { done <- (&volume.Reader{Title: ttl, Out: out}).Run(context.Background()) }()

		waitSize(t, out, 1)
		out.Die()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Run after die: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("reader did not stop after fifo death")
		}
	})
}

func TestReaderWaitsOnGate(t *testing.T) {
	ttl := writeTitle(t, 3)
	out := fifo.New(16)
	gate := stage.NewGate()
	gate.Pause()
	done := make(chan error, 1)
	go func() { done <- (&volume.Reader{Title: ttl, Out: out, Gate: gate}).Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	if out.Size() != 0 {
		t.Fatalf("reader pushed %d packs while paused", out.Size())
	}
	gate.Resume()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not finish after resume")
	}
	if got := len(drain(out)); got != 3 {
		t.Fatalf("packs = %d, want 3", got)
	}
}

func waitSize(t *testing.T, f *fifo.Fifo, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.Size() < n {
		if time.Now().After(deadline) {
			t.Fatalf("fifo never reached size %d", n)
		}
		time.Sleep(time.Millisecond)
	}
}
