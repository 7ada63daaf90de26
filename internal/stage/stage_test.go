package stage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ripline/internal/buffer"
	"ripline/internal/fifo"
	"ripline/internal/stage"
)

type blockingStage struct {
	entered chan struct{}
	release chan struct{}
	closed  bool
}

func (s *blockingStage) Name() string { return "blocking" }

func (s *blockingStage) Work(context.Context) (stage.Result, error) {
	s.entered <- struct{}{}
	<-s.release
	return stage.Progress, nil
}

func (s *blockingStage) Close() error {
	s.closed = true
	return nil
}

func TestHandleTryWorkIsExclusive(t *testing.T) {
	st := &blockingStage{entered: make(chan struct{}, 1), release: make(chan struct{})}
	h := stage.NewHandle(st)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ran, res, err := h.TryWork(context.Background())
		if !ran || res != stage.Progress || err != nil {
			t.Errorf("first TryWork = %v %v %v", ran, res, err)
		}
	}()
	<-st.entered

	ran, _, _ := h.TryWork(context.Background())
	if ran {
		t.Fatal("second worker must not run a locked stage")
	}
	close(st.release)
	wg.Wait()

	stats := h.Stats()
	if stats.Runs != 1 || stats.Busy <= 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if !h.Used() {
		t.Fatal("expected handle marked used")
	}
}

type failingStage struct{ calls int }

func (s *failingStage) Name() string { return "failing" }
func (s *failingStage) Work(context.Context) (stage.Result, error) {
	s.calls++
	return stage.NoProgress, errors.New("boom")
}
func (s *failingStage) Close() error { return nil }

func TestHandleStopsRunningFailedStage(t *testing.T) {
	st := &failingStage{}
	h := stage.NewHandle(st)
	if _, _, err := h.TryWork(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	ran, _, err := h.TryWork(context.Background())
	if ran || err != nil {
		t.Fatalf("failed stage ran again: ran=%v err=%v", ran, err)
	}
	if st.calls != 1 {
		t.Fatalf("calls = %d", st.calls)
	}
	if stats := h.Stats(); !stats.Failed || stats.Detail != "boom" {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestHandleCloseOnce(t *testing.T) {
	st := &blockingStage{}
	h := stage.NewHandle(st)
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if !st.closed {
		t.Fatal("expected stage closed")
	}
	if ran, _, _ := h.TryWork(context.Background()); ran {
		t.Fatal("closed stage must not run")
	}
}

func TestTransformRetriesPendingAndPropagatesEnd(t *testing.T) {
	in := fifo.New(4)
	out := fifo.New(1)
	double := func(b *buffer.Buffer) ([]*buffer.Buffer, error) {
		second := buffer.New(0)
		second.CopyMeta(b)
		return []*buffer.Buffer{b, second}, nil
	}
	tr := stage.NewTransform("double", in, out, double, nil)
	ctx := context.Background()

	in.Push(buffer.New(1))
	in.Die()

	if res, err := tr.Work(ctx); err != nil || res != stage.Progress {
		t.Fatalf("first work = %v %v", res, err)
	}
	if tr.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", tr.Pending())
	}
	if res, _ := tr.Work(ctx); res != stage.NoProgress {
		t.Fatal("expected no progress while downstream full")
	}
	out.Pop().Release()
	if res, _ := tr.Work(ctx); res != stage.Progress {
		t.Fatal("expected progress after downstream drained")
	}
	if !out.Dead() || out.Size() != 1 {
		t.Fatalf("expected held output delivered and end propagated, dead=%v size=%d", out.Dead(), out.Size())
	}
	out.Pop().Release()
	if !out.Drained() {
		t.Fatal("expected output drained after end of stream")
	}
	if res, _ := tr.Work(ctx); res != stage.NoProgress {
		t.Fatal("expected no progress after end of stream")
	}
}

func TestTransformCloseReleasesPending(t *testing.T) {
	frees := 0
	hook := buffer.WithFreeHook(func(*buffer.Buffer) { frees++ })
	in := fifo.New(2)
	out := fifo.New(1)
	out.Push(buffer.New(0))
	tr := stage.NewTransform("hold", in, out, func(b *buffer.Buffer) ([]*buffer.Buffer, error) {
		return []*buffer.Buffer{b}, nil
	}, nil)
	in.Push(buffer.New(0, hook))
	tr.Work(context.Background())
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if frees != 1 {
		t.Fatalf("frees = %d", frees)
	}
}

func TestGateWaitBlocksUntilResume(t *testing.T) {
	g := stage.NewGate()
	if err := g.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !g.Pause() || g.Pause() {
		t.Fatal("pause should succeed exactly once")
	}
	done := make(chan struct{})
	go func() {
		_ = g.Wait(context.Background())
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("wait returned while paused")
	case <-time.After(20 * time.Millisecond):
	}
	if !g.Resume() {
		t.Fatal("resume failed")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after resume")
	}
}

func TestGateWaitHonorsContext(t *testing.T) {
	g := stage.NewGate()
	g.Pause()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
