package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ripline/internal/buffer"
	"ripline/internal/fifo"
	"ripline/internal/stage"
	"ripline/internal/worker"
)

func TestClampSize(t *testing.T) {
	cases := []struct{ in, want int }{
		{1, 1},
		{4, 4},
		{8, 8},
		{64, 8},
	}
	for _, tc := range cases {
		if got := worker.ClampSize(tc.in); got != tc.want {
			t.Fatalf("ClampSize(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if got := worker.ClampSize(0); got < 1 || got > worker.MaxWorkers {
		t.Fatalf("ClampSize(0) = %d out of range", got)
	}
}

// concurrencyProbe records the maximum number of concurrent Work calls.
type concurrencyProbe struct {
	name    string
	active  atomic.Int32
	maxSeen atomic.Int32
	calls   atomic.Int64
}

func (s *concurrencyProbe) Name() string { return s.name }

func (s *concurrencyProbe) Work(context.Context) (stage.Result, error) {
	n := s.active.Add(1)
	for {
		cur := s.maxSeen.Load()
		if n <= cur || s.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(100 * time.Microsecond)
	s.active.Add(-1)
	s.calls.Add(1)
	return stage.Progress, nil
}

func (s *concurrencyProbe) Close() error { return nil }

func TestStageNeverRunsConcurrently(t *testing.T) {
	probes := []*concurrencyProbe{{name: "a"}, {name: "b"}, {name: "c"}}
	handles := make([]*stage.Handle, 0, len(probes))
	for _, p := range probes {
		handles = append(handles, stage.NewHandle(p))
	}
	pool := worker.NewPool(handles, worker.Options{Size: 6})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	pool.Stop()

	for _, p := range probes {
		if p.maxSeen.Load() > 1 {
			t.Fatalf("stage %s ran concurrently (%d)", p.name, p.maxSeen.Load())
		}
		if p.calls.Load() == 0 {
			t.Fatalf("stage %s never ran", p.name)
		}
	}
}

func TestPipelineDeliversEveryBuffer(t *testing.T) {
	const total = 500
	src := fifo.New(1024)
	mid := fifo.New(1)
	out := fifo.New(1)

	pass := func(b *buffer.Buffer) ([]*buffer.Buffer, error) { return []*buffer.Buffer{b}, nil }
	handles := []*stage.Handle{
		stage.NewHandle(stage.NewTransform("first", src, mid, pass, nil)),
		stage.NewHandle(stage.NewTransform("second", mid, out, pass, nil)),
	}
	pool := worker.NewPool(handles, worker.Options{Size: 4, Idle: time.Millisecond})

	for i := 0; i < total; i++ {
		b := buffer.New(0)
		b.PTS = int64(i)
		if !src.Push(b) {
			t.Fatalf("push %d failed", i)
		}
	}
	src.Die()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer pool.Stop()

	for i := 0; i < total; i++ {
		b, err := out.PopWait(ctx)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if b.PTS != int64(i) {
			t.Fatalf("buffer %d arrived as %d", i, b.PTS)
		}
		b.Release()
	}
	if _, err := out.PopWait(ctx); !errors.Is(err, fifo.ErrDrained) {
		t.Fatalf("expected drained output, got %v", err)
	}
}

type brokenStage struct{}

func (brokenStage) Name() string { return "broken" }
func (brokenStage) Work(context.Context) (stage.Result, error) {
	return stage.NoProgress, errors.New("encoder exploded")
}
func (brokenStage) Close() error { return nil }

func TestFatalErrorReportedOnce(t *testing.T) {
	var mu sync.Mutex
	var reports []string
	pool := worker.NewPool([]*stage.Handle{stage.NewHandle(brokenStage{})}, worker.Options{
		Size: 3,
		Idle: time.Millisecond,
		OnFatal: func(name string, err error) {
			mu.Lock()
			reports = append(reports, name+": "+err.Error())
			mu.Unlock()
		},
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	pool.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 1 || reports[0] != "broken: encoder exploded" {
		t.Fatalf("reports = %v", reports)
	}
}

func TestPausedPoolDoesNotRun(t *testing.T) {
	gate := stage.NewGate()
	gate.Pause()
	probe := &concurrencyProbe{name: "paused"}
	pool := worker.NewPool([]*stage.Handle{stage.NewHandle(probe)}, worker.Options{Size: 2, Gate: gate})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if probe.calls.Load() != 0 {
		t.Fatal("stage ran while paused")
	}
	gate.Resume()
	time.Sleep(20 * time.Millisecond)
	pool.Stop()
	if probe.calls.Load() == 0 {
		t.Fatal("stage did not run after resume")
	}
}

func TestStartTwiceFails(t *testing.T) {
	pool := worker.NewPool(nil, worker.Options{Size: 1})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer pool.Stop()
	if err := pool.Start(context.Background()); err == nil {
		t.Fatal("expected error on second start")
	}
}
