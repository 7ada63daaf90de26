package workflow

import (
	"testing"
	"time"
)

func TestProgressElapsedSkipsPauses(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newProgress(t0)

	p.pause(t0.Add(4 * time.Second))
	if got := p.elapsed(t0.Add(60 * time.Second)); got != 4*time.Second {
		t.Fatalf("elapsed while paused = %s, want 4s", got)
	}
	p.resume(t0.Add(10 * time.Second))
	if got := p.elapsed(t0.Add(12 * time.Second)); got != 6*time.Second {
		t.Fatalf("elapsed = %s, want 6s", got)
	}

	p.pause(t0.Add(20 * time.Second))
	p.finish(t0.Add(30 * time.Second))
	if got := p.elapsed(t0.Add(time.Hour)); got != 14*time.Second {
		t.Fatalf("elapsed after finish = %s, want 14s", got)
	}
}

func TestProgressFPSWindow(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newProgress(t0)

	for i := 1; i < 25; i++ {
		if _, ok := p.frame(t0.Add(time.Duration(i) * 40 * time.Millisecond)); ok {
			t.Fatalf("sampled early at frame %d", i)
		}
	}
	fps, ok := p.frame(t0.Add(time.Second))
	if !ok || fps != 25 {
		t.Fatalf("fps = %v (%v), want 25", fps, ok)
	}
	if avg := p.average(t0.Add(2 * time.Second)); avg != 12.5 {
		t.Fatalf("average = %v, want 12.5", avg)
	}

	// A pause shifts the window so suspended time does not dilute the rate.
	p.pause(t0.Add(time.Second))
	p.resume(t0.Add(11 * time.Second))
	for i := 0; i < 9; i++ {
		p.frame(t0.Add(11*time.Second + time.Duration(i)*100*time.Millisecond))
	}
	fps, ok = p.frame(t0.Add(12 * time.Second))
	if !ok || fps != 10 {
		t.Fatalf("fps after pause = %v (%v), want 10", fps, ok)
	}
}

func TestETA(t *testing.T) {
	tests := []struct {
		elapsed  time.Duration
		position float64
		want     time.Duration
	}{
		{10 * time.Second, 0.25, 30 * time.Second},
		{time.Minute, 0.5, time.Minute},
		{time.Minute, 0, 0},
		{time.Minute, 1, 0},
	}
	for _, tt := range tests {
		if got := eta(tt.elapsed, tt.position); got != tt.want {
			t.Errorf("eta(%s, %v) = %s, want %s", tt.elapsed, tt.position, got, tt.want)
		}
	}
}
