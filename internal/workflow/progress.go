package workflow

import (
	"time"

	"ripline/internal/logging"
)

// progress tracks rip timing. Suspended time is excluded by shifting the
// reference times forward on resume.
type progress struct {
	begin    time.Time
	pausedAt time.Time
	end      time.Time

	frames    int64
	fpsAt     time.Time
	fpsFrames int64
	sampler   *logging.ProgressSampler
}

func newProgress(now time.Time) progress {
	return progress{
		begin:   now,
		fpsAt:   now,
		sampler: logging.NewProgressSampler(5),
	}
}

func (p *progress) pause(now time.Time) {
	if p.pausedAt.IsZero() {
		p.pausedAt = now
	}
}

func (p *progress) resume(now time.Time) {
	if p.pausedAt.IsZero() {
		return
	}
	d := now.Sub(p.pausedAt)
	p.begin = p.begin.Add(d)
	p.fpsAt = p.fpsAt.Add(d)
	p.pausedAt = time.Time{}
}

func (p *progress) finish(now time.Time) {
	if !p.end.IsZero() {
		return
	}
	p.resume(now)
	p.end = now
}

func (p *progress) elapsed(now time.Time) time.Duration {
	if p.begin.IsZero() {
		return 0
	}
	switch {
	case !p.end.IsZero():
		now = p.end
	case !p.pausedAt.IsZero():
		now = p.pausedAt
	}
	if d := now.Sub(p.begin); d > 0 {
		return d
	}
	return 0
}

// frame counts one encoded video frame and returns a fresh instantaneous
// rate once at least a second has passed since the last sample.
func (p *progress) frame(now time.Time) (fps float64, sampled bool) {
	p.frames++
	window := now.Sub(p.fpsAt)
	if window < time.Second {
		return 0, false
	}
	fps = float64(p.frames-p.fpsFrames) / window.Seconds()
	p.fpsAt = now
	p.fpsFrames = p.frames
	return fps, true
}

func (p *progress) average(now time.Time) float64 {
	elapsed := p.elapsed(now)
	if elapsed <= 0 {
		return 0
	}
	return float64(p.frames) / elapsed.Seconds()
}

// eta extrapolates the remaining time from the elapsed time and position.
func eta(elapsed time.Duration, position float64) time.Duration {
	if position <= 0 || position >= 1 {
		return 0
	}
	return time.Duration(float64(elapsed) * (1 - position) / position)
}
