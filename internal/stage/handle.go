package stage

import (
	"context"
	"sync"
	"time"
)

// Stats summarizes a stage's activity.
type Stats struct {
	Name   string
	Runs   int64
	Busy   time.Duration
	Failed bool
	Detail string
}

// Handle wraps a Stage with the advisory lock workers contend on.
type Handle struct {
	stage Stage
	lock  sync.Mutex

	mu     sync.Mutex
	used   bool
	runs   int64
	busy   time.Duration
	failed error
	closed bool
}

// NewHandle wraps s.
func NewHandle(s Stage) *Handle {
	return &Handle{stage: s}
}

// Name returns the wrapped stage name.
func (h *Handle) Name() string {
	return h.stage.Name()
}

// Stage returns the wrapped stage.
func (h *Handle) Stage() Stage {
	return h.stage
}

// TryWork runs one unit of work if no other worker holds the stage. ran is
// false when the lock was contended or the stage is failed or closed.
func (h *Handle) TryWork(ctx context.Context) (ran bool, res Result, err error) {
	if !h.lock.TryLock() {
		return false, NoProgress, nil
	}
	defer h.lock.Unlock()

	h.mu.Lock()
	if h.failed != nil || h.closed {
		h.mu.Unlock()
		return false, NoProgress, nil
	}
	h.used = true
	h.mu.Unlock()

	start := time.Now()
	res, err = h.stage.Work(ctx)
	elapsed := time.Since(start)

	h.mu.Lock()
	h.runs++
	h.busy += elapsed
	if err != nil {
		h.failed = err
	}
	h.mu.Unlock()
	return true, res, err
}

// Used reports whether any worker has run the stage.
func (h *Handle) Used() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

// Stats returns a snapshot of the handle counters.
func (h *Handle) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Stats{Name: h.stage.Name(), Runs: h.runs, Busy: h.busy, Failed: h.failed != nil}
	if h.failed != nil {
		st.Detail = h.failed.Error()
	}
	return st
}

// Close waits for any in-flight Work call and closes the stage once.
func (h *Handle) Close() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	return h.stage.Close()
}
