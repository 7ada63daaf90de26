package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"ripline/internal/logging"
	"ripline/internal/stage"
)

const (
	// MaxWorkers bounds the pool size regardless of CPU count.
	MaxWorkers = 8

	defaultIdle = 10 * time.Millisecond
)

// ClampSize maps a configured CPU count to a pool size. Zero or negative
// values use the detected CPU count.
func ClampSize(n int) int {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n < 1 {
		n = 1
	}
	if n > MaxWorkers {
		n = MaxWorkers
	}
	return n
}

// Options configures a Pool.
type Options struct {
	Size    int
	Idle    time.Duration
	Gate    *stage.Gate
	OnFatal func(stageName string, err error)
	Logger  *slog.Logger
}

// Pool drives a fixed set of stage handles with N workers.
type Pool struct {
	handles []*stage.Handle
	size    int
	idle    time.Duration
	gate    *stage.Gate
	onFatal func(string, error)
	logger  *slog.Logger

	mu      sync.Mutex
	cancels []context.CancelFunc
	dones   []chan struct{}
	wake    chan struct{}
	started bool
}

// NewPool builds a pool over handles. Handles must all exist before Start.
func NewPool(handles []*stage.Handle, opts Options) *Pool {
	idle := opts.Idle
	if idle <= 0 {
		idle = defaultIdle
	}
	return &Pool{
		handles: append([]*stage.Handle(nil), handles...),
		size:    ClampSize(opts.Size),
		idle:    idle,
		gate:    opts.Gate,
		onFatal: opts.OnFatal,
		logger:  logging.NewComponentLogger(opts.Logger, "worker-pool"),
		wake:    make(chan struct{}),
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Start launches the workers in index order.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("pool already started")
	}
	p.started = true
	for i := 0; i < p.size; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		p.cancels = append(p.cancels, cancel)
		p.dones = append(p.dones, done)
		go p.run(workerCtx, i, done)
	}
	p.logger.Debug("workers started",
		logging.Int("workers", p.size),
		logging.Int("stages", len(p.handles)),
	)
	return nil
}

// Stop cancels and joins the workers in reverse start order.
func (p *Pool) Stop() {
	p.mu.Lock()
	cancels := p.cancels
	dones := p.dones
	p.cancels = nil
	p.dones = nil
	p.mu.Unlock()

	for i := len(cancels) - 1; i >= 0; i-- {
		cancels[i]()
		<-dones[i]
	}
}

// Wake rouses idle workers. It is safe to call from fifo notify hooks.
func (p *Pool) Wake() {
	p.mu.Lock()
	close(p.wake)
	p.wake = make(chan struct{})
	p.mu.Unlock()
}

func (p *Pool) wakeChan() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wake
}

func (p *Pool) run(ctx context.Context, index int, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(p.idle)
	defer timer.Stop()

	for {
		if err := p.gate.Wait(ctx); err != nil {
			return
		}
		wake := p.wakeChan()
		progressed := false
		for _, h := range p.handles {
			if ctx.Err() != nil {
				return
			}
			ran, res, err := h.TryWork(ctx)
			if !ran {
				continue
			}
			if err != nil {
				p.fatal(index, h.Name(), err)
				continue
			}
			if res == stage.Progress {
				progressed = true
			}
		}
		if progressed {
			continue
		}

		timer.Reset(p.idle)
		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-timer.C:
		}
	}
}

func (p *Pool) fatal(index int, name string, err error) {
	p.logger.Error("stage failed",
		logging.String(logging.FieldStage, name),
		logging.Int("worker", index),
		logging.String(logging.FieldEventType, "stage_failed"),
		logging.Error(err),
	)
	if p.onFatal != nil {
		p.onFatal(name, err)
	}
}
