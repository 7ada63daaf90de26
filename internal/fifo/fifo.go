package fifo

import (
	"context"
	"errors"
	"sync"

	"ripline/internal/buffer"
)

var (
	// ErrDead is returned by PushWait once the fifo no longer accepts buffers.
	ErrDead = errors.New("fifo is dead")
	// ErrDrained is returned by PopWait once the fifo is dead and empty.
	ErrDrained = errors.New("fifo is drained")
)

// Fifo is a bounded ring of buffers with capacity+1 slots.
type Fifo struct {
	mu       sync.Mutex
	slots    []*buffer.Buffer
	capacity int
	push     int
	pop      int
	dead     bool
	closed   bool
	changed  chan struct{}
	notify   func()
	name     string
}

// Option customizes a Fifo.
type Option func(*Fifo)

// WithNotify registers a callback invoked after every push, pop or death.
// The callback runs outside the fifo lock.
func WithNotify(fn func()) Option {
	return func(f *Fifo) {
		f.notify = fn
	}
}

// WithName labels the fifo for logs.
func WithName(name string) Option {
	return func(f *Fifo) {
		f.name = name
	}
}

// New constructs a fifo holding at most capacity buffers.
func New(capacity int, opts ...Option) *Fifo {
	if capacity < 1 {
		capacity = 1
	}
	f := &Fifo{
		slots:    make([]*buffer.Buffer, capacity+1),
		capacity: capacity,
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the fifo label.
func (f *Fifo) Name() string {
	return f.name
}

// Capacity returns the usable capacity.
func (f *Fifo) Capacity() int {
	return f.capacity
}

// Size returns the number of resident buffers.
func (f *Fifo) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sizeLocked()
}

func (f *Fifo) sizeLocked() int {
	n := len(f.slots)
	return (n + f.push - f.pop) % n
}

// Push appends b when there is room. It returns false, leaving ownership with
// the caller, when the fifo is full or dead.
func (f *Fifo) Push(b *buffer.Buffer) bool {
	if b == nil {
		return false
	}
	f.mu.Lock()
	if f.dead || f.sizeLocked() >= f.capacity {
		f.mu.Unlock()
		return false
	}
	f.slots[f.push] = b
	f.push = (f.push + 1) % len(f.slots)
	f.signalLocked()
	f.mu.Unlock()
	f.fireNotify()
	return true
}

// Pop removes and returns the oldest buffer, or nil when empty. Buffers pushed
// before Die remain poppable.
func (f *Fifo) Pop() *buffer.Buffer {
	f.mu.Lock()
	if f.closed || f.sizeLocked() == 0 {
		f.mu.Unlock()
		return nil
	}
	b := f.slots[f.pop]
	f.slots[f.pop] = nil
	f.pop = (f.pop + 1) % len(f.slots)
	f.signalLocked()
	f.mu.Unlock()
	f.fireNotify()
	return b
}

// Head reports the position of the oldest buffer without removing it.
func (f *Fifo) Head() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sizeLocked() == 0 {
		return 0, false
	}
	return f.slots[f.pop].Position, true
}

// Die marks end of stream. Further pushes fail; pops continue until empty.
func (f *Fifo) Die() {
	f.mu.Lock()
	if f.dead {
		f.mu.Unlock()
		return
	}
	f.dead = true
	f.signalLocked()
	f.mu.Unlock()
	f.fireNotify()
}

// Dead reports whether Die has been called.
func (f *Fifo) Dead() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dead
}

// Drained reports whether the fifo is dead and empty.
func (f *Fifo) Drained() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dead && f.sizeLocked() == 0
}

// Close kills the fifo and releases every resident buffer exactly once.
func (f *Fifo) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	var resident []*buffer.Buffer
	for f.sizeLocked() > 0 {
		resident = append(resident, f.slots[f.pop])
		f.slots[f.pop] = nil
		f.pop = (f.pop + 1) % len(f.slots)
	}
	f.dead = true
	f.closed = true
	f.signalLocked()
	f.mu.Unlock()

	for _, b := range resident {
		b.Release()
	}
	f.fireNotify()
}

// Changed returns a channel closed on the next state change.
func (f *Fifo) Changed() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed
}

// PushWait pushes b, waiting for room. It returns ErrDead if the fifo dies
// first; ownership of b then stays with the caller.
func (f *Fifo) PushWait(ctx context.Context, b *buffer.Buffer) error {
	for {
		f.mu.Lock()
		if f.dead {
			f.mu.Unlock()
			return ErrDead
		}
		if f.sizeLocked() < f.capacity {
			f.slots[f.push] = b
			f.push = (f.push + 1) % len(f.slots)
			f.signalLocked()
			f.mu.Unlock()
			f.fireNotify()
			return nil
		}
		wait := f.changed
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// PopWait waits for a buffer. It returns ErrDrained once the fifo is dead and
// empty.
func (f *Fifo) PopWait(ctx context.Context) (*buffer.Buffer, error) {
	for {
		if b := f.Pop(); b != nil {
			return b, nil
		}
		f.mu.Lock()
		if f.sizeLocked() > 0 {
			f.mu.Unlock()
			continue
		}
		if f.dead {
			f.mu.Unlock()
			return nil, ErrDrained
		}
		wait := f.changed
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// WaitHead waits until a buffer is available and returns its position without
// removing it. It returns ErrDrained once the fifo is dead and empty.
func (f *Fifo) WaitHead(ctx context.Context) (float64, error) {
	for {
		f.mu.Lock()
		if f.sizeLocked() > 0 {
			pos := f.slots[f.pop].Position
			f.mu.Unlock()
			return pos, nil
		}
		if f.dead {
			f.mu.Unlock()
			return 0, ErrDrained
		}
		wait := f.changed
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-wait:
		}
	}
}

func (f *Fifo) signalLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *Fifo) fireNotify() {
	if f.notify != nil {
		f.notify()
	}
}
