package stage

import (
	"context"

	"ripline/internal/buffer"
	"ripline/internal/fifo"
)

// TransformFunc consumes one input buffer and returns zero or more outputs.
// It owns in and must release it (or forward it as an output).
type TransformFunc func(in *buffer.Buffer) ([]*buffer.Buffer, error)

// Transform is a single input, single output stage. Outputs that do not fit
// downstream are held and retried on the next Work call. When the input is
// drained and nothing is pending, the output fifo is marked dead.
type Transform struct {
	name    string
	in      *fifo.Fifo
	out     *fifo.Fifo
	fn      TransformFunc
	onClose func() error
	pending []*buffer.Buffer
	ended   bool
}

// NewTransform builds a transform stage. onClose may be nil.
func NewTransform(name string, in, out *fifo.Fifo, fn TransformFunc, onClose func() error) *Transform {
	return &Transform{name: name, in: in, out: out, fn: fn, onClose: onClose}
}

// Name returns the stage name used in logs and errors.
func (t *Transform) Name() string { return t.name }

// Work handles at most one input buffer.
func (t *Transform) Work(ctx context.Context) (Result, error) {
	if t.ended {
		return NoProgress, nil
	}
	progress := t.flush()
	if len(t.pending) > 0 {
		return resultOf(progress), nil
	}

	in := t.in.Pop()
	if in == nil {
		if t.in.Drained() {
			t.out.Die()
			t.ended = true
			return Progress, nil
		}
		return resultOf(progress), nil
	}

	outs, err := t.fn(in)
	if err != nil {
		releaseAll(outs)
		return NoProgress, err
	}
	t.pending = append(t.pending, outs...)
	t.flush()
	return Progress, nil
}

// Pending returns the number of outputs waiting for downstream room.
func (t *Transform) Pending() int {
	return len(t.pending)
}

// Close releases held outputs and runs the close hook.
func (t *Transform) Close() error {
	releaseAll(t.pending)
	t.pending = nil
	if t.onClose != nil {
		return t.onClose()
	}
	return nil
}

func (t *Transform) flush() bool {
	moved := false
	for len(t.pending) > 0 {
		if !t.out.Push(t.pending[0]) {
			if t.out.Dead() {
				// Downstream is gone; nothing will consume these.
				releaseAll(t.pending)
				t.pending = t.pending[:0]
				return true
			}
			return moved
		}
		t.pending[0] = nil
		t.pending = t.pending[1:]
		moved = true
	}
	return moved
}

func releaseAll(bufs []*buffer.Buffer) {
	for _, b := range bufs {
		if b != nil {
			b.Release()
		}
	}
}

func resultOf(progress bool) Result {
	if progress {
		return Progress
	}
	return NoProgress
}
