package mux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ripline/internal/buffer"
	"ripline/internal/errcode"
	"ripline/internal/fifo"
	"ripline/internal/logging"
	"ripline/internal/stage"
)

// HeaderSource lets a container consume leading buffers of a track (such as
// Vorbis header packets) before interleaving starts.
type HeaderSource interface {
	Next(ctx context.Context, track int) (*buffer.Buffer, error)
}

// Container writes one output file.
type Container interface {
	// Start writes the file headers.
	Start(ctx context.Context, src HeaderSource) error
	// Write appends one buffer of the given track. The caller keeps ownership.
	Write(track int, b *buffer.Buffer) error
	// Finish completes the file after the last buffer.
	Finish() error
	// Abort stops without finalizing. Outputs that never got headers are
	// removed.
	Abort() error
	HeadersWritten() bool
}

// Sizer is implemented by containers that know their current file size.
type Sizer interface {
	Size() int64
}

// ErrNoData is returned by Run when every track drained before any buffer
// arrived.
var ErrNoData = errors.New("no data to mux")

// Options configures a Muxer.
type Options struct {
	Gate   *stage.Gate
	Logger *slog.Logger
	// OnWrite observes every written buffer.
	OnWrite func(track int, b *buffer.Buffer)
}

// Muxer interleaves tracks by buffer position into a Container.
type Muxer struct {
	container Container
	tracks    []*Track
	opts      Options
	logger    *slog.Logger

	heads  []*buffer.Buffer
	active []bool
}

// New builds a muxer. tracks[0] is the video track.
func New(c Container, tracks []*Track, opts Options) *Muxer {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	active := make([]bool, len(tracks))
	for i := range active {
		active[i] = true
	}
	return &Muxer{
		container: c,
		tracks:    tracks,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "muxer"),
		heads:     make([]*buffer.Buffer, len(tracks)),
		active:    active,
	}
}

// Tracks returns the muxed tracks.
func (m *Muxer) Tracks() []*Track {
	return m.tracks
}

// Run muxes until every track is drained or ctx is cancelled.
func (m *Muxer) Run(ctx context.Context) error {
	defer m.releaseHeads()

	for {
		if err := m.opts.Gate.Wait(ctx); err != nil {
			return m.interrupt(err)
		}
		if err := m.fill(ctx); err != nil {
			return m.interrupt(err)
		}
		if !m.container.HeadersWritten() {
			if !m.anyHead() {
				m.logger.Info("all tracks drained before first buffer",
					logging.String(logging.FieldEventType, "mux_empty"))
				if err := m.container.Abort(); err != nil {
					return errcode.Wrap(errcode.MuxWriteFailed, "muxer", "abort", err)
				}
				return ErrNoData
			}
			if err := m.container.Start(ctx, headerSource{m}); err != nil {
				if ctx.Err() != nil {
					return m.interrupt(ctx.Err())
				}
				m.abort()
				return errcode.Wrap(errcode.MuxWriteFailed, "muxer", "write headers", err)
			}
			continue
		}

		next := m.pick()
		if next < 0 {
			break
		}
		b := m.heads[next]
		m.heads[next] = nil
		if err := m.container.Write(next, b); err != nil {
			b.Release()
			m.salvage()
			return errcode.Wrap(errcode.MuxWriteFailed, "muxer", fmt.Sprintf("write track %d", next), err)
		}
		m.tracks[next].frames++
		m.tracks[next].bytes += int64(b.Size())
		if m.opts.OnWrite != nil {
			m.opts.OnWrite(next, b)
		}
		b.Release()
	}

	if err := m.container.Finish(); err != nil {
		return errcode.Wrap(errcode.MuxWriteFailed, "muxer", "finish", err)
	}
	m.logSummary()
	return nil
}

// fill buffers one head per active track, blocking until each track has data
// or is drained.
func (m *Muxer) fill(ctx context.Context) error {
	for i, t := range m.tracks {
		if !m.active[i] || m.heads[i] != nil {
			continue
		}
		b, err := t.Fifo.PopWait(ctx)
		if errors.Is(err, fifo.ErrDrained) {
			m.active[i] = false
			continue
		}
		if err != nil {
			return err
		}
		m.heads[i] = b
	}
	return nil
}

// pick returns the track whose head has the lowest position; earlier tracks
// win ties.
func (m *Muxer) pick() int {
	best := -1
	for i, b := range m.heads {
		if b == nil {
			continue
		}
		if best < 0 || b.Position < m.heads[best].Position {
			best = i
		}
	}
	return best
}

func (m *Muxer) anyHead() bool {
	return m.pick() >= 0
}

// interrupt finalizes what has been written so far when the run is cut short.
func (m *Muxer) interrupt(cause error) error {
	m.salvage()
	return cause
}

// salvage finishes a started output so it stays readable up to the last
// completed buffer. Outputs without headers are aborted.
func (m *Muxer) salvage() {
	if !m.container.HeadersWritten() {
		m.abort()
		return
	}
	if err := m.container.Finish(); err != nil {
		logging.WarnWithContext(m.logger, "finalize after interrupt failed", "mux_finalize_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "output may be missing its index"),
			logging.String(logging.FieldImpact, "partial output file"),
		)
	}
}

func (m *Muxer) abort() {
	if err := m.container.Abort(); err != nil {
		logging.WarnWithContext(m.logger, "abort output failed", "mux_abort_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the partial output by hand"),
			logging.String(logging.FieldImpact, "unfinished output may remain on disk"),
		)
	}
}

func (m *Muxer) releaseHeads() {
	for i, b := range m.heads {
		if b != nil {
			b.Release()
			m.heads[i] = nil
		}
	}
}

func (m *Muxer) logSummary() {
	var frames, payload int64
	for i, t := range m.tracks {
		frames += t.frames
		payload += t.bytes
		m.logger.Info("track muxed",
			logging.Int(logging.FieldTrack, i),
			logging.String("kind", t.Info.Kind.String()),
			logging.Int64("frames", t.frames),
			logging.Int64("bytes", t.bytes),
		)
	}
	sizer, ok := m.container.(Sizer)
	if !ok || frames == 0 {
		return
	}
	overhead := float64(sizer.Size()-payload) / float64(frames)
	m.logger.Info("mux complete",
		logging.Int64("file_bytes", sizer.Size()),
		logging.Float64("overhead_per_frame", overhead),
	)
}

type headerSource struct {
	m *Muxer
}

// Next hands out the buffered head first so no data is skipped.
func (s headerSource) Next(ctx context.Context, track int) (*buffer.Buffer, error) {
	m := s.m
	if track < 0 || track >= len(m.tracks) {
		return nil, fmt.Errorf("track %d out of range", track)
	}
	if b := m.heads[track]; b != nil {
		m.heads[track] = nil
		return b, nil
	}
	if !m.active[track] {
		return nil, fifo.ErrDrained
	}
	b, err := m.tracks[track].Fifo.PopWait(ctx)
	if errors.Is(err, fifo.ErrDrained) {
		m.active[track] = false
	}
	return b, err
}
