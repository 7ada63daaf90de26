package demux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ripline/internal/buffer"
	"ripline/internal/fifo"
	"ripline/internal/logging"
	"ripline/internal/stage"
	"ripline/internal/title"
)

// Route sends one source stream to a fifo.
type Route struct {
	StreamID int
	Track    int
	Fifo     *fifo.Fifo
}

type pendingPacket struct {
	dst *fifo.Fifo
	buf *buffer.Buffer
}

// Stage demultiplexes packs from in to the routed fifos.
type Stage struct {
	in      *fifo.Fifo
	routes  map[int]Route
	logger  *slog.Logger
	onDelay func(streamID int, delay time.Duration)

	pending  []pendingPacket
	unknown  map[int]bool
	firstPTS map[int]int64
	ended    bool

	packs    int64
	syncLost int64
}

// Options configures a demux Stage.
type Options struct {
	Logger *slog.Logger
	// OnStartDelay is called once per audio route whose first PTS trails the
	// first video PTS.
	OnStartDelay func(streamID int, delay time.Duration)
}

// NewStage builds a demux stage.
func NewStage(in *fifo.Fifo, routes []Route, opts Options) *Stage {
	byID := make(map[int]Route, len(routes))
	for _, r := range routes {
		byID[r.StreamID] = r
	}
	return &Stage{
		in:       in,
		routes:   byID,
		logger:   logging.NewComponentLogger(opts.Logger, "demux"),
		onDelay:  opts.OnStartDelay,
		unknown:  make(map[int]bool),
		firstPTS: make(map[int]int64),
	}
}

func (s *Stage) Name() string { return "demux" }

// Work demultiplexes at most one pack.
func (s *Stage) Work(ctx context.Context) (stage.Result, error) {
	if s.ended {
		return stage.NoProgress, nil
	}
	progress := s.flush()
	if len(s.pending) > 0 {
		if progress {
			return stage.Progress, nil
		}
		return stage.NoProgress, nil
	}

	pack := s.in.Pop()
	if pack == nil {
		if s.in.Drained() {
			s.finish()
			return stage.Progress, nil
		}
		if progress {
			return stage.Progress, nil
		}
		return stage.NoProgress, nil
	}
	defer pack.Release()
	s.packs++

	packets, err := ParsePack(pack.Data)
	if err != nil {
		s.syncLost++
		attrs := []logging.Attr{
			logging.Int64("pack", s.packs),
			logging.Int64("sync_lost_total", s.syncLost),
			logging.Error(err),
		}
		if errors.Is(err, ErrSyncLost) {
			s.logger.Debug("pack skipped", logging.Args(attrs...)...)
		} else {
			logging.WarnWithContext(s.logger, "pack partially parsed", "demux_sync_lost",
				append(attrs, logging.String(logging.FieldImpact, "remaining packets in pack dropped"))...)
		}
	}

	for _, p := range packets {
		route, ok := s.routes[p.StreamID]
		if !ok {
			s.noteUnknown(p.StreamID)
			continue
		}
		s.noteFirstPTS(p)

		out := buffer.New(len(p.Payload))
		copy(out.Data, p.Payload)
		out.Position = pack.Position
		out.Pass = pack.Pass
		out.StreamID = p.StreamID
		out.Track = route.Track
		out.PTS = p.PTS
		s.pending = append(s.pending, pendingPacket{dst: route.Fifo, buf: out})
	}
	s.flush()
	return stage.Progress, nil
}

// Close releases undelivered packets.
func (s *Stage) Close() error {
	for _, p := range s.pending {
		p.buf.Release()
	}
	s.pending = nil
	return nil
}

// SyncLost reports how many packs failed to parse.
func (s *Stage) SyncLost() int64 {
	return s.syncLost
}

func (s *Stage) flush() bool {
	moved := false
	for len(s.pending) > 0 {
		next := s.pending[0]
		if !next.dst.Push(next.buf) {
			if !next.dst.Dead() {
				return moved
			}
			next.buf.Release()
		}
		s.pending[0] = pendingPacket{}
		s.pending = s.pending[1:]
		moved = true
	}
	return moved
}

func (s *Stage) finish() {
	for _, r := range s.routes {
		r.Fifo.Die()
	}
	s.ended = true
	s.logger.Debug("end of program stream",
		logging.Int64("packs", s.packs),
		logging.Int64("sync_lost", s.syncLost),
	)
}

func (s *Stage) noteUnknown(streamID int) {
	if s.unknown[streamID] {
		return
	}
	s.unknown[streamID] = true
	s.logger.Info("skipping unselected stream",
		logging.String("stream_id", formatStreamID(streamID)),
		logging.String(logging.FieldEventType, "demux_unknown_stream"),
	)
}

func (s *Stage) noteFirstPTS(p Packet) {
	if p.PTS < 0 {
		return
	}
	if _, ok := s.firstPTS[p.StreamID]; ok {
		return
	}
	s.firstPTS[p.StreamID] = p.PTS
	if p.StreamID == title.VideoStreamID {
		return
	}
	videoPTS, ok := s.firstPTS[title.VideoStreamID]
	if !ok || p.PTS <= videoPTS {
		return
	}
	delay := time.Duration(p.PTS-videoPTS) * time.Second / 90000
	s.logger.Info("audio track starts late",
		logging.String("stream_id", formatStreamID(p.StreamID)),
		logging.Duration("delay", delay),
	)
	if s.onDelay != nil {
		s.onDelay(p.StreamID, delay)
	}
}

func formatStreamID(id int) string {
	return fmt.Sprintf("0x%x", id)
}
