package ogm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"ripline/internal/buffer"
	"ripline/internal/fifo"
	"ripline/internal/logging"
	"ripline/internal/mux"
	"ripline/internal/title"
)

// vorbisHeaderPackets is the number of Vorbis header packets per track: the
// identification packet (BOS) plus comment and setup packets.
const vorbisHeaderPackets = 3

// Muxer writes an OGM file. It implements mux.Container.
type Muxer struct {
	path    string
	file    *os.File
	tracks  []mux.Info
	streams []*stream
	// skipped marks tracks that drained before their headers were complete.
	skipped []bool
	logger  *slog.Logger

	headers bool
	closed  bool
	size    int64
}

// New validates tracks and creates the output file.
func New(path string, tracks []mux.Info, logger *slog.Logger) (*Muxer, error) {
	if err := mux.ValidateTracks(tracks); err != nil {
		return nil, err
	}
	for i, t := range tracks[1:] {
		if t.AudioCodec != title.AudioMP3 && t.AudioCodec != title.AudioVorbis {
			return nil, fmt.Errorf("audio track %d: codec %s not supported in ogm", i+1, t.AudioCodec)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create ogm output: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	streams := make([]*stream, len(tracks))
	for i := range tracks {
		streams[i] = newStream(uint32(i))
	}
	return &Muxer{
		path:    path,
		file:    file,
		tracks:  tracks,
		streams: streams,
		skipped: make([]bool, len(tracks)),
		logger:  logging.NewComponentLogger(logger, "ogm"),
	}, nil
}

// Start writes every BOS page first, then the secondary Vorbis headers.
func (m *Muxer) Start(ctx context.Context, src mux.HeaderSource) error {
	if m.headers {
		return errors.New("ogm headers already written")
	}
	if err := m.emit(0, videoStreamHeader(m.tracks[0]), 0); err != nil {
		return err
	}
	for i := 1; i < len(m.tracks); i++ {
		info := m.tracks[i]
		if info.AudioCodec == title.AudioMP3 {
			if err := m.emit(i, mp3StreamHeader(info), 0); err != nil {
				return err
			}
			continue
		}
		if err := m.emitFromSource(ctx, src, i); err != nil {
			if !errors.Is(err, fifo.ErrDrained) {
				return err
			}
			m.skip(i)
		}
	}
	for i := 1; i < len(m.tracks); i++ {
		if m.tracks[i].AudioCodec != title.AudioVorbis || m.skipped[i] {
			continue
		}
		for j := 1; j < vorbisHeaderPackets; j++ {
			if err := m.emitFromSource(ctx, src, i); err != nil {
				if !errors.Is(err, fifo.ErrDrained) {
					return err
				}
				m.skip(i)
				break
			}
		}
	}
	m.headers = true
	m.logger.Debug("ogm headers written", logging.String("path", m.path), logging.Int("streams", len(m.tracks)))
	return nil
}

func (m *Muxer) skip(track int) {
	m.skipped[track] = true
	logging.WarnWithContext(m.logger, "vorbis track ended before its headers", "ogm_track_skipped",
		logging.Int(logging.FieldTrack, track),
		logging.String(logging.FieldErrorHint, "the source track produced no audio"),
		logging.String(logging.FieldImpact, "output carries no data for this track"),
	)
}

func (m *Muxer) emitFromSource(ctx context.Context, src mux.HeaderSource, track int) error {
	if src == nil {
		return fmt.Errorf("track %d: vorbis headers need a header source", track)
	}
	b, err := src.Next(ctx, track)
	if err != nil {
		return fmt.Errorf("track %d: read vorbis header: %w", track, err)
	}
	defer b.Release()
	return m.emit(track, b.Data, b.Granule)
}

func (m *Muxer) emit(track int, packet []byte, granule int64) error {
	n, err := m.streams[track].writePacket(m.file, packet, granule)
	m.size += n
	if err != nil {
		return fmt.Errorf("write ogg page: %w", err)
	}
	return nil
}

// HeadersWritten reports whether Start succeeded.
func (m *Muxer) HeadersWritten() bool { return m.headers }

// Size returns the bytes written so far.
func (m *Muxer) Size() int64 { return m.size }

// Write wraps one buffer in an Ogg packet and flushes its page. Buffers for
// skipped tracks are dropped.
func (m *Muxer) Write(track int, b *buffer.Buffer) error {
	if !m.headers {
		return errors.New("ogm write before headers")
	}
	if track < 0 || track >= len(m.tracks) {
		return fmt.Errorf("ogm track %d out of range", track)
	}
	if m.skipped[track] {
		return nil
	}
	s := m.streams[track]
	info := m.tracks[track]

	switch {
	case info.Kind == mux.KindVideo:
		packet := make([]byte, 1+b.Size())
		if b.KeyFrame {
			packet[0] = 0x08
		}
		copy(packet[1:], b.Data)
		return m.emit(track, packet, s.packetNo)
	case info.AudioCodec == title.AudioMP3:
		packet := make([]byte, 1+b.Size())
		packet[0] = 0x08
		copy(packet[1:], b.Data)
		return m.emit(track, packet, s.packetNo*1152)
	default:
		return m.emit(track, b.Data, b.Granule)
	}
}

// Finish closes the file. Pages are already flushed.
func (m *Muxer) Finish() error {
	if m.closed {
		return nil
	}
	if !m.headers {
		return m.Abort()
	}
	m.closed = true
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("close ogm output: %w", err)
	}
	m.logger.Info("ogm finalized", logging.String("path", m.path), logging.Int64("bytes", m.size))
	return nil
}

// Abort closes the file and removes it when no header was written. Partial
// files with headers are left on disk.
func (m *Muxer) Abort() error {
	if m.closed {
		return nil
	}
	m.closed = true
	closeErr := m.file.Close()
	if m.headers {
		return closeErr
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove ogm output: %w", err)
	}
	return nil
}
