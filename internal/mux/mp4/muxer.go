package mp4

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"

	"ripline/internal/buffer"
	"ripline/internal/logging"
	"ripline/internal/mux"
	"ripline/internal/title"
)

// mdatReserve is the space kept for the mdat header: a free box followed by
// a 32-bit mdat header, or a 64-bit mdat header once the file outgrows 4 GiB.
const mdatReserve = 16

func ftyp() []byte {
	w := &bw{}
	w.raw([]byte("isom"))
	w.u32(0x200)
	w.raw([]byte("isomiso2mp41"))
	return box("ftyp", w.b)
}

// Muxer writes an MP4 file. It implements mux.Container.
type Muxer struct {
	path   string
	file   *os.File
	tracks []*sampleTable
	logger *slog.Logger

	// Optimize runs after the moov box is written; nil skips it.
	Optimize func(path string) error

	headers   bool
	closed    bool
	mdatStart int64
	size      int64
	large     bool
}

// New validates tracks and creates the output file.
func New(path string, tracks []mux.Info, logger *slog.Logger) (*Muxer, error) {
	if err := mux.ValidateTracks(tracks); err != nil {
		return nil, err
	}
	for i, t := range tracks[1:] {
		if t.AudioCodec != title.AudioAAC && t.AudioCodec != title.AudioMP3 {
			return nil, fmt.Errorf("audio track %d: codec %s not supported in mp4", i+1, t.AudioCodec)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create mp4 output: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	tables := make([]*sampleTable, len(tracks))
	for i, info := range tracks {
		tables[i] = newSampleTable(uint32(i+1), info)
	}
	return &Muxer{
		path:     path,
		file:     file,
		tracks:   tables,
		logger:   logging.NewComponentLogger(logger, "mp4"),
		Optimize: Optimize,
	}, nil
}

// Start writes ftyp and the reserved mdat header.
func (m *Muxer) Start(context.Context, mux.HeaderSource) error {
	if m.headers {
		return errors.New("mp4 headers already written")
	}
	head := ftyp()
	m.mdatStart = int64(len(head))
	head = append(head, m.mdatHeader(0)...)
	if _, err := m.file.Write(head); err != nil {
		return fmt.Errorf("write mp4 header: %w", err)
	}
	m.size = int64(len(head))
	m.headers = true
	return nil
}

// mdatHeader renders the 16 reserved bytes for dataLen bytes of samples.
func (m *Muxer) mdatHeader(dataLen int64) []byte {
	out := make([]byte, mdatReserve)
	if m.large {
		binary.BigEndian.PutUint32(out, 1)
		copy(out[4:], "mdat")
		binary.BigEndian.PutUint64(out[8:], uint64(mdatReserve+dataLen))
		return out
	}
	binary.BigEndian.PutUint32(out, 8)
	copy(out[4:], "free")
	binary.BigEndian.PutUint32(out[8:], uint32(8+dataLen))
	copy(out[12:], "mdat")
	return out
}

// HeadersWritten reports whether Start succeeded.
func (m *Muxer) HeadersWritten() bool { return m.headers }

// Size returns the bytes written so far.
func (m *Muxer) Size() int64 { return m.size }

// Write appends one sample and patches the mdat size.
func (m *Muxer) Write(track int, b *buffer.Buffer) error {
	if !m.headers {
		return errors.New("mp4 write before headers")
	}
	if track < 0 || track >= len(m.tracks) {
		return fmt.Errorf("mp4 track %d out of range", track)
	}
	offset := m.size
	n, err := m.file.Write(b.Data)
	m.size += int64(n)
	if err != nil {
		if n > 0 {
			m.truncate(offset)
		}
		return fmt.Errorf("write mp4 sample: %w", err)
	}
	t := m.tracks[track]
	t.sizes = append(t.sizes, uint32(b.Size()))
	t.offsets = append(t.offsets, uint64(offset))
	if t.info.Kind == mux.KindVideo && b.KeyFrame {
		t.sync = append(t.sync, uint32(len(t.sizes)))
	}
	return m.patchMdat()
}

// truncate drops the bytes of a partially written sample so a later moov
// follows the last complete one.
func (m *Muxer) truncate(offset int64) {
	if err := m.file.Truncate(offset); err != nil {
		m.logger.Debug("truncate partial sample failed", logging.Error(err))
		return
	}
	if _, err := m.file.Seek(offset, io.SeekStart); err != nil {
		m.logger.Debug("seek after truncate failed", logging.Error(err))
		return
	}
	m.size = offset
}

func (m *Muxer) patchMdat() error {
	dataLen := m.size - m.mdatStart - mdatReserve
	if !m.large && 8+dataLen > math.MaxUint32 {
		m.large = true
		m.logger.Info("mp4 output exceeds 4 GiB, switching to 64-bit mdat",
			logging.String("path", m.path))
	}
	if _, err := m.file.WriteAt(m.mdatHeader(dataLen), m.mdatStart); err != nil {
		return fmt.Errorf("patch mdat size: %w", err)
	}
	return nil
}

func (m *Muxer) useCo64() bool {
	var maxOffset uint64
	for _, t := range m.tracks {
		if off := t.maxOffset(); off > maxOffset {
			maxOffset = off
		}
	}
	probe := uint64(len(buildMoov(m.tracks, false)))
	return maxOffset+probe > math.MaxUint32
}

// Finish appends moov, closes the file and optimizes it.
func (m *Muxer) Finish() error {
	if m.closed {
		return nil
	}
	if !m.headers {
		return m.Abort()
	}
	m.closed = true

	moov := buildMoov(m.tracks, m.useCo64())
	n, err := m.file.Write(moov)
	m.size += int64(n)
	if err != nil {
		m.file.Close()
		return fmt.Errorf("write moov: %w", err)
	}
	if err := m.file.Sync(); err != nil {
		m.file.Close()
		return fmt.Errorf("sync mp4 output: %w", err)
	}
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("close mp4 output: %w", err)
	}

	if m.Optimize != nil {
		if err := m.Optimize(m.path); err != nil {
			logging.WarnWithContext(m.logger, "mp4 optimize failed", "mp4_optimize_failed",
				logging.String("path", m.path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check free space in the output directory"),
				logging.String(logging.FieldImpact, "output keeps moov at the end of the file"),
			)
		}
	}
	m.logger.Info("mp4 finalized",
		logging.String("path", m.path),
		logging.Int64("bytes", m.size),
		logging.Int("tracks", len(m.tracks)),
	)
	return nil
}

// Abort closes the file, deleting it when no header was written.
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
		return fmt.Errorf("remove mp4 output: %w", err)
	}
	return nil
}
