package avi

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"ripline/internal/buffer"
	"ripline/internal/logging"
	"ripline/internal/mux"
)

// Muxer writes an AVI file. It implements mux.Container.
type Muxer struct {
	path   string
	file   *os.File
	tracks []mux.Info
	logger *slog.Logger

	headers  bool
	closed   bool
	moviSize uint32
	lengths  []uint32
	index    bytes.Buffer
	fileSize int64
}

// New validates tracks and creates the output file.
func New(path string, tracks []mux.Info, logger *slog.Logger) (*Muxer, error) {
	if err := mux.ValidateTracks(tracks); err != nil {
		return nil, err
	}
	if _, err := buildHeader(tracks); err != nil {
		return nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create avi output: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Muxer{
		path:    path,
		file:    file,
		tracks:  tracks,
		logger:  logging.NewComponentLogger(logger, "avi"),
		lengths: make([]uint32, len(tracks)),
	}, nil
}

// Start writes the header region.
func (m *Muxer) Start(context.Context, mux.HeaderSource) error {
	if m.headers {
		return errors.New("avi headers already written")
	}
	header, err := buildHeader(m.tracks)
	if err != nil {
		return err
	}
	if _, err := m.file.Write(header); err != nil {
		return fmt.Errorf("write avi header: %w", err)
	}
	m.headers = true
	m.fileSize = int64(len(header))
	m.logger.Debug("avi header written", logging.String("path", m.path), logging.Int("streams", len(m.tracks)))
	return nil
}

// HeadersWritten reports whether Start succeeded.
func (m *Muxer) HeadersWritten() bool { return m.headers }

// Size returns the bytes written so far.
func (m *Muxer) Size() int64 { return m.fileSize }

// Write appends one chunk and patches the header sizes.
func (m *Muxer) Write(track int, b *buffer.Buffer) error {
	if !m.headers {
		return errors.New("avi write before headers")
	}
	if track < 0 || track >= len(m.tracks) {
		return fmt.Errorf("avi track %d out of range", track)
	}
	size := b.Size()
	tag := chunkTag(track)

	chunk := make([]byte, 8, 8+size+1)
	copy(chunk, tag[:])
	binary.LittleEndian.PutUint32(chunk[4:], uint32(size))
	chunk = append(chunk, b.Data...)
	if size&1 == 1 {
		chunk = append(chunk, 0)
	}
	if _, err := m.file.Write(chunk); err != nil {
		return fmt.Errorf("write avi chunk: %w", err)
	}

	var flags uint32
	if b.KeyFrame {
		flags = IndexFlagKeyFrame
	}
	entry := make([]byte, 16)
	copy(entry, tag[:])
	binary.LittleEndian.PutUint32(entry[4:], flags)
	binary.LittleEndian.PutUint32(entry[8:], 4+m.moviSize)
	binary.LittleEndian.PutUint32(entry[12:], uint32(size))
	m.index.Write(entry)

	m.moviSize += uint32(len(chunk))
	m.fileSize += int64(len(chunk))
	m.lengths[track]++
	return mux.ApplyPatches(m.file, m.headerPatches()...)
}

func (m *Muxer) headerPatches() []mux.Patch {
	patches := []mux.Patch{
		mux.Uint32LE(riffSizeOffset, riffSizeBase+m.moviSize),
		mux.Uint32LE(totalFrameOffset, m.lengths[0]),
		mux.Uint32LE(videoLenOffset, m.lengths[0]),
	}
	for i := 1; i < len(m.tracks); i++ {
		patches = append(patches, mux.Uint32LE(audioLengthOffset(i-1), m.lengths[i]))
	}
	return append(patches, mux.Uint32LE(moviSizeOffset, 4+m.moviSize))
}

// Finish appends idx1, sets AVIF_HASINDEX and closes the file.
func (m *Muxer) Finish() error {
	if m.closed {
		return nil
	}
	if !m.headers {
		return m.Abort()
	}
	m.closed = true

	idx := make([]byte, 8, 8+m.index.Len())
	copy(idx, "idx1")
	binary.LittleEndian.PutUint32(idx[4:], uint32(m.index.Len()))
	idx = append(idx, m.index.Bytes()...)
	if _, err := m.file.Write(idx); err != nil {
		m.file.Close()
		return fmt.Errorf("write avi index: %w", err)
	}
	m.fileSize += int64(len(idx))
	err := mux.ApplyPatches(m.file,
		mux.Uint32LE(riffSizeOffset, riffSizeBase+m.moviSize+uint32(len(idx))),
		mux.Uint32LE(flagsOffset, FlagHasIndex),
	)
	if err != nil {
		m.file.Close()
		return err
	}
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("close avi output: %w", err)
	}
	m.logger.Info("avi finalized",
		logging.String("path", m.path),
		logging.Int64("bytes", m.fileSize),
		logging.Int("index_entries", m.index.Len()/16),
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
	m.logger.Info("deleting avi output without headers", logging.String("path", m.path))
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove avi output: %w", err)
	}
	return nil
}
