package codec

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"ripline/internal/buffer"
)

// DefaultGOP is the key frame interval used by the passthrough video encoder.
const DefaultGOP = 12

// VorbisSamplesPerPacket is the granule step of passthrough Vorbis packets.
const VorbisSamplesPerPacket = 1024

// Passthrough forwards buffers unchanged.
type Passthrough struct{}

func (Passthrough) Process(in *buffer.Buffer) ([]*buffer.Buffer, error) {
	return []*buffer.Buffer{in}, nil
}

func (Passthrough) Close() error { return nil }

// PassthroughVideo is a video encoder that keeps payloads unchanged. During
// the analysis pass it records one statistics line per frame; the final pass
// takes key frame decisions from those statistics.
type PassthroughVideo struct {
	gop     int
	session Session
	open    bool
	frame   int
	stats   *os.File
	writer  *bufio.Writer
	keys    []bool
}

// NewPassthroughVideo builds a passthrough video encoder.
func NewPassthroughVideo(gop int) *PassthroughVideo {
	if gop <= 0 {
		gop = DefaultGOP
	}
	return &PassthroughVideo{gop: gop}
}

func (e *PassthroughVideo) Open(s Session) error {
	if e.open {
		return errors.New("encoder session already open")
	}
	e.session = s
	e.frame = 0
	e.keys = nil
	switch s.Pass {
	case buffer.PassAnalysis:
		f, err := os.Create(s.StatsPath)
		if err != nil {
			return fmt.Errorf("create stats file: %w", err)
		}
		e.stats = f
		e.writer = bufio.NewWriter(f)
	case buffer.PassFinal:
		keys, err := readStats(s.StatsPath)
		if err != nil {
			return err
		}
		e.keys = keys
	}
	e.open = true
	return nil
}

func (e *PassthroughVideo) Encode(in *buffer.Buffer) ([]*buffer.Buffer, error) {
	if !e.open {
		in.Release()
		return nil, errors.New("encoder session not open")
	}
	key := e.frame%e.gop == 0
	if e.session.Pass == buffer.PassFinal && e.frame < len(e.keys) {
		key = e.keys[e.frame]
	}
	in.KeyFrame = key
	if e.writer != nil {
		flag := 0
		if key {
			flag = 1
		}
		if _, err := fmt.Fprintf(e.writer, "%d %d\n", in.Size(), flag); err != nil {
			in.Release()
			return nil, fmt.Errorf("write stats: %w", err)
		}
	}
	e.frame++
	return []*buffer.Buffer{in}, nil
}

func (e *PassthroughVideo) Close() error {
	if !e.open {
		return nil
	}
	e.open = false
	if e.stats == nil {
		return nil
	}
	flushErr := e.writer.Flush()
	closeErr := e.stats.Close()
	e.stats, e.writer = nil, nil
	if flushErr != nil {
		return fmt.Errorf("flush stats: %w", flushErr)
	}
	return closeErr
}

// Frames returns the number of frames encoded in the current session.
func (e *PassthroughVideo) Frames() int {
	return e.frame
}

func readStats(path string) ([]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stats file: %w", err)
	}
	defer f.Close()

	var keys []bool
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			return nil, fmt.Errorf("stats line %d: expected 2 fields", line)
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			return nil, fmt.Errorf("stats line %d: %w", line, err)
		}
		keys = append(keys, fields[1] == "1")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stats file: %w", err)
	}
	if len(keys) == 0 {
		return nil, errors.New("stats file is empty")
	}
	return keys, nil
}

// PassthroughAudio forwards audio frames. In Vorbis mode it emits the three
// header packets Ogg muxing expects before the first frame and stamps granule
// positions.
type PassthroughAudio struct {
	vorbis  bool
	open    bool
	headers bool
	granule int64
}

// NewPassthroughAudio builds a passthrough audio encoder.
func NewPassthroughAudio(vorbis bool) *PassthroughAudio {
	return &PassthroughAudio{vorbis: vorbis}
}

func (e *PassthroughAudio) Open(Session) error {
	if e.open {
		return errors.New("encoder session already open")
	}
	e.open = true
	e.headers = false
	e.granule = 0
	return nil
}

func (e *PassthroughAudio) Encode(in *buffer.Buffer) ([]*buffer.Buffer, error) {
	if !e.open {
		in.Release()
		return nil, errors.New("encoder session not open")
	}
	in.KeyFrame = true
	if !e.vorbis {
		return []*buffer.Buffer{in}, nil
	}
	var out []*buffer.Buffer
	if !e.headers {
		for _, kind := range []byte{1, 3, 5} {
			h := buffer.FromBytes(append([]byte{kind}, []byte("vorbis")...))
			h.CopyMeta(in)
			h.Granule = 0
			out = append(out, h)
		}
		e.headers = true
	}
	e.granule += VorbisSamplesPerPacket
	in.Granule = e.granule
	return append(out, in), nil
}

func (e *PassthroughAudio) Close() error {
	e.open = false
	return nil
}
