package encoding

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"ripline/internal/buffer"
	"ripline/internal/codec"
	"ripline/internal/errcode"
	"ripline/internal/fifo"
	"ripline/internal/logging"
	"ripline/internal/stage"
)

// Kind distinguishes video and audio encoder stages.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
)

func (k Kind) String() string {
	if k == KindAudio {
		return "audio"
	}
	return "video"
}

// Options configures an EncoderStage.
type Options struct {
	Name       string
	Kind       Kind
	Track      int
	Encoder    codec.Encoder
	In         *fifo.Fifo
	Out        *fifo.Fifo
	StatsDir   string
	Bitrate    int
	SampleRate int
	// OnProgress is called once per video input frame.
	OnProgress func(position float64, pass int)
	Logger     *slog.Logger
}

// EncoderStage is a pass-aware encoder stage.
type EncoderStage struct {
	*stage.Transform

	opts      Options
	logger    *slog.Logger
	statsPath string
	opened    bool
	pass      int
	reinits   int
	passes    []int
}

// StatsPath returns the statistics file path for a stage name in dir.
func StatsPath(dir, name string) string {
	return filepath.Join(dir, fmt.Sprintf("ripline.%d.%s.log", os.Getpid(), name))
}

// NewStage builds an encoder stage.
func NewStage(opts Options) (*EncoderStage, error) {
	if opts.Encoder == nil {
		return nil, errors.New("encoder stage requires an encoder")
	}
	if opts.In == nil || opts.Out == nil {
		return nil, errors.New("encoder stage requires input and output fifos")
	}
	if opts.Name == "" {
		opts.Name = opts.Kind.String() + "-encoder"
	}
	if opts.StatsDir == "" {
		opts.StatsDir = os.TempDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &EncoderStage{
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "encoder").With(logging.String(logging.FieldStage, opts.Name)),
		statsPath: StatsPath(opts.StatsDir, opts.Name),
	}
	s.Transform = stage.NewTransform(opts.Name, opts.In, opts.Out, s.process, s.shutdown)
	return s, nil
}

// Work processes at most one input buffer.
func (s *EncoderStage) Work(ctx context.Context) (stage.Result, error) {
	return s.Transform.Work(ctx)
}

// Reinits returns how many codec sessions have been opened.
func (s *EncoderStage) Reinits() int {
	return s.reinits
}

// Passes returns the pass values in the order sessions were opened for them.
func (s *EncoderStage) Passes() []int {
	return append([]int(nil), s.passes...)
}

// StatsFile returns the statistics file path used by this stage.
func (s *EncoderStage) StatsFile() string {
	return s.statsPath
}

func (s *EncoderStage) process(in *buffer.Buffer) ([]*buffer.Buffer, error) {
	if s.opts.Kind == KindAudio && in.Pass == buffer.PassAnalysis {
		in.Release()
		return nil, nil
	}
	if !s.opened || in.Pass != s.pass {
		if err := s.reopen(in.Pass); err != nil {
			in.Release()
			return nil, err
		}
	}
	if s.opts.Kind == KindVideo && s.opts.OnProgress != nil {
		s.opts.OnProgress(in.Position, in.Pass)
	}

	pass := in.Pass
	outs, err := s.opts.Encoder.Encode(in)
	if err != nil {
		return outs, errcode.Wrap(errcode.EncoderEncodeFailed, s.opts.Name, "encode", err)
	}
	if s.opts.Kind == KindVideo && pass == buffer.PassAnalysis {
		for _, out := range outs {
			out.Release()
		}
		return nil, nil
	}
	for _, out := range outs {
		out.Track = s.opts.Track
	}
	return outs, nil
}

func (s *EncoderStage) reopen(pass int) error {
	if s.opened {
		s.opened = false
		if err := s.opts.Encoder.Close(); err != nil {
			return errcode.Wrap(errcode.EncoderInitFailed, s.opts.Name, "close session", err)
		}
	}
	session := codec.Session{
		Pass:       pass,
		StatsPath:  s.statsPath,
		Bitrate:    s.opts.Bitrate,
		SampleRate: s.opts.SampleRate,
	}
	if err := s.opts.Encoder.Open(session); err != nil {
		return errcode.Wrap(errcode.EncoderInitFailed, s.opts.Name, "open session", err)
	}
	s.opened = true
	s.pass = pass
	s.reinits++
	s.passes = append(s.passes, pass)
	s.logger.Debug("encoder session opened",
		logging.Int(logging.FieldPass, pass),
		logging.Int("sessions", s.reinits),
	)
	return nil
}

func (s *EncoderStage) shutdown() error {
	var closeErr error
	if s.opened {
		s.opened = false
		closeErr = s.opts.Encoder.Close()
	}
	if err := os.Remove(s.statsPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.WarnWithContext(s.logger, "failed to remove stats file", "stats_cleanup_failed",
			logging.String("path", s.statsPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the file manually"),
			logging.String(logging.FieldImpact, "leftover temporary file"),
		)
	}
	return closeErr
}
