package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gofrs/flock"

	"ripline/internal/codec"
	"ripline/internal/config"
	"ripline/internal/demux"
	"ripline/internal/encoding"
	"ripline/internal/fifo"
	"ripline/internal/logging"
	"ripline/internal/mux"
	"ripline/internal/mux/avi"
	"ripline/internal/mux/mp4"
	"ripline/internal/mux/ogm"
	"ripline/internal/stage"
	"ripline/internal/title"
	"ripline/internal/volume"
	"ripline/internal/worker"
)

// pipeline owns every resource of one rip. Fields are written while building
// and then only read by the control goroutine.
type pipeline struct {
	jobID  string
	title  *title.Title
	passes int
	logger *slog.Logger

	gate      *stage.Gate
	fifos     []*fifo.Fifo
	outputs   []*fifo.Fifo
	handles   []*stage.Handle
	pool      *worker.Pool
	reader    *volume.Reader
	container mux.Container
	muxer     *mux.Muxer
	lock      *flock.Flock
	started   bool

	cancel     context.CancelFunc
	readerStop context.CancelFunc
	readerDone chan struct{}
	muxDone    chan error
	muxErr     error
	muxEnded   bool
	// fatal holds the first stage or reader failure.
	fatal chan error
}

func newContainer(t *title.Title, infos []mux.Info, logger *slog.Logger) (mux.Container, error) {
	switch t.Container {
	case title.ContainerAVI:
		return avi.New(t.Output, infos, logger)
	case title.ContainerMP4:
		return mp4.New(t.Output, infos, logger)
	case title.ContainerOGM:
		return ogm.New(t.Output, infos, logger)
	}
	return nil, fmt.Errorf("unknown container %s", t.Container)
}

// buildPipeline wires reader -> demux -> decode/scale/encode -> muxer for t.
// Every stage handle and fifo exists before any goroutine starts.
func buildPipeline(cfg *config.Config, reg *codec.Registry, t *title.Title, jobID string, onProgress func(position float64, pass int), logger *slog.Logger) (_ *pipeline, err error) {
	p := &pipeline{
		jobID:  jobID,
		title:  t,
		passes: 1,
		logger: logger,
		gate:   stage.NewGate(),
		fatal:  make(chan error, 1),
	}
	if t.TwoPass {
		p.passes = 2
	}
	defer func() {
		if err != nil {
			p.release()
		}
	}()

	p.lock = flock.New(t.Output + ".lock")
	locked, lockErr := p.lock.TryLock()
	if lockErr != nil {
		return nil, fmt.Errorf("lock output: %w", lockErr)
	}
	if !locked {
		p.lock = nil
		return nil, fmt.Errorf("output %s is locked by another rip", t.Output)
	}

	var pool *worker.Pool
	wake := func() {
		if pool != nil {
			pool.Wake()
		}
	}
	newFifo := func(name string, capacity int) *fifo.Fifo {
		f := fifo.New(capacity, fifo.WithName(name), fifo.WithNotify(wake))
		p.fifos = append(p.fifos, f)
		return f
	}

	demuxIn := newFifo("demux", cfg.Fifo.DemuxCapacity)
	videoRaw := newFifo("video-raw", cfg.Fifo.StageCapacity)
	videoDecoded := newFifo("video-decoded", cfg.Fifo.StageCapacity)
	videoScaled := newFifo("video-scaled", cfg.Fifo.StageCapacity)
	videoOut := newFifo("video-out", cfg.Fifo.OutputCapacity)
	p.outputs = append(p.outputs, videoOut)

	routes := []demux.Route{{StreamID: title.VideoStreamID, Track: 0, Fifo: videoRaw}}
	infos := []mux.Info{mux.VideoInfo(t)}
	tracks := []*mux.Track{{Info: infos[0], Fifo: videoOut}}

	var videoStages, audioStages []stage.Stage
	decoder, err := reg.VideoDecoder(t)
	if err != nil {
		return nil, err
	}
	videoStages = append(videoStages, stage.NewTransform("video-decoder", videoRaw, videoDecoded, decoder.Process, decoder.Close))
	scaler, err := reg.Scaler(t)
	if err != nil {
		return nil, err
	}
	videoStages = append(videoStages, stage.NewTransform("scaler", videoDecoded, videoScaled, scaler.Process, scaler.Close))
	videoEncoder, err := reg.VideoEncoder(t)
	if err != nil {
		return nil, err
	}
	encoder, err := encoding.NewStage(encoding.Options{
		Name:       "video-encoder",
		Kind:       encoding.KindVideo,
		Track:      0,
		Encoder:    videoEncoder,
		In:         videoScaled,
		Out:        videoOut,
		StatsDir:   cfg.Paths.StatsDir,
		Bitrate:    t.Bitrate,
		OnProgress: onProgress,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	videoStages = append(videoStages, encoder)

	for i, a := range t.Audios {
		track := i + 1
		raw := newFifo(fmt.Sprintf("audio%d-raw", track), cfg.Fifo.StageCapacity)
		decoded := newFifo(fmt.Sprintf("audio%d-decoded", track), cfg.Fifo.StageCapacity)
		out := newFifo(fmt.Sprintf("audio%d-out", track), cfg.Fifo.OutputCapacity)
		p.outputs = append(p.outputs, out)
		routes = append(routes, demux.Route{StreamID: a.ID, Track: track, Fifo: raw})
		info := mux.AudioInfo(a)
		infos = append(infos, info)
		tracks = append(tracks, &mux.Track{Info: info, Fifo: out})

		audioDecoder, err := reg.AudioDecoder(t)
		if err != nil {
			return nil, err
		}
		audioStages = append(audioStages, stage.NewTransform(fmt.Sprintf("audio%d-decoder", track), raw, decoded, audioDecoder.Process, audioDecoder.Close))
		audioEncoder, err := reg.AudioEncoder(a)
		if err != nil {
			return nil, err
		}
		enc, err := encoding.NewStage(encoding.Options{
			Name:       fmt.Sprintf("audio%d-encoder", track),
			Kind:       encoding.KindAudio,
			Track:      track,
			Encoder:    audioEncoder,
			In:         decoded,
			Out:        out,
			StatsDir:   cfg.Paths.StatsDir,
			Bitrate:    a.OutBitrate,
			SampleRate: a.OutSampleRate,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		audioStages = append(audioStages, enc)
	}

	demuxer := demux.NewStage(demuxIn, routes, demux.Options{Logger: logger})
	p.handles = append(p.handles, stage.NewHandle(demuxer))
	for _, s := range append(videoStages, audioStages...) {
		p.handles = append(p.handles, stage.NewHandle(s))
	}

	container, err := newContainer(t, infos, logger)
	if err != nil {
		return nil, err
	}
	p.container = container
	p.muxer = mux.New(container, tracks, mux.Options{Gate: p.gate, Logger: logger})

	pool = worker.NewPool(p.handles, worker.Options{
		Size: cfg.Rip.CPUCount,
		Idle: cfg.IdleInterval(),
		Gate: p.gate,
		OnFatal: func(stageName string, err error) {
			p.report(fmt.Errorf("%s: %w", stageName, err))
		},
		Logger: logger,
	})
	p.pool = pool
	p.reader = &volume.Reader{Title: t, Out: demuxIn, Gate: p.gate, Passes: p.passes, Logger: logger}
	return p, nil
}

// start launches workers, the muxer and the reader, in that order.
func (p *pipeline) start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	if err := p.pool.Start(runCtx); err != nil {
		cancel()
		return err
	}

	p.started = true
	p.muxDone = make(chan error, 1)
	go func() {
		p.muxDone <- p.muxer.Run(runCtx)
	}()

	readerCtx, readerStop := context.WithCancel(runCtx)
	p.readerStop = readerStop
	p.readerDone = make(chan struct{})
	go func() {
		defer close(p.readerDone)
		if err := p.reader.Run(readerCtx); err != nil && !errors.Is(err, context.Canceled) {
			p.report(err)
		}
	}()
	return nil
}

// report records err unless an earlier failure is pending.
func (p *pipeline) report(err error) {
	select {
	case p.fatal <- err:
	default:
	}
}

// muxEnd records a muxer result received by the control goroutine.
func (p *pipeline) muxEnd(err error) {
	p.muxErr, p.muxEnded = err, true
}

// drain tears the pipeline down in order and returns the muxer result.
func (p *pipeline) drain() error {
	p.gate.Resume()

	// Reader first so no new packs enter.
	p.readerStop()
	<-p.readerDone

	p.pool.Stop()

	for _, f := range p.outputs {
		f.Die()
	}
	if !p.muxEnded {
		p.muxEnd(<-p.muxDone)
	}
	p.cancel()

	p.release()
	return p.muxErr
}

// release closes handles and fifos, drops the output lock and removes the
// lock file. It is safe on a partially built pipeline.
func (p *pipeline) release() {
	for _, h := range p.handles {
		if err := h.Close(); err != nil {
			logging.WarnWithContext(p.logger, "stage close failed", "stage_close_failed",
				logging.String(logging.FieldStage, h.Name()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "temporary files may remain"),
			)
		}
	}
	for _, f := range p.fifos {
		f.Die()
		f.Close()
	}
	if !p.started && p.container != nil {
		_ = p.container.Abort()
	}
	if p.lock != nil {
		path := p.lock.Path()
		if err := p.lock.Unlock(); err != nil {
			logging.WarnWithContext(p.logger, "failed to release output lock", "output_unlock_failed",
				logging.String("lock", path),
				logging.Error(err),
			)
		}
		_ = os.Remove(path)
		p.lock = nil
	}
}

// frames returns the number of video buffers written to the output.
func (p *pipeline) frames() int64 {
	if p.muxer == nil {
		return 0
	}
	return p.muxer.Tracks()[0].Frames()
}

func (p *pipeline) size() int64 {
	if s, ok := p.container.(mux.Sizer); ok {
		return s.Size()
	}
	return 0
}
