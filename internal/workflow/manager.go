package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"ripline/internal/codec"
	"ripline/internal/config"
	"ripline/internal/encoding"
	"ripline/internal/errcode"
	"ripline/internal/logging"
	"ripline/internal/mux"
	"ripline/internal/preflight"
	"ripline/internal/queue"
	"ripline/internal/volume"
)

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	Registry *codec.Registry
	// Store records rip history when set.
	Store  *queue.Store
	Logger *slog.Logger
	// Now is the clock used for progress statistics.
	Now func() time.Time
}

type scanResult struct {
	volume *volume.Volume
	err    error
}

// Manager drives scans and rips. Commands are safe to call from any
// goroutine; a single control goroutine owns pipeline teardown.
type Manager struct {
	cfg      *config.Config
	registry *codec.Registry
	store    *queue.Store
	scanner  *volume.Scanner
	logger   *slog.Logger
	now      func() time.Time

	// cmdMu serializes commands.
	cmdMu sync.Mutex

	mu       sync.Mutex
	status   Status
	changed  bool
	volume   *volume.Volume
	rip      *pipeline
	progress progress

	ctx        context.Context
	cancel     context.CancelFunc
	scanDone   chan scanResult
	ripStarted chan *pipeline
	stopReq    chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
}

// NewManager builds a manager in NeedVolume and starts its control
// goroutine. Call Close to stop it.
func NewManager(cfg *config.Config, opts Options) *Manager {
	if opts.Registry == nil {
		opts.Registry = codec.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:        cfg,
		registry:   opts.Registry,
		store:      opts.Store,
		scanner:    &volume.Scanner{ProbePacks: cfg.Volume.ProbePacks, Logger: opts.Logger},
		logger:     logging.NewComponentLogger(opts.Logger, "workflow-manager"),
		now:        opts.Now,
		ctx:        ctx,
		cancel:     cancel,
		scanDone:   make(chan scanResult, 1),
		ripStarted: make(chan *pipeline),
		stopReq:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	m.status.Mode = NeedVolume
	go m.run()
	return m
}

// Close cancels any running rip, waits for its drain and stops the control
// goroutine.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		<-m.done
	})
}

// ScanVolume starts scanning path for titles. The manager moves to
// ReadyToRip or InvalidVolume when the scan ends.
func (m *Manager) ScanVolume(path string) error {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	m.mu.Lock()
	switch m.status.Mode {
	case NeedVolume, InvalidVolume, ReadyToRip, Done, Canceled, Error:
	default:
		mode := m.status.Mode
		m.mu.Unlock()
		return invalidMode("scan", mode)
	}
	m.volume = nil
	m.status = Status{Volume: path}
	m.setModeLocked(Scanning)
	m.mu.Unlock()

	m.logger.Info("scanning volume",
		logging.String(logging.FieldEventType, "scan_started"),
		logging.String("volume", path),
	)
	go func() {
		vol, err := m.scanner.Scan(m.ctx, path, func(index, total int) {
			m.mu.Lock()
			m.status.ScanIndex = index
			m.status.ScanCount = total
			m.mu.Unlock()
		})
		m.scanDone <- scanResult{volume: vol, err: err}
	}()
	return nil
}

// StartRip builds the pipeline for a scanned title and starts encoding.
// Validation, preflight and output locking errors leave the mode unchanged.
func (m *Manager) StartRip(req RipRequest) error {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	m.mu.Lock()
	mode := m.status.Mode
	vol := m.volume
	m.mu.Unlock()
	switch mode {
	case ReadyToRip, Done, Canceled, Error:
	default:
		return invalidMode("start rip", mode)
	}
	if vol == nil {
		return invalidMode("start rip", mode)
	}
	src := vol.Title(req.Title)
	if src == nil {
		return fmt.Errorf("title %d not found on %s", req.Title, vol.Path)
	}

	t, err := prepareTitle(m.cfg, src, req)
	if err != nil {
		return fmt.Errorf("prepare title %d: %w", req.Title, err)
	}
	if err := preflight.Err(preflight.RunAll(m.cfg, filepath.Dir(t.Output), t.TwoPass)); err != nil {
		return err
	}

	jobID := uuid.NewString()
	logger := m.logger.With(logging.String(logging.FieldJobID, jobID))
	p, err := buildPipeline(m.cfg, m.registry, t, jobID, m.onVideoFrame, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	if m.store != nil {
		_, err := m.store.Begin(m.ctx, queue.Job{
			ID:         jobID,
			Volume:     vol.Path,
			TitleIndex: t.Index,
			Source:     t.Source,
			Output:     t.Output,
			Container:  t.Container.String(),
			TwoPass:    t.TwoPass,
		})
		if err != nil {
			logging.WarnWithContext(logger, "failed to record rip start", "history_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "rip will be missing from history"),
			)
		}
	}

	m.mu.Lock()
	m.rip = p
	m.progress = newProgress(m.now())
	m.status = Status{
		Volume:    vol.Path,
		Titles:    m.status.Titles,
		JobID:     jobID,
		Title:     t.Index,
		Output:    t.Output,
		PassCount: p.passes,
	}
	if p.passes > 1 {
		m.status.Pass = 1
	}
	m.setModeLocked(Encoding)
	m.mu.Unlock()

	if err := p.start(m.ctx); err != nil {
		p.release()
		m.finishRip(p, Error, err)
		return fmt.Errorf("start pipeline: %w", err)
	}
	logger.Info("rip started",
		logging.String(logging.FieldEventType, "rip_started"),
		logging.Int("title", t.Index),
		logging.String("output", t.Output),
		logging.String("container", t.Container.String()),
		logging.Int("audio_tracks", len(t.Audios)),
		logging.Int("passes", p.passes),
		logging.Int("workers", p.pool.Size()),
	)

	select {
	case m.ripStarted <- p:
	case <-m.done:
		// Closed concurrently; nobody else will drain this rip.
		m.drainAndFinish(p, Canceled, nil)
	}
	return nil
}

// Pause suspends the running rip. Workers, the reader and the muxer park at
// their next gate check.
func (m *Manager) Pause() error {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.Mode != Encoding {
		return invalidMode("pause", m.status.Mode)
	}
	m.progress.pause(m.now())
	m.rip.gate.Pause()
	m.setModeLocked(Suspended)
	m.logger.Info("rip paused",
		logging.String(logging.FieldJobID, m.status.JobID),
		logging.String(logging.FieldEventType, "rip_paused"),
	)
	return nil
}

// Resume continues a suspended rip.
func (m *Manager) Resume() error {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.Mode != Suspended {
		return invalidMode("resume", m.status.Mode)
	}
	m.progress.resume(m.now())
	m.rip.gate.Resume()
	m.setModeLocked(Encoding)
	m.logger.Info("rip resumed",
		logging.String(logging.FieldJobID, m.status.JobID),
		logging.String(logging.FieldEventType, "rip_resumed"),
	)
	return nil
}

// Stop cancels the running rip. The manager passes through Stopping and
// reaches Canceled once the pipeline has drained and the output is
// finalized.
func (m *Manager) Stop() error {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.status.Mode {
	case Encoding, Suspended:
	default:
		return invalidMode("stop", m.status.Mode)
	}
	m.progress.resume(m.now())
	m.setModeLocked(Stopping)
	select {
	case m.stopReq <- struct{}{}:
	default:
	}
	return nil
}

// Status returns a snapshot of the current state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.status
	st.Titles = copyTitles(m.status.Titles)
	switch st.Mode {
	case Encoding, Suspended, Stopping:
		st.Elapsed = m.progress.elapsed(m.now())
	}
	return st
}

// NeedUpdate reports whether the mode changed since the previous call.
func (m *Manager) NeedUpdate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := m.changed
	m.changed = false
	return changed
}

// Done is closed when the control goroutine has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) setMode(mode Mode) {
	m.mu.Lock()
	m.setModeLocked(mode)
	m.mu.Unlock()
}

func (m *Manager) setModeLocked(mode Mode) {
	if m.status.Mode != mode {
		m.changed = true
	}
	m.status.Mode = mode
}

// onVideoFrame runs on a worker goroutine for every frame entering the
// video encoder.
func (m *Manager) onVideoFrame(position float64, pass int) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	pr := &m.progress
	st := &m.status
	if fps, ok := pr.frame(now); ok {
		st.FPS = fps
	}
	st.Frames = pr.frames
	st.Position = position
	if pass > 0 {
		st.Pass = pass
	}
	st.AvgFPS = pr.average(now)
	st.ETA = eta(pr.elapsed(now), position)

	percent := st.PassPercent()
	if pr.sampler.ShouldLog(percent, st.Pass) {
		m.logger.Info(encoding.ProgressMessage(st.Pass, st.PassCount, percent, st.FPS, st.ETA),
			logging.String(logging.FieldJobID, st.JobID),
			logging.String(logging.FieldEventType, "rip_progress"),
			logging.Int(logging.FieldPass, st.Pass),
			logging.Float64("position", position),
		)
	}
}

// run is the control goroutine. It is the only place a pipeline drains.
func (m *Manager) run() {
	defer close(m.done)
	var active *pipeline
	var fatal <-chan error
	var muxDone <-chan error
	reset := func() {
		active, fatal, muxDone = nil, nil, nil
	}

	for {
		select {
		case <-m.ctx.Done():
			if active != nil {
				m.setMode(Stopping)
				m.drainAndFinish(active, Canceled, nil)
			}
			return

		case res := <-m.scanDone:
			m.finishScan(res)

		case p := <-m.ripStarted:
			// A stop aimed at the previous rip must not cancel this one.
			select {
			case <-m.stopReq:
			default:
			}
			active, fatal, muxDone = p, p.fatal, p.muxDone

		case <-m.stopReq:
			if active == nil {
				continue
			}
			m.logger.Info("stopping rip",
				logging.String(logging.FieldJobID, active.jobID),
				logging.String(logging.FieldEventType, "rip_stopping"),
			)
			m.drainAndFinish(active, Canceled, nil)
			reset()

		case err := <-fatal:
			m.setMode(Stopping)
			logging.ErrorWithContext(m.logger, "rip failed", "rip_failed",
				logging.String(logging.FieldJobID, active.jobID),
				logging.String(logging.FieldErrorCode, errcode.CodeOf(err).String()),
				logging.Error(err),
			)
			m.drainAndFinish(active, Error, err)
			reset()

		case err := <-muxDone:
			// The muxer only returns on its own once every track drained.
			p := active
			reset()
			p.muxEnd(err)
			m.setMode(Stopping)
			if grace := m.cfg.DoneGrace(); grace > 0 {
				time.Sleep(grace)
			}
			outcome, cause := Done, error(nil)
			select {
			case ferr := <-p.fatal:
				outcome, cause = Error, ferr
			default:
			}
			m.drainAndFinish(p, outcome, cause)
		}
	}
}

func (m *Manager) finishScan(res scanResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.Mode != Scanning {
		return
	}
	if res.err != nil || res.volume == nil || len(res.volume.Titles) == 0 {
		err := res.err
		if err == nil {
			err = volume.ErrNoTitles
		}
		m.status.Error = err.Error()
		m.status.ErrorCode = errcode.CodeOf(err)
		m.setModeLocked(InvalidVolume)
		logging.WarnWithContext(m.logger, "volume has no usable titles", "scan_invalid_volume",
			logging.String("volume", m.status.Volume),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "point the scan at a VIDEO_TS directory or an MPEG-2 program stream"),
			logging.String(logging.FieldImpact, "nothing to rip"),
		)
		return
	}
	m.volume = res.volume
	m.status.Titles = cloneTitles(res.volume.Titles)
	m.setModeLocked(ReadyToRip)
	m.logger.Info("scan complete",
		logging.String(logging.FieldEventType, "scan_complete"),
		logging.String("volume", res.volume.Path),
		logging.Int("titles", len(res.volume.Titles)),
	)
}

// drainAndFinish tears p down and publishes the outcome. A muxer failure
// turns an otherwise clean outcome into Error.
func (m *Manager) drainAndFinish(p *pipeline, outcome Mode, cause error) {
	muxErr := p.drain()
	if muxErr != nil && !errors.Is(muxErr, context.Canceled) && cause == nil {
		if outcome == Done || !errors.Is(muxErr, mux.ErrNoData) {
			outcome, cause = Error, muxErr
		}
	}
	m.finishRip(p, outcome, cause)
}

func (m *Manager) finishRip(p *pipeline, outcome Mode, cause error) {
	now := m.now()
	frames := p.frames()
	size := p.size()

	m.mu.Lock()
	m.progress.finish(now)
	m.rip = nil
	st := &m.status
	st.Elapsed = m.progress.elapsed(now)
	st.Frames = frames
	if outcome == Done {
		st.Position = 1
		st.ETA = 0
	}
	if cause != nil {
		st.Error = cause.Error()
		st.ErrorCode = errcode.CodeOf(cause)
	}
	m.setModeLocked(outcome)
	snapshot := *st
	m.mu.Unlock()

	logger := m.logger.With(logging.String(logging.FieldJobID, p.jobID))
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "rip_finished"),
		logging.String("outcome", outcome.String()),
		logging.String("output", p.title.Output),
		logging.Int64("frames", frames),
		logging.Int64("bytes", size),
		logging.Duration("elapsed", snapshot.Elapsed),
		logging.Float64("avg_fps", snapshot.AvgFPS),
	}
	if cause != nil {
		attrs = append(attrs, logging.String(logging.FieldErrorCode, snapshot.ErrorCode.String()), logging.Error(cause))
	}
	logger.Info("rip finished", logging.Args(attrs...)...)

	if m.store == nil {
		return
	}
	out := queue.Outcome{Frames: frames, Bytes: size}
	switch outcome {
	case Done:
		out.Status = queue.StatusDone
	case Canceled:
		out.Status = queue.StatusCanceled
	default:
		out.Status = queue.StatusError
		out.ErrorCode = snapshot.ErrorCode.String()
		out.ErrorDetail = snapshot.Error
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Finish(ctx, p.jobID, out); err != nil {
		logging.WarnWithContext(logger, "failed to record rip outcome", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "history shows the rip as still encoding"),
		)
	}
}
