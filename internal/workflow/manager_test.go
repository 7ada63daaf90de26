package workflow_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"ripline/internal/buffer"
	"ripline/internal/codec"
	"ripline/internal/config"
	"ripline/internal/errcode"
	"ripline/internal/preflight"
	"ripline/internal/queue"
	"ripline/internal/testsupport"
	"ripline/internal/title"
	"ripline/internal/workflow"
)

const titlePacks = 60

func newManager(t *testing.T, cfg *config.Config, opts workflow.Options) *workflow.Manager {
	t.Helper()
	m := workflow.NewManager(cfg, opts)
	t.Cleanup(m.Close)
	return m
}

func writeVolume(t *testing.T, cfg *config.Config, audioSubs []byte) string {
	t.Helper()
	dir := filepath.Join(testsupport.BaseDir(cfg), "disc")
	testsupport.WriteProgramStream(t, filepath.Join(dir, "VIDEO_TS", "VTS_01_1.VOB"), titlePacks, audioSubs, 0)
	return dir
}

func waitMode(t *testing.T, m *workflow.Manager, want workflow.Mode) workflow.Status {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		st := m.Status()
		if st.Mode == want {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("mode = %s, want %s (error %q)", st.Mode, want, st.Error)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func scanReady(t *testing.T, m *workflow.Manager, dir string) workflow.Status {
	t.Helper()
	if err := m.ScanVolume(dir); err != nil {
		t.Fatalf("ScanVolume: %v", err)
	}
	return waitMode(t, m, workflow.ReadyToRip)
}

// fakeClock is advanced by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// blockingEncoder holds the first frame until released.
type blockingEncoder struct {
	codec.Encoder
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (e *blockingEncoder) Encode(in *buffer.Buffer) ([]*buffer.Buffer, error) {
	e.once.Do(func() { close(e.entered) })
	<-e.release
	return e.Encoder.Encode(in)
}

func blockingRegistry() (*codec.Registry, *blockingEncoder) {
	enc := &blockingEncoder{
		Encoder: codec.NewPassthroughVideo(codec.DefaultGOP),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	reg := codec.Default()
	reg.RegisterVideo(title.VideoMPEG4, func(*title.Title) (codec.Encoder, error) { return enc, nil })
	return reg, enc
}

type failingEncoder struct {
	codec.Encoder
}

func (failingEncoder) Encode(*buffer.Buffer) ([]*buffer.Buffer, error) {
	return nil, errors.New("encoder exploded")
}

func TestScanAndRipToAVI(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	m := newManager(t, cfg, workflow.Options{Store: store})
	dir := writeVolume(t, cfg, []byte{0x80})

	st := scanReady(t, m, dir)
	if len(st.Titles) != 1 {
		t.Fatalf("titles = %d, want 1", len(st.Titles))
	}
	if len(st.Titles[0].Audios) != 1 {
		t.Fatalf("audio tracks = %d, want 1", len(st.Titles[0].Audios))
	}
	if !m.NeedUpdate() {
		t.Fatal("expected NeedUpdate after scan")
	}
	if m.NeedUpdate() {
		t.Fatal("NeedUpdate should reset after being read")
	}

	if err := m.StartRip(workflow.RipRequest{Title: 1}); err != nil {
		t.Fatalf("StartRip: %v", err)
	}
	st = waitMode(t, m, workflow.Done)
	if st.Frames != titlePacks {
		t.Fatalf("frames = %d, want %d", st.Frames, titlePacks)
	}
	if st.Position != 1 {
		t.Fatalf("position = %v, want 1", st.Position)
	}
	if filepath.Dir(st.Output) != cfg.Paths.OutputDir || filepath.Ext(st.Output) != ".avi" {
		t.Fatalf("unexpected output %q", st.Output)
	}

	data, err := os.ReadFile(st.Output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Contains(data, []byte("idx1")) {
		t.Fatal("output is not a finalized AVI file")
	}
	if _, err := os.Stat(st.Output + ".lock"); !os.IsNotExist(err) {
		t.Fatalf("lock file still present: %v", err)
	}

	job, err := store.Get(t.Context(), st.JobID)
	if err != nil || job == nil {
		t.Fatalf("history job: %v %v", job, err)
	}
	if job.Status != queue.StatusDone || job.Frames != titlePacks || job.Bytes != int64(len(data)) {
		t.Fatalf("unexpected history row %+v", job)
	}
}

func TestRipContainers(t *testing.T) {
	cases := []struct {
		container string
		audio     string
		magic     []byte
		twoPass   bool
	}{
		{container: "avi", audio: "mp3", magic: []byte("RIFF"), twoPass: true},
		{container: "mp4", audio: "aac", magic: []byte("ftyp")},
		{container: "mp4", audio: "mp3", magic: []byte("ftyp"), twoPass: true},
		{container: "ogm", audio: "vorbis", magic: []byte("OggS")},
		{container: "ogm", audio: "mp3", magic: []byte("OggS"), twoPass: true},
	}
	for _, tc := range cases {
		name := tc.container + "-" + tc.audio
		if tc.twoPass {
			name += "-2pass"
		}
		t.Run(name, func(t *testing.T) {
			opts := []testsupport.ConfigOption{testsupport.WithContainer(tc.container, tc.audio)}
			if tc.twoPass {
				opts = append(opts, testsupport.WithTwoPass())
			}
			cfg := testsupport.NewConfig(t, opts...)
			m := newManager(t, cfg, workflow.Options{})
			scanReady(t, m, writeVolume(t, cfg, []byte{0x80, 0x81}))

			if err := m.StartRip(workflow.RipRequest{Title: 1, AudioTracks: []int{0, 1}}); err != nil {
				t.Fatalf("StartRip: %v", err)
			}
			st := waitMode(t, m, workflow.Done)
			wantPasses := 1
			if tc.twoPass {
				wantPasses = 2
			}
			if st.PassCount != wantPasses {
				t.Fatalf("pass count = %d, want %d", st.PassCount, wantPasses)
			}
			if st.Frames != titlePacks {
				t.Fatalf("frames = %d, want %d", st.Frames, titlePacks)
			}
			data, err := os.ReadFile(st.Output)
			if err != nil {
				t.Fatalf("read output: %v", err)
			}
			if !bytes.Contains(data[:min(len(data), 16)], tc.magic) {
				t.Fatalf("output does not start with %q", tc.magic)
			}
			entries, err := os.ReadDir(cfg.Paths.StatsDir)
			if err != nil {
				t.Fatalf("read stats dir: %v", err)
			}
			if len(entries) != 0 {
				t.Fatalf("stats files left behind: %d", len(entries))
			}
		})
	}
}

func TestStopCancelsRip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	reg, enc := blockingRegistry()
	m := newManager(t, cfg, workflow.Options{Registry: reg, Store: store})
	scanReady(t, m, writeVolume(t, cfg, []byte{0x80}))

	if err := m.StartRip(workflow.RipRequest{Title: 1}); err != nil {
		t.Fatalf("StartRip: %v", err)
	}
	<-enc.entered
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := m.Status().Mode; got != workflow.Stopping {
		t.Fatalf("mode after Stop = %s, want stopping", got)
	}
	if err := m.Stop(); !errors.Is(err, workflow.ErrInvalidMode) {
		t.Fatalf("second Stop err = %v, want ErrInvalidMode", err)
	}
	close(enc.release)

	st := waitMode(t, m, workflow.Canceled)
	if st.Error != "" {
		t.Fatalf("canceled rip reported error %q", st.Error)
	}
	job, err := store.Get(t.Context(), st.JobID)
	if err != nil || job == nil {
		t.Fatalf("history job: %v %v", job, err)
	}
	if job.Status != queue.StatusCanceled {
		t.Fatalf("history status = %s, want canceled", job.Status)
	}

	// The encoder no longer blocks, so a restart runs to completion.
	if err := m.StartRip(workflow.RipRequest{Title: 1}); err != nil {
		t.Fatalf("StartRip after cancel: %v", err)
	}
	st = waitMode(t, m, workflow.Done)
	if st.Frames != titlePacks {
		t.Fatalf("frames after restart = %d, want %d", st.Frames, titlePacks)
	}
}

func TestPauseExcludesSuspendedTime(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := newFakeClock()
	reg, enc := blockingRegistry()
	m := newManager(t, cfg, workflow.Options{Registry: reg, Now: clock.Now})
	scanReady(t, m, writeVolume(t, cfg, nil))

	if err := m.StartRip(workflow.RipRequest{Title: 1}); err != nil {
		t.Fatalf("StartRip: %v", err)
	}
	<-enc.entered

	clock.Advance(10 * time.Second)
	if err := m.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := m.Pause(); !errors.Is(err, workflow.ErrInvalidMode) {
		t.Fatalf("second Pause err = %v, want ErrInvalidMode", err)
	}
	clock.Advance(100 * time.Second)
	if got := m.Status().Elapsed; got != 10*time.Second {
		t.Fatalf("elapsed while suspended = %s, want 10s", got)
	}
	if err := m.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	clock.Advance(5 * time.Second)
	if got := m.Status().Elapsed; got != 15*time.Second {
		t.Fatalf("elapsed = %s, want 15s", got)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	close(enc.release)
	st := waitMode(t, m, workflow.Canceled)
	if st.Elapsed != 15*time.Second {
		t.Fatalf("final elapsed = %s, want 15s", st.Elapsed)
	}
}

func TestStopWhileSuspended(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg, enc := blockingRegistry()
	m := newManager(t, cfg, workflow.Options{Registry: reg})
	scanReady(t, m, writeVolume(t, cfg, []byte{0x80}))

	if err := m.StartRip(workflow.RipRequest{Title: 1}); err != nil {
		t.Fatalf("StartRip: %v", err)
	}
	<-enc.entered
	if err := m.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	close(enc.release)
	waitMode(t, m, workflow.Canceled)
}

func TestEncoderFailureEndsInError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := codec.Default()
	reg.RegisterVideo(title.VideoMPEG4, func(*title.Title) (codec.Encoder, error) {
		return failingEncoder{Encoder: codec.NewPassthroughVideo(codec.DefaultGOP)}, nil
	})
	m := newManager(t, cfg, workflow.Options{Registry: reg})
	scanReady(t, m, writeVolume(t, cfg, []byte{0x80}))

	if err := m.StartRip(workflow.RipRequest{Title: 1}); err != nil {
		t.Fatalf("StartRip: %v", err)
	}
	st := waitMode(t, m, workflow.Error)
	if st.ErrorCode != errcode.EncoderEncodeFailed {
		t.Fatalf("error code = %s, want %s", st.ErrorCode, errcode.EncoderEncodeFailed)
	}
	if st.Error == "" {
		t.Fatal("expected an error message")
	}
}

func TestInvalidVolume(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	m := newManager(t, cfg, workflow.Options{})
	empty := t.TempDir()

	if err := m.ScanVolume(empty); err != nil {
		t.Fatalf("ScanVolume: %v", err)
	}
	st := waitMode(t, m, workflow.InvalidVolume)
	if st.Error == "" {
		t.Fatal("expected scan error in status")
	}
	if err := m.StartRip(workflow.RipRequest{Title: 1}); !errors.Is(err, workflow.ErrInvalidMode) {
		t.Fatalf("StartRip err = %v, want ErrInvalidMode", err)
	}

	// Rescanning a valid volume recovers.
	scanReady(t, m, writeVolume(t, cfg, nil))
}

func TestCommandsRejectedInWrongMode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	m := newManager(t, cfg, workflow.Options{})

	if got := m.Status().Mode; got != workflow.NeedVolume {
		t.Fatalf("initial mode = %s", got)
	}
	for name, cmd := range map[string]func() error{
		"start":  func() error { return m.StartRip(workflow.RipRequest{Title: 1}) },
		"pause":  m.Pause,
		"resume": m.Resume,
		"stop":   m.Stop,
	} {
		if err := cmd(); !errors.Is(err, workflow.ErrInvalidMode) {
			t.Errorf("%s err = %v, want ErrInvalidMode", name, err)
		}
	}

	reg, enc := blockingRegistry()
	m2 := newManager(t, cfg, workflow.Options{Registry: reg})
	dir := writeVolume(t, cfg, nil)
	scanReady(t, m2, dir)
	if err := m2.StartRip(workflow.RipRequest{Title: 1}); err != nil {
		t.Fatalf("StartRip: %v", err)
	}
	<-enc.entered
	if err := m2.ScanVolume(dir); !errors.Is(err, workflow.ErrInvalidMode) {
		t.Errorf("scan while encoding err = %v, want ErrInvalidMode", err)
	}
	if err := m2.StartRip(workflow.RipRequest{Title: 1}); !errors.Is(err, workflow.ErrInvalidMode) {
		t.Errorf("second StartRip err = %v, want ErrInvalidMode", err)
	}
	if err := m2.Resume(); !errors.Is(err, workflow.ErrInvalidMode) {
		t.Errorf("resume while encoding err = %v, want ErrInvalidMode", err)
	}
	close(enc.release)
	waitMode(t, m2, workflow.Done)
}

func TestStartRipValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	m := newManager(t, cfg, workflow.Options{})
	scanReady(t, m, writeVolume(t, cfg, []byte{0x80}))

	if err := m.StartRip(workflow.RipRequest{Title: 7}); err == nil {
		t.Fatal("expected error for unknown title")
	}
	if err := m.StartRip(workflow.RipRequest{Title: 1, AudioTracks: []int{3}}); err == nil {
		t.Fatal("expected error for unknown audio track")
	}
	if err := m.StartRip(workflow.RipRequest{Title: 1, Container: "avi", AudioCodec: "vorbis"}); err == nil {
		t.Fatal("expected error for vorbis in avi")
	}
	if got := m.Status().Mode; got != workflow.ReadyToRip {
		t.Fatalf("mode after rejected requests = %s, want ready_to_rip", got)
	}
}

func TestStartRipPreflightFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Rip.MinFreeMiB = 1 << 40
	m := newManager(t, cfg, workflow.Options{})
	scanReady(t, m, writeVolume(t, cfg, nil))

	err := m.StartRip(workflow.RipRequest{Title: 1})
	if !errors.Is(err, preflight.ErrFailed) {
		t.Fatalf("StartRip err = %v, want preflight failure", err)
	}
	if got := m.Status().Mode; got != workflow.ReadyToRip {
		t.Fatalf("mode = %s, want ready_to_rip", got)
	}
}

func TestStartRipOutputLocked(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	m := newManager(t, cfg, workflow.Options{})
	scanReady(t, m, writeVolume(t, cfg, nil))

	output := filepath.Join(cfg.Paths.OutputDir, "locked.avi")
	lock := flock.New(output + ".lock")
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: %v %v", locked, err)
	}
	defer lock.Unlock()

	if err := m.StartRip(workflow.RipRequest{Title: 1, Output: output}); err == nil {
		t.Fatal("expected error while output is locked")
	}
	if got := m.Status().Mode; got != workflow.ReadyToRip {
		t.Fatalf("mode = %s, want ready_to_rip", got)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Fatalf("output should not exist: %v", err)
	}
}

func TestCloseDrainsActiveRip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg, enc := blockingRegistry()
	m := workflow.NewManager(cfg, workflow.Options{Registry: reg})
	scanReady(t, m, writeVolume(t, cfg, nil))
	if err := m.StartRip(workflow.RipRequest{Title: 1}); err != nil {
		t.Fatalf("StartRip: %v", err)
	}
	<-enc.entered

	closed := make(chan struct{})
	go func() {
		m.Close()
		close(closed)
	}()
	close(enc.release)
	select {
	case <-closed:
	case <-time.After(10 * time.Second):
		t.Fatal("Close did not return")
	}
	if got := m.Status().Mode; got != workflow.Canceled {
		t.Fatalf("mode after Close = %s, want canceled", got)
	}
}
