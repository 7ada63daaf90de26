package testsupport

import (
	"path/filepath"
	"testing"

	"ripline/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StatsDir = filepath.Join(base, "stats")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Rip.CPUCount = 2
	cfgVal.Rip.MinFreeMiB = 0
	cfgVal.Workflow.DoneGraceMs = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithTwoPass enables two-pass encoding on the test config.
func WithTwoPass() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Rip.TwoPass = true
	}
}

// WithContainer selects the output container and a compatible audio codec.
func WithContainer(container, audioCodec string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Rip.Container = container
		b.cfg.Rip.AudioCodec = audioCodec
	}
}

// WithoutHistory disables the history database.
func WithoutHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = false
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
