package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	StatsDir  string `toml:"stats_dir"`
	OutputDir string `toml:"output_dir"`
}

// Rip contains encode defaults applied to new rip requests.
type Rip struct {
	CPUCount        int    `toml:"cpu_count"`
	Container       string `toml:"container"`
	VideoCodec      string `toml:"video_codec"`
	AudioCodec      string `toml:"audio_codec"`
	VideoBitrate    int    `toml:"video_bitrate"`
	AudioBitrate    int    `toml:"audio_bitrate"`
	AudioSampleRate int    `toml:"audio_sample_rate"`
	TwoPass         bool   `toml:"two_pass"`
	MaxWidth        int    `toml:"max_width"`
	MaxHeight       int    `toml:"max_height"`
	MinFreeMiB      int    `toml:"min_free_mib"`
}

// Fifo sizes the queues between stages.
type Fifo struct {
	DemuxCapacity  int `toml:"demux_capacity"`
	StageCapacity  int `toml:"stage_capacity"`
	OutputCapacity int `toml:"output_capacity"`
}

// Workflow contains manager timing.
type Workflow struct {
	IdleIntervalMs   int `toml:"idle_interval_ms"`
	DoneGraceMs      int `toml:"done_grace_ms"`
	StatusIntervalMs int `toml:"status_interval_ms"`
}

// Volume contains source device settings.
type Volume struct {
	Device     string `toml:"device"`
	ProbePacks int    `toml:"probe_packs"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// History controls the rip job history database.
type History struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values for ripline.
//
// Configuration sections by subsystem:
//   - Paths: state, log, stats and output directories
//   - Rip: encode defaults (container, codecs, bitrates, two-pass)
//   - Fifo: queue capacities between stages
//   - Workflow: manager timing
//   - Volume: optical device and scan probe depth
//   - Logging: log format and level
//   - History: rip history database
type Config struct {
	Paths    Paths    `toml:"paths"`
	Rip      Rip      `toml:"rip"`
	Fifo     Fifo     `toml:"fifo"`
	Workflow Workflow `toml:"workflow"`
	Volume   Volume   `toml:"volume"`
	Logging  Logging  `toml:"logging"`
	History  History  `toml:"history"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/ripline/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("ripline.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state, log and stats directories. The output
// directory is created on a best-effort basis so scans work when the target
// disk is offline.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.StatsDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		_ = os.MkdirAll(c.Paths.OutputDir, 0o755)
	}
	return nil
}

// HistoryPath returns the rip history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// IdleInterval returns the worker idle sleep.
func (c *Config) IdleInterval() time.Duration {
	return time.Duration(c.Workflow.IdleIntervalMs) * time.Millisecond
}

// DoneGrace returns the pause between natural end of stream and teardown.
func (c *Config) DoneGrace() time.Duration {
	return time.Duration(c.Workflow.DoneGraceMs) * time.Millisecond
}

// StatusInterval returns how often front-ends poll the manager.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Workflow.StatusIntervalMs) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
