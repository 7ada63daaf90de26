package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRip()
	c.normalizeFifo()
	c.normalizeWorkflow()
	c.normalizeVolume()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StatsDir) == "" {
		c.Paths.StatsDir = os.TempDir()
	}
	if c.Paths.StatsDir, err = expandPath(c.Paths.StatsDir); err != nil {
		return fmt.Errorf("paths.stats_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRip() {
	c.Rip.Container = strings.ToLower(strings.TrimSpace(c.Rip.Container))
	if c.Rip.Container == "" {
		c.Rip.Container = defaultContainer
	}
	c.Rip.VideoCodec = strings.ToLower(strings.TrimSpace(c.Rip.VideoCodec))
	if c.Rip.VideoCodec == "" {
		c.Rip.VideoCodec = defaultVideoCodec
	}
	c.Rip.AudioCodec = strings.ToLower(strings.TrimSpace(c.Rip.AudioCodec))
	if c.Rip.AudioCodec == "" {
		c.Rip.AudioCodec = defaultAudioCodec
	}
	if c.Rip.VideoBitrate <= 0 {
		c.Rip.VideoBitrate = defaultVideoBitrate
	}
	if c.Rip.AudioBitrate <= 0 {
		c.Rip.AudioBitrate = defaultAudioBitrate
	}
	if c.Rip.AudioSampleRate <= 0 {
		c.Rip.AudioSampleRate = defaultAudioSampleRate
	}
	if c.Rip.MaxWidth <= 0 {
		c.Rip.MaxWidth = defaultMaxWidth
	}
	if c.Rip.MaxHeight <= 0 {
		c.Rip.MaxHeight = defaultMaxHeight
	}
	if c.Rip.MinFreeMiB < 0 {
		c.Rip.MinFreeMiB = 0
	}
}

func (c *Config) normalizeFifo() {
	if c.Fifo.DemuxCapacity <= 0 {
		c.Fifo.DemuxCapacity = defaultDemuxCapacity
	}
	if c.Fifo.StageCapacity <= 0 {
		c.Fifo.StageCapacity = defaultStageCapacity
	}
	if c.Fifo.OutputCapacity <= 0 {
		c.Fifo.OutputCapacity = defaultOutputCapacity
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.IdleIntervalMs <= 0 {
		c.Workflow.IdleIntervalMs = defaultIdleIntervalMs
	}
	if c.Workflow.DoneGraceMs < 0 {
		c.Workflow.DoneGraceMs = 0
	}
	if c.Workflow.StatusIntervalMs <= 0 {
		c.Workflow.StatusIntervalMs = defaultStatusMs
	}
}

func (c *Config) normalizeVolume() {
	c.Volume.Device = strings.TrimSpace(c.Volume.Device)
	if c.Volume.ProbePacks <= 0 {
		c.Volume.ProbePacks = defaultProbePacks
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "auto":
		c.Logging.Format = "auto"
	case "console", "json":
	default:
		c.Logging.Format = "auto"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
