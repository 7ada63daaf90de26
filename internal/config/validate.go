package config

import (
	"errors"
	"fmt"

	"ripline/internal/title"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRip(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRip() error {
	if c.Rip.CPUCount < 0 {
		return errors.New("rip.cpu_count must be zero (auto) or positive")
	}
	container, err := title.ParseContainer(c.Rip.Container)
	if err != nil {
		return fmt.Errorf("rip.container: %w", err)
	}
	video, err := title.ParseVideoCodec(c.Rip.VideoCodec)
	if err != nil {
		return fmt.Errorf("rip.video_codec: %w", err)
	}
	audio, err := title.ParseAudioCodec(c.Rip.AudioCodec)
	if err != nil {
		return fmt.Errorf("rip.audio_codec: %w", err)
	}
	if err := title.CheckCompatible(container, video, audio); err != nil {
		return fmt.Errorf("rip: %w", err)
	}
	if c.Rip.MaxWidth < 16 || c.Rip.MaxHeight < 16 {
		return errors.New("rip.max_width and rip.max_height must be at least 16")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.IdleIntervalMs > 1000 {
		return errors.New("workflow.idle_interval_ms must not exceed 1000")
	}
	return nil
}
