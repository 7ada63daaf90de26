package workflow

import (
	"fmt"
	"path/filepath"
	"strings"

	"ripline/internal/config"
	"ripline/internal/title"
)

// RipRequest selects what StartRip encodes. Empty fields fall back to the
// [rip] section of the configuration.
type RipRequest struct {
	// Title is the 1-based title index from the scan.
	Title int
	// AudioTracks are indexes into the title's audio list, at most two. Nil
	// selects the first track when the title has any.
	AudioTracks []int
	// Output is the file to write. Empty derives a name in the output
	// directory from the title name and container.
	Output string

	Container    string
	VideoCodec   string
	AudioCodec   string
	VideoBitrate int
	AudioBitrate int
	// TwoPass overrides the configured pass count when set.
	TwoPass *bool
}

// prepareTitle copies src and applies the encode settings of req.
func prepareTitle(cfg *config.Config, src *title.Title, req RipRequest) (*title.Title, error) {
	t := cloneTitle(src)

	pick := func(value, fallback string) string {
		if strings.TrimSpace(value) != "" {
			return value
		}
		return fallback
	}
	container, err := title.ParseContainer(pick(req.Container, cfg.Rip.Container))
	if err != nil {
		return nil, err
	}
	video, err := title.ParseVideoCodec(pick(req.VideoCodec, cfg.Rip.VideoCodec))
	if err != nil {
		return nil, err
	}
	audio, err := title.ParseAudioCodec(pick(req.AudioCodec, cfg.Rip.AudioCodec))
	if err != nil {
		return nil, err
	}
	t.Container = container
	t.VideoCodec = video
	t.Bitrate = cfg.Rip.VideoBitrate
	if req.VideoBitrate > 0 {
		t.Bitrate = req.VideoBitrate
	}
	t.TwoPass = cfg.Rip.TwoPass
	if req.TwoPass != nil {
		t.TwoPass = *req.TwoPass
	}

	audioBitrate := cfg.Rip.AudioBitrate
	if req.AudioBitrate > 0 {
		audioBitrate = req.AudioBitrate
	}
	selected, err := selectAudio(src.Audios, req.AudioTracks)
	if err != nil {
		return nil, err
	}
	t.Audios = t.Audios[:0]
	for _, a := range selected {
		a.Codec = audio
		a.OutBitrate = audioBitrate
		a.OutSampleRate = cfg.Rip.AudioSampleRate
		a.InBitrate = 0
		t.Audios = append(t.Audios, a)
	}

	if cfg.Rip.MaxWidth > 0 && (t.OutWidthMax == 0 || t.OutWidthMax > cfg.Rip.MaxWidth) {
		t.OutWidthMax = cfg.Rip.MaxWidth
	}
	if cfg.Rip.MaxHeight > 0 && (t.OutHeightMax == 0 || t.OutHeightMax > cfg.Rip.MaxHeight) {
		t.OutHeightMax = cfg.Rip.MaxHeight
	}
	t.DefaultGeometry()
	t.FixPictureSettings()

	t.Output = req.Output
	if strings.TrimSpace(t.Output) == "" {
		t.Output = filepath.Join(cfg.Paths.OutputDir, t.Name()+container.Extension())
	}
	if !filepath.IsAbs(t.Output) {
		abs, err := filepath.Abs(t.Output)
		if err != nil {
			return nil, fmt.Errorf("resolve output path: %w", err)
		}
		t.Output = abs
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func selectAudio(audios []title.Audio, indexes []int) ([]title.Audio, error) {
	if indexes == nil {
		if len(audios) == 0 {
			return nil, nil
		}
		return audios[:1], nil
	}
	if len(indexes) > 2 {
		return nil, fmt.Errorf("at most two audio tracks can be selected, got %d", len(indexes))
	}
	out := make([]title.Audio, 0, len(indexes))
	seen := make(map[int]bool, len(indexes))
	for _, idx := range indexes {
		if idx < 0 || idx >= len(audios) {
			return nil, fmt.Errorf("audio track %d out of range (title has %d)", idx, len(audios))
		}
		if seen[idx] {
			return nil, fmt.Errorf("audio track %d selected twice", idx)
		}
		seen[idx] = true
		out = append(out, audios[idx])
	}
	return out, nil
}

func cloneTitle(src *title.Title) *title.Title {
	t := *src
	t.Audios = append([]title.Audio(nil), src.Audios...)
	return &t
}

func cloneTitles(src []*title.Title) []title.Title {
	out := make([]title.Title, 0, len(src))
	for _, t := range src {
		out = append(out, *cloneTitle(t))
	}
	return out
}

func copyTitles(src []title.Title) []title.Title {
	if src == nil {
		return nil
	}
	out := make([]title.Title, len(src))
	for i := range src {
		out[i] = *cloneTitle(&src[i])
	}
	return out
}
