package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ripline/internal/config"
	"ripline/internal/language"
	"ripline/internal/title"
	"ripline/internal/workflow"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "List the titles on a volume",
		Long: "Scan a VIDEO_TS directory, a mounted DVD or a single program stream file and list its titles.\n" +
			"Without a path the configured device's mount point is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := resolveVolumePath(cfg, args)
			if err != nil {
				return err
			}
			s, err := ctx.newSession(cmd, !asJSON)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := scanVolume(s.manager, path, cfg.StatusInterval())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, titleViews(st.Titles))
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTitles(path, st.Titles))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print titles as JSON")
	return cmd
}

// scanVolume scans path and waits for the result.
func scanVolume(m *workflow.Manager, path string, poll time.Duration) (workflow.Status, error) {
	if err := m.ScanVolume(path); err != nil {
		return workflow.Status{}, err
	}
	st := waitForMode(m, poll, workflow.ReadyToRip, workflow.InvalidVolume)
	if st.Mode == workflow.InvalidVolume {
		return st, fmt.Errorf("scan %s: %s", path, st.Error)
	}
	return st, nil
}

// waitForMode polls until the manager reaches one of modes.
func waitForMode(m *workflow.Manager, poll time.Duration, modes ...workflow.Mode) workflow.Status {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		st := m.Status()
		for _, mode := range modes {
			if st.Mode == mode {
				return st
			}
		}
		<-ticker.C
	}
}

func resolveVolumePath(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return config.ExpandPath(args[0])
	}
	device := strings.TrimSpace(cfg.Volume.Device)
	if device == "" {
		return "", errors.New("no path given and no device configured")
	}
	mount, err := mountPoint(device)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", device, err)
	}
	return mount, nil
}

func renderTitles(path string, titles []title.Title) string {
	cols := []column{
		{header: "#", align: alignRight},
		{header: "Name"},
		{header: "Size", align: alignRight},
		{header: "Picture"},
		{header: "FPS", align: alignRight},
		{header: "Audio"},
	}
	rows := make([][]string, 0, len(titles))
	for _, t := range titles {
		audio := make([]string, 0, len(t.Audios))
		for i, a := range t.Audios {
			label := fmt.Sprintf("%d: %s", i, a.Label())
			if a.StartDelay > 0 {
				label += fmt.Sprintf(" +%s", a.StartDelay)
			}
			audio = append(audio, label)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", t.Index),
			t.Name(),
			formatBytes(t.Length),
			fmt.Sprintf("%dx%d", t.InWidth, t.InHeight),
			fmt.Sprintf("%.3f", t.FrameRate()),
			strings.Join(audio, "\n"),
		})
	}
	return renderTable(path, cols, rows)
}

type audioView struct {
	Index      int     `json:"index"`
	StreamID   string  `json:"stream_id"`
	Language   string  `json:"language"`
	Code       string  `json:"language_code,omitempty"`
	StartDelay float64 `json:"start_delay_seconds,omitempty"`
}

type titleView struct {
	Index     int         `json:"index"`
	Name      string      `json:"name"`
	Source    string      `json:"source"`
	Bytes     int64       `json:"bytes"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	FrameRate float64     `json:"frame_rate"`
	Audio     []audioView `json:"audio"`
}

func titleViews(titles []title.Title) []titleView {
	views := make([]titleView, 0, len(titles))
	for _, t := range titles {
		v := titleView{
			Index:     t.Index,
			Name:      t.Name(),
			Source:    t.Source,
			Bytes:     t.Length,
			Width:     t.InWidth,
			Height:    t.InHeight,
			FrameRate: t.FrameRate(),
			Audio:     make([]audioView, 0, len(t.Audios)),
		}
		for i, a := range t.Audios {
			v.Audio = append(v.Audio, audioView{
				Index:      i,
				StreamID:   fmt.Sprintf("0x%x", a.ID),
				Language:   a.LanguageName(),
				Code:       language.Normalize(a.Language),
				StartDelay: a.StartDelay.Seconds(),
			})
		}
		views = append(views, v)
	}
	return views
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
