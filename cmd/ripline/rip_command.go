package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"ripline/internal/encoding"
	"ripline/internal/logging"
	"ripline/internal/workflow"
)

const barMax = 1000

func newRipCommand(ctx *commandContext) *cobra.Command {
	var req workflow.RipRequest
	var twoPass bool

	cmd := &cobra.Command{
		Use:   "rip [path]",
		Short: "Encode one title",
		Long: "Scan the volume and encode one title in the foreground.\n\n" +
			"SIGINT or SIGTERM stops the rip and finalizes what was written so far.\n" +
			"SIGUSR1 toggles pause.",
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
			if cmd.Flags().Changed("two-pass") {
				req.TwoPass = &twoPass
			}

			out := cmd.OutOrStdout()
			interactive := shouldColorize(out)
			s, err := ctx.newSession(cmd, !interactive)
			if err != nil {
				return err
			}
			defer s.Close()

			if _, err := scanVolume(s.manager, path, cfg.StatusInterval()); err != nil {
				return err
			}
			return runRip(cmd, s, req, interactive)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&req.Title, "title", "t", 1, "Title index from scan")
	flags.IntSliceVarP(&req.AudioTracks, "audio", "a", nil, "Audio track indexes to encode (at most two)")
	flags.StringVarP(&req.Output, "output", "o", "", "Output file (default: output_dir/<title name>.<container>)")
	flags.StringVar(&req.Container, "container", "", "Container: avi, mp4 or ogm")
	flags.StringVar(&req.VideoCodec, "video-codec", "", "Video codec: mpeg4, xvid or h264")
	flags.StringVar(&req.AudioCodec, "audio-codec", "", "Audio codec: mp3, aac or vorbis")
	flags.IntVar(&req.VideoBitrate, "video-bitrate", 0, "Video bitrate in kbit/s")
	flags.IntVar(&req.AudioBitrate, "audio-bitrate", 0, "Audio bitrate in kbit/s")
	flags.BoolVar(&twoPass, "two-pass", false, "Use two-pass video encoding")
	return cmd
}

func runRip(cmd *cobra.Command, s *session, req workflow.RipRequest, interactive bool) error {
	m := s.manager
	out := cmd.OutOrStdout()

	signals := make(chan os.Signal, 4)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(signals)

	if err := m.StartRip(req); err != nil {
		return err
	}
	m.NeedUpdate()

	var bar *progressbar.ProgressBar
	if interactive {
		bar = newRipBar(out)
	}
	ticker := time.NewTicker(s.cfg.StatusInterval())
	defer ticker.Stop()

	var done <-chan struct{}
	if c := cmd.Context(); c != nil {
		done = c.Done()
	}
	for {
		select {
		case sig := <-signals:
			handleRipSignal(m, sig, s)
		case <-done:
			done = nil
			stopRip(m, s)
		case <-ticker.C:
		}

		st := m.Status()
		if bar != nil {
			updateRipBar(bar, st)
		} else if m.NeedUpdate() && !st.Mode.Terminal() {
			fmt.Fprintf(out, "%s: %s\n", st.Output, st.Mode)
		}
		if st.Mode.Terminal() {
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, renderRipSummary(st, shouldColorize(out)))
			if st.Mode == workflow.Error {
				return fmt.Errorf("rip failed: %s", st.Error)
			}
			return nil
		}
	}
}

func handleRipSignal(m *workflow.Manager, sig os.Signal, s *session) {
	if sig != syscall.SIGUSR1 {
		stopRip(m, s)
		return
	}
	err := m.Pause()
	if errors.Is(err, workflow.ErrInvalidMode) {
		err = m.Resume()
	}
	if err != nil && !errors.Is(err, workflow.ErrInvalidMode) {
		logging.WarnWithContext(s.logger, "pause toggle failed", "rip_pause_failed", logging.Error(err))
	}
}

func stopRip(m *workflow.Manager, s *session) {
	if err := m.Stop(); err != nil && !errors.Is(err, workflow.ErrInvalidMode) {
		logging.WarnWithContext(s.logger, "stop failed", "rip_stop_failed", logging.Error(err))
	}
}

func newRipBar(w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(barMax,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Starting"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionEnableColorCodes(true),
	)
}

func updateRipBar(bar *progressbar.ProgressBar, st workflow.Status) {
	desc := encoding.ProgressMessage(st.Pass, st.PassCount, st.PassPercent(), st.FPS, st.ETA)
	switch st.Mode {
	case workflow.Suspended:
		desc = "[yellow]Paused[reset] " + desc
	case workflow.Stopping:
		desc = "Stopping"
	}
	bar.Describe(desc)
	_ = bar.Set(int(st.Position * barMax))
}
