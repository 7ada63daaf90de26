package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ripline/internal/logging"
	"ripline/internal/title"
	"ripline/internal/volume"
	"ripline/internal/workflow"
)

// mountPoint is replaced in tests.
var mountPoint = volume.MountPoint

const (
	mountWait     = 30 * time.Second
	mountInterval = time.Second
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rip the longest title of every disc inserted in the drive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(device) == "" {
				device = cfg.Volume.Device
			}
			s, err := ctx.newSession(cmd, true)
			if err != nil {
				return err
			}
			defer s.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := &watcher{session: s, poll: cfg.StatusInterval()}
			monitor := volume.NewMonitor(device, s.logger, w.handle, w.busy.Load)
			if monitor == nil {
				return errors.New("no device configured; pass --device or set [volume] device")
			}
			if err := monitor.Start(runCtx); err != nil {
				return err
			}
			defer monitor.Stop()
			if !monitor.Running() {
				return fmt.Errorf("could not listen for media events on %s", device)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s; insert a disc to rip it\n", device)

			<-runCtx.Done()
			w.wait()
			return nil
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "Optical device to watch (default from config)")
	return cmd
}

// watcher rips one disc at a time in the background so the monitor loop
// keeps draining events.
type watcher struct {
	session *session
	poll    time.Duration
	busy    atomic.Bool
	wg      sync.WaitGroup
}

func (w *watcher) handle(ctx context.Context, device string) error {
	if !w.busy.CompareAndSwap(false, true) {
		return nil
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.busy.Store(false)
		if err := w.ripDisc(ctx, device); err != nil {
			logging.WarnWithContext(w.session.logger, "automatic rip failed", "watch_rip_failed",
				logging.String("device", device),
				logging.Error(err),
				logging.String(logging.FieldImpact, "disc not ripped"),
			)
		}
	}()
	return nil
}

func (w *watcher) wait() {
	w.wg.Wait()
}

func (w *watcher) ripDisc(ctx context.Context, device string) error {
	mount, err := waitForMount(ctx, device)
	if err != nil {
		return err
	}
	m := w.session.manager
	st, err := scanVolume(m, mount, w.poll)
	if err != nil {
		return err
	}
	longest := longestTitle(st.Titles)
	if longest == nil {
		return volume.ErrNoTitles
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.StartRip(workflow.RipRequest{Title: longest.Index}); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = m.Stop()
	})
	defer stop()
	st = waitForMode(m, w.poll, workflow.Done, workflow.Canceled, workflow.Error)
	if st.Mode == workflow.Error {
		return fmt.Errorf("rip %s: %s", st.Output, st.Error)
	}
	w.session.logger.Info("disc ripped",
		logging.String(logging.FieldEventType, "watch_rip_finished"),
		logging.String("device", device),
		logging.String("output", st.Output),
		logging.String("outcome", st.Mode.String()),
	)
	return nil
}

// waitForMount polls until the device shows up in the mount table.
func waitForMount(ctx context.Context, device string) (string, error) {
	deadline := time.Now().Add(mountWait)
	for {
		mount, err := mountPoint(device)
		if err == nil {
			return mount, nil
		}
		if time.Now().After(deadline) {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(mountInterval):
		}
	}
}

func longestTitle(titles []title.Title) *title.Title {
	var best *title.Title
	for i := range titles {
		if best == nil || titles[i].Length > best.Length {
			best = &titles[i]
		}
	}
	return best
}
