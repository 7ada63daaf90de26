package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"ripline/internal/config"
	"ripline/internal/logging"
	"ripline/internal/queue"
	"ripline/internal/workflow"
)

type commandContext struct {
	configFlag *string
	quietFlag  *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, quietFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		quietFlag:  quietFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger writes console logs to stderr unless the command is quiet or owns
// the terminal for a progress bar. The log file always receives JSON lines.
func (c *commandContext) logger(cmd *cobra.Command, console bool) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	var w io.Writer = cmd.ErrOrStderr()
	if !console || (c.quietFlag != nil && *c.quietFlag) {
		w = io.Discard
	}
	opts := logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: w,
	}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		opts.FilePath = filepath.Join(dir, "ripline.log")
	}
	return logging.New(opts)
}

// openStore opens the history database when it is enabled. Jobs left in
// the encoding state by a crashed process are marked interrupted.
func (c *commandContext) openStore(ctx context.Context, logger *slog.Logger) (*queue.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	recovered, err := store.RecoverInterrupted(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("recover history: %w", err)
	}
	if recovered > 0 {
		logger.Info("marked interrupted rips",
			logging.String(logging.FieldEventType, "history_recovered"),
			logging.Int64("jobs", recovered),
		)
	}
	return store, nil
}

// session bundles a manager with the resources it owns.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	manager *workflow.Manager
}

func (c *commandContext) newSession(cmd *cobra.Command, console bool) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.logger(cmd, console)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	store, err := c.openStore(cmd.Context(), logger)
	if err != nil {
		return nil, err
	}
	mgr := workflow.NewManager(cfg, workflow.Options{Store: store, Logger: logger})
	return &session{cfg: cfg, logger: logger, store: store, manager: mgr}, nil
}

func (s *session) Close() {
	s.manager.Close()
	if s.store != nil {
		s.store.Close()
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
