package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ripline/internal/queue"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent rips",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return errors.New("history is disabled in the configuration")
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			jobs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, jobs)
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No rips recorded")
				return nil
			}
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderHistory(jobs, stats))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of rips to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print rips as JSON")
	return cmd
}

func renderHistory(jobs []*queue.Job, stats map[queue.Status]int) string {
	cols := []column{
		{header: "Started"},
		{header: "Title", align: alignRight},
		{header: "Output"},
		{header: "Status"},
		{header: "Frames", align: alignRight},
		{header: "Size", align: alignRight},
		{header: "Time", align: alignRight},
	}
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		status := string(j.Status)
		if j.ErrorCode != "" {
			status += " (" + j.ErrorCode + ")"
		}
		rows = append(rows, []string{
			j.StartedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", j.TitleIndex),
			filepath.Base(j.Output),
			status,
			fmt.Sprintf("%d", j.Frames),
			formatBytes(j.Bytes),
			j.Duration().Round(time.Second).String(),
		})
	}
	return renderTable(summarizeStats(stats), cols, rows)
}

func summarizeStats(stats map[queue.Status]int) string {
	parts := make([]string, 0, len(stats))
	for status, count := range stats {
		parts = append(parts, fmt.Sprintf("%s %d", status, count))
	}
	sort.Strings(parts)
	return strings.Join(parts, " · ")
}
