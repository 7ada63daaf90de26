package preflight

import (
	"errors"
	"fmt"
	"strings"

	"ripline/internal/config"
)

// ErrFailed is wrapped by Err when any check failed.
var ErrFailed = errors.New("preflight failed")

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll checks the directory the output file will land in and, for
// two-pass encodes, the stats directory.
func RunAll(cfg *config.Config, outputDir string, twoPass bool) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckOutputDir(outputDir),
		CheckFreeSpace("Free space", outputDir, cfg.Rip.MinFreeMiB),
	}
	if twoPass && strings.TrimSpace(cfg.Paths.StatsDir) != "" {
		results = append(results, CheckDirectoryAccess("Stats directory", cfg.Paths.StatsDir))
	}
	return results
}

// Err summarizes failed results, or returns nil when all passed.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrFailed, strings.Join(failed, "; "))
}
