package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"ripline/internal/workflow"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const statusLabelWidth = 10

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	tag := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if colorize {
		tag = statusKindColor(kind) + tag + ansiReset
	}
	if message == "" {
		return fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", tag)
	}
	return fmt.Sprintf("  %-*s %s %s", statusLabelWidth, label+":", tag, message)
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ansiBlue
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// renderRipSummary describes a finished rip.
func renderRipSummary(st workflow.Status, colorize bool) string {
	kind := statusOK
	switch st.Mode {
	case workflow.Canceled:
		kind = statusWarn
	case workflow.Error:
		kind = statusError
	}
	lines := []string{
		renderStatusLine("Rip", kind, st.Mode.String(), colorize),
		renderStatusLine("Output", statusInfo, st.Output, colorize),
		renderStatusLine("Frames", statusInfo, fmt.Sprintf("%d in %s (%.1f fps)", st.Frames, st.Elapsed.Round(time.Second), st.AvgFPS), colorize),
	}
	if st.Error != "" {
		lines = append(lines, renderStatusLine("Error", statusError, fmt.Sprintf("%s (%s)", st.Error, st.ErrorCode), colorize))
	}
	return strings.Join(lines, "\n")
}
