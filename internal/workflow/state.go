package workflow

import (
	"errors"
	"fmt"
	"time"

	"ripline/internal/errcode"
	"ripline/internal/title"
)

// Mode is the manager state.
type Mode int

const (
	NeedVolume Mode = iota
	Scanning
	InvalidVolume
	ReadyToRip
	Encoding
	Suspended
	Stopping
	Done
	Canceled
	Error
)

var modeNames = map[Mode]string{
	NeedVolume:    "need_volume",
	Scanning:      "scanning",
	InvalidVolume: "invalid_volume",
	ReadyToRip:    "ready_to_rip",
	Encoding:      "encoding",
	Suspended:     "suspended",
	Stopping:      "stopping",
	Done:          "done",
	Canceled:      "canceled",
	Error:         "error",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Terminal reports whether a rip has finished in this mode.
func (m Mode) Terminal() bool {
	return m == Done || m == Canceled || m == Error
}

// ErrInvalidMode is returned by commands issued in a mode that does not
// accept them.
var ErrInvalidMode = errors.New("command not valid in current mode")

func invalidMode(cmd string, mode Mode) error {
	return fmt.Errorf("%s while %s: %w", cmd, mode, ErrInvalidMode)
}

// Status is a snapshot of the manager state.
type Status struct {
	Mode Mode

	// Volume is the scanned path. ScanIndex/ScanCount report scan progress.
	Volume    string
	ScanIndex int
	ScanCount int
	Titles    []title.Title

	JobID  string
	Title  int
	Output string

	// Position is the overall progress in [0,1] across all passes.
	Position  float64
	Pass      int
	PassCount int
	// FPS is refreshed at most once per second; AvgFPS covers the whole rip.
	FPS     float64
	AvgFPS  float64
	ETA     time.Duration
	Elapsed time.Duration
	Frames  int64

	ErrorCode errcode.Code
	Error     string
}

// ETASeconds returns the remaining time in whole seconds.
func (s Status) ETASeconds() int {
	return int(s.ETA / time.Second)
}

// PassPercent returns the progress within the current pass, in percent.
func (s Status) PassPercent() float64 {
	if s.PassCount <= 1 || s.Pass <= 0 {
		return s.Position * 100
	}
	within := s.Position*float64(s.PassCount) - float64(s.Pass-1)
	if within < 0 {
		within = 0
	}
	if within > 1 {
		within = 1
	}
	return within * 100
}
