package codec

import (
	"ripline/internal/buffer"
)

// Transformer converts one input buffer into zero or more outputs. It owns
// the input.
type Transformer interface {
	Process(in *buffer.Buffer) ([]*buffer.Buffer, error)
	Close() error
}

// Session parameterizes one encoder pass.
type Session struct {
	// Pass is 0 for single pass, 1 for analysis, 2 for final.
	Pass int
	// StatsPath is the rate-control statistics file shared by passes 1 and 2.
	StatsPath string
	// Bitrate in kbit/s.
	Bitrate int
	// SampleRate for audio sessions.
	SampleRate int
}

// Encoder is a codec session that can be reopened for each pass.
type Encoder interface {
	Open(Session) error
	Encode(in *buffer.Buffer) ([]*buffer.Buffer, error)
	Close() error
}
