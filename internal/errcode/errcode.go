package errcode

import (
	"errors"
	"strings"
)

// Code identifies the class of a pipeline failure.
type Code int

const (
	None Code = iota
	OpenFailed
	ReadFailed
	SyncLost
	EncoderInitFailed
	EncoderEncodeFailed
	MuxWriteFailed
)

var codeNames = map[Code]string{
	None:                "none",
	OpenFailed:          "open_failed",
	ReadFailed:          "read_failed",
	SyncLost:            "sync_lost",
	EncoderInitFailed:   "encoder_init_failed",
	EncoderEncodeFailed: "encoder_encode_failed",
	MuxWriteFailed:      "mux_write_failed",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// Sentinels matching each code with errors.Is.
var (
	ErrOpenFailed          = &sentinel{code: OpenFailed}
	ErrReadFailed          = &sentinel{code: ReadFailed}
	ErrSyncLost            = &sentinel{code: SyncLost}
	ErrEncoderInitFailed   = &sentinel{code: EncoderInitFailed}
	ErrEncoderEncodeFailed = &sentinel{code: EncoderEncodeFailed}
	ErrMuxWriteFailed      = &sentinel{code: MuxWriteFailed}
)

type sentinel struct {
	code Code
}

func (s *sentinel) Error() string {
	return strings.ReplaceAll(s.code.String(), "_", " ")
}

// Error is a classified failure raised by a pipeline component.
type Error struct {
	Code  Code
	Stage string
	Op    string
	Err   error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 4)
	parts = append(parts, strings.ReplaceAll(e.Code.String(), "_", " "))
	if stage := strings.TrimSpace(e.Stage); stage != "" {
		parts = append(parts, stage)
	}
	if op := strings.TrimSpace(e.Op); op != "" {
		parts = append(parts, op)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Code.
func (e *Error) Is(target error) bool {
	s, ok := target.(*sentinel)
	return ok && s.code == e.Code
}

// Wrap classifies err under code. A nil err still yields a classified error.
func Wrap(code Code, stage, op string, err error) error {
	return &Error{Code: code, Stage: stage, Op: op, Err: err}
}

// CodeOf returns the outermost classification in err's chain, or None.
func CodeOf(err error) Code {
	if err == nil {
		return None
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code
	}
	return None
}
