package stage

import "context"

// Result reports whether a Work call moved any data.
type Result int

const (
	NoProgress Result = iota
	Progress
)

func (r Result) String() string {
	if r == Progress {
		return "progress"
	}
	return "no_progress"
}

// Stage is a schedulable unit of pipeline work. Work must not block waiting on
// fifos; it returns NoProgress instead. A non-nil error is fatal for the rip.
type Stage interface {
	Name() string
	Work(ctx context.Context) (Result, error)
	Close() error
}
