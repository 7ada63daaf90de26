package queue

import (
	"database/sql"
	"errors"
	"time"
)

// Status is the lifecycle state of a rip job.
type Status string

const (
	StatusEncoding Status = "encoding"
	StatusDone     Status = "done"
	StatusCanceled Status = "canceled"
	StatusError    Status = "error"
)

// Terminal reports whether the job has finished.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusCanceled, StatusError:
		return true
	}
	return false
}

// Job is one rip recorded in the history.
type Job struct {
	ID          string
	Volume      string
	TitleIndex  int
	Source      string
	Output      string
	Container   string
	TwoPass     bool
	Status      Status
	ErrorCode   string
	ErrorDetail string
	Frames      int64
	Bytes       int64
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Duration returns the wall-clock run time, or zero while encoding.
func (j *Job) Duration() time.Duration {
	if j == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

// Outcome is the result recorded by Finish.
type Outcome struct {
	Status      Status
	ErrorCode   string
	ErrorDetail string
	Frames      int64
	Bytes       int64
}

const jobColumns = "id, volume, title_index, source_path, output_path, container, two_pass, status, error_code, error_detail, frames, bytes, started_at, finished_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job         Job
		source      sql.NullString
		twoPass     int64
		statusStr   string
		errorCode   sql.NullString
		errorDetail sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Volume,
		&job.TitleIndex,
		&source,
		&job.Output,
		&job.Container,
		&twoPass,
		&statusStr,
		&errorCode,
		&errorDetail,
		&job.Frames,
		&job.Bytes,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	job.Source = source.String
	job.TwoPass = twoPass != 0
	job.Status = Status(statusStr)
	job.ErrorCode = errorCode.String
	job.ErrorDetail = errorDetail.String
	if started, err := parseTimeString(startedRaw); err == nil {
		job.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			job.FinishedAt = &finished
		}
	}
	return &job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// timeLayout keeps a fixed fraction width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
