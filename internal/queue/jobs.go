package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound reports an unknown job id.
var ErrNotFound = errors.New("job not found")

// Begin records a new job in the encoding status. A missing ID is filled
// with a random UUID.
func (s *Store) Begin(ctx context.Context, job Job) (*Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Output == "" {
		return nil, errors.New("job output is required")
	}
	job.Status = StatusEncoding
	job.StartedAt = s.now().UTC()
	job.FinishedAt = nil

	_, err := s.execWithRetry(ctx,
		`INSERT INTO rip_jobs (
            id, volume, title_index, source_path, output_path, container,
            two_pass, status, started_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Volume,
		job.TitleIndex,
		nullableString(job.Source),
		job.Output,
		job.Container,
		boolToInt(job.TwoPass),
		job.Status,
		formatTime(job.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return &job, nil
}

// Finish records the outcome of a job.
func (s *Store) Finish(ctx context.Context, id string, out Outcome) error {
	if !out.Status.Terminal() {
		return fmt.Errorf("finish job %s: status %q is not terminal", id, out.Status)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE rip_jobs
         SET status = ?, error_code = ?, error_detail = ?, frames = ?, bytes = ?, finished_at = ?
         WHERE id = ?`,
		out.Status,
		nullableString(out.ErrorCode),
		nullableString(out.ErrorDetail),
		out.Frames,
		out.Bytes,
		formatTime(s.now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish job %s: %w", id, ErrNotFound)
	}
	return nil
}

// Get fetches a job by id. It returns nil, nil when the job does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM rip_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns the most recent jobs first. A limit <= 0 returns every job.
func (s *Store) List(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM rip_jobs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM rip_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// RecoverInterrupted marks jobs still in the encoding status as errors. It is
// called at startup, when no rip from this process can be running.
func (s *Store) RecoverInterrupted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE rip_jobs SET status = ?, error_detail = ?, finished_at = ? WHERE status = ?`,
		StatusError,
		"interrupted",
		formatTime(s.now()),
		StatusEncoding,
	)
	if err != nil {
		return 0, fmt.Errorf("recover interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}
