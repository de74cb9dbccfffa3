package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shelfmark/shelfmark/dbopen"
)

// InsertJob records a new job in the pending state.
func (s *Store) InsertJob(ctx context.Context, j *ScrapeJob) error {
	if j.Status == "" {
		j.Status = JobPending
	}
	if j.StartedAt == 0 {
		j.StartedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO scrape_jobs (id, target_url, target_type, status, error_log, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.TargetURL, j.TargetType, j.Status, j.ErrorLog, j.StartedAt, j.FinishedAt)
	return err
}

// GetJob retrieves a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*ScrapeJob, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, target_url, target_type, status, error_log, started_at, finished_at
		FROM scrape_jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobs returns the most recent jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*ScrapeJob, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, target_url, target_type, status, error_log, started_at, finished_at
		FROM scrape_jobs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScrapeJob
	for rows.Next() {
		var j ScrapeJob
		var finished sql.NullInt64
		err := rows.Scan(&j.ID, &j.TargetURL, &j.TargetType, &j.Status, &j.ErrorLog, &j.StartedAt, &finished)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if finished.Valid {
			j.FinishedAt = &finished.Int64
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// MarkJobProcessing moves a pending job to processing. The WHERE guard
// makes the transition idempotent and one-directional: a job already
// processing or terminal is left alone and false is returned.
func (s *Store) MarkJobProcessing(ctx context.Context, id string) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE scrape_jobs SET status = ? WHERE id = ? AND status = ?`,
		JobProcessing, id, JobPending)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// MarkJobCompleted moves a processing job to completed, stamps
// finished_at, and clears any error residue.
func (s *Store) MarkJobCompleted(ctx context.Context, id string) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE scrape_jobs SET status = ?, error_log = '', finished_at = ? WHERE id = ? AND status = ?`,
		JobCompleted, time.Now().UnixMilli(), id, JobProcessing)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// MarkJobFailed moves a processing job to failed, stamping finished_at
// and recording the failure reason.
func (s *Store) MarkJobFailed(ctx context.Context, id, reason string) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE scrape_jobs SET status = ?, error_log = ?, finished_at = ? WHERE id = ? AND status = ?`,
		JobFailed, reason, time.Now().UnixMilli(), id, JobProcessing)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// SweepStaleJobs fails every processing job started before the cutoff.
// A job stuck in processing means a crashed worker; nothing will ever
// finish it, so the sweep is the only way it reaches a terminal state.
func (s *Store) SweepStaleJobs(ctx context.Context, cutoff int64) (int64, error) {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE scrape_jobs SET status = ?, error_log = ?, finished_at = ?
		WHERE status = ? AND started_at < ?`,
		JobFailed, "job abandoned: worker did not report back", time.Now().UnixMilli(),
		JobProcessing, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanJob(row *sql.Row) (*ScrapeJob, error) {
	var j ScrapeJob
	var finished sql.NullInt64
	err := row.Scan(&j.ID, &j.TargetURL, &j.TargetType, &j.Status, &j.ErrorLog, &j.StartedAt, &finished)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if finished.Valid {
		j.FinishedAt = &finished.Int64
	}
	return &j, nil
}

func oneRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
