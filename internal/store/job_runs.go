/**
 * @description
 * Job run audit log persistence. Rows are append-only: one per engine
 * execution, never mutated after finished_at is written.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/axixfinance/accrual-service/internal/domain"
)

var ErrJobRunNotFound = errors.New("job run not found")

// CreateJobRun appends one audit row for a finished engine execution.
func (r *Repository) CreateJobRun(ctx context.Context, run *domain.JobRun) error {
	query := `
        INSERT INTO job_runs (
            id, job_name, started_at, finished_at, success, source,
            processed_count, completed_count, total_applied, error_text
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := r.db.Exec(ctx, query,
		run.ID,
		run.JobName,
		run.StartedAt,
		run.FinishedAt,
		run.Success,
		run.Source,
		run.ProcessedCount,
		run.CompletedCount,
		run.TotalApplied.StringFixed(2),
		run.ErrorText,
	)
	return err
}

const jobRunColumns = `
	id, job_name, started_at, finished_at, success, source,
	processed_count, completed_count, total_applied::text, error_text
`

func scanJobRun(row rowScanner) (domain.JobRun, error) {
	var (
		run     domain.JobRun
		applied string
	)
	err := row.Scan(
		&run.ID, &run.JobName, &run.StartedAt, &run.FinishedAt, &run.Success, &run.Source,
		&run.ProcessedCount, &run.CompletedCount, &applied, &run.ErrorText,
	)
	if err != nil {
		return domain.JobRun{}, err
	}
	if run.TotalApplied, err = decimal.NewFromString(applied); err != nil {
		return domain.JobRun{}, fmt.Errorf("invalid total applied: %w", err)
	}
	return run, nil
}

// GetLastRun fetches the most recent run of a job, successful or not.
func (r *Repository) GetLastRun(ctx context.Context, jobName string) (*domain.JobRun, error) {
	query := `
        SELECT ` + jobRunColumns + `
        FROM job_runs
        WHERE job_name = $1
        ORDER BY started_at DESC
        LIMIT 1
    `
	run, err := scanJobRun(r.db.QueryRow(ctx, query, jobName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

// GetRecentRuns fetches the most recent runs of a job, newest first.
func (r *Repository) GetRecentRuns(ctx context.Context, jobName string, limit int) ([]domain.JobRun, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
        SELECT ` + jobRunColumns + `
        FROM job_runs
        WHERE job_name = $1
        ORDER BY started_at DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, jobName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.JobRun
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// HasSuccessfulRunSince reports whether any successful run of a job finished
// at or after the given instant. Backs the staleness check consumed by
// external monitoring.
func (r *Repository) HasSuccessfulRunSince(ctx context.Context, jobName string, since time.Time) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1 FROM job_runs
            WHERE job_name = $1 AND success = TRUE AND finished_at >= $2
        )
    `
	var exists bool
	if err := r.db.QueryRow(ctx, query, jobName, since).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
