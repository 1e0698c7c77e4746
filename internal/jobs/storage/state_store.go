package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/monitorul/subjobs/internal/jobs/domain"
)

const cronJobColumns = `
	job_name, status, is_enabled, last_run, next_run,
	last_run_duration_ms, last_run_error,
	total_runs, successful_runs, failed_runs, average_runtime_ms,
	created_at, updated_at`

// StateStore is the durable job state table. Mutual exclusion across
// processes rests entirely on ClaimRun's conditional update; there is no
// in-process lock.
type StateStore struct {
	db         *sqlx.DB
	logger     *slog.Logger
	staleAfter time.Duration
}

// NewStateStore creates a StateStore. A RUNNING row older than staleAfter is
// treated as abandoned and may be reclaimed.
func NewStateStore(db *sqlx.DB, logger *slog.Logger, staleAfter time.Duration) *StateStore {
	return &StateStore{
		db:         db,
		logger:     logger,
		staleAfter: staleAfter,
	}
}

// GetStatus returns the state row for one job.
func (s *StateStore) GetStatus(ctx context.Context, name string) (*domain.CronJob, error) {
	query := `SELECT ` + cronJobColumns + ` FROM cron_jobs WHERE job_name = $1`

	var job domain.CronJob
	if err := s.db.GetContext(ctx, &job, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job status: %w", err)
	}

	return &job, nil
}

// ListStatuses returns every registered job's state row.
func (s *StateStore) ListStatuses(ctx context.Context) ([]domain.CronJob, error) {
	query := `SELECT ` + cronJobColumns + ` FROM cron_jobs ORDER BY job_name ASC`

	var jobs []domain.CronJob
	if err := s.db.SelectContext(ctx, &jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list job statuses: %w", err)
	}

	return jobs, nil
}

// ClaimRun transitions a job to RUNNING iff it is enabled and not already
// held by a live run. The check and the transition are one conditional
// update, so two concurrent triggers cannot both claim the same job.
func (s *StateStore) ClaimRun(ctx context.Context, name string) (*domain.CronJob, error) {
	query := `
		UPDATE cron_jobs
		SET status = $2,
		    last_run = NOW(),
		    updated_at = NOW()
		WHERE job_name = $1
		  AND is_enabled = true
		  AND (status <> $2 OR last_run IS NULL OR last_run < NOW() - make_interval(secs => $3))
		RETURNING ` + cronJobColumns

	var job domain.CronJob
	err := s.db.QueryRowxContext(ctx, query, name, domain.JobStatusRunning, s.staleAfter.Seconds()).StructScan(&job)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyClaimRefusal(ctx, name)
		}
		return nil, fmt.Errorf("failed to claim run: %w", err)
	}

	s.logger.Info("Job run claimed",
		slog.String("job_name", name),
	)

	return &job, nil
}

// classifyClaimRefusal reads the row a failed claim left untouched and maps
// it to the sentinel the caller needs to distinguish.
func (s *StateStore) classifyClaimRefusal(ctx context.Context, name string) error {
	job, err := s.GetStatus(ctx, name)
	if err != nil {
		return err
	}

	if !job.IsEnabled {
		return domain.ErrJobDisabled
	}
	if job.Status == domain.JobStatusRunning {
		return domain.ErrJobAlreadyRunning
	}

	return fmt.Errorf("claim refused for job %s in status %s", name, job.Status)
}

// CompleteRun records the terminal outcome of a run: status back to IDLE or
// FAILED, last-run fields, and the monotonic metrics including the running
// mean of runtimes. It applies even when the claim was stale-reclaimed, so a
// job never stays RUNNING past a completed invocation.
func (s *StateStore) CompleteRun(ctx context.Context, name string, outcome domain.RunOutcome) (*domain.CronJob, error) {
	status := domain.JobStatusIdle
	if !outcome.Success {
		status = domain.JobStatusFailed
	}

	var lastErr sql.NullString
	if outcome.Error != "" {
		lastErr = sql.NullString{String: outcome.Error, Valid: true}
	}

	query := `
		UPDATE cron_jobs
		SET status = $2,
		    last_run_duration_ms = $3,
		    last_run_error = $4,
		    total_runs = total_runs + 1,
		    successful_runs = successful_runs + CASE WHEN $5 THEN 1 ELSE 0 END,
		    failed_runs = failed_runs + CASE WHEN $5 THEN 0 ELSE 1 END,
		    average_runtime_ms = (average_runtime_ms * total_runs + $3) / (total_runs + 1),
		    updated_at = NOW()
		WHERE job_name = $1
		RETURNING ` + cronJobColumns

	var job domain.CronJob
	err := s.db.QueryRowxContext(ctx, query, name, status, outcome.Duration.Milliseconds(), lastErr, outcome.Success).StructScan(&job)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to complete run: %w", err)
	}

	s.logger.Info("Job run completed",
		slog.String("job_name", name),
		slog.String("status", status),
		slog.Int64("duration_ms", outcome.Duration.Milliseconds()),
	)

	return &job, nil
}

// ToggleEnabled sets the enabled flag. Idempotent; does not touch an
// in-flight run.
func (s *StateStore) ToggleEnabled(ctx context.Context, name string, enabled bool) (*domain.CronJob, error) {
	query := `
		UPDATE cron_jobs
		SET is_enabled = $2,
		    updated_at = NOW()
		WHERE job_name = $1
		RETURNING ` + cronJobColumns

	var job domain.CronJob
	err := s.db.QueryRowxContext(ctx, query, name, enabled).StructScan(&job)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to toggle job: %w", err)
	}

	s.logger.Info("Job enablement changed",
		slog.String("job_name", name),
		slog.Bool("enabled", enabled),
	)

	return &job, nil
}

// UpsertSchedule creates the state row on first sight and thereafter only
// refreshes next_run. Enablement is written on creation only, so an operator
// disable is never silently undone by the scheduler.
func (s *StateStore) UpsertSchedule(ctx context.Context, name string, nextRun time.Time, defaultEnabled bool) error {
	query := `
		INSERT INTO cron_jobs (job_name, status, is_enabled, next_run, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (job_name) DO UPDATE
		SET next_run = EXCLUDED.next_run,
		    updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, name, domain.JobStatusIdle, defaultEnabled, nextRun); err != nil {
		return fmt.Errorf("failed to upsert schedule: %w", err)
	}

	return nil
}
