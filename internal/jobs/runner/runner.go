package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/monitorul/subjobs/internal/jobs/domain"
)

// StateStore is the subset of job-state operations the runner drives.
type StateStore interface {
	GetStatus(ctx context.Context, name string) (*domain.CronJob, error)
	ClaimRun(ctx context.Context, name string) (*domain.CronJob, error)
	CompleteRun(ctx context.Context, name string, outcome domain.RunOutcome) (*domain.CronJob, error)
	UpsertSchedule(ctx context.Context, name string, nextRun time.Time, defaultEnabled bool) error
}

// LogStore is the append side of the run log.
type LogStore interface {
	Append(ctx context.Context, entry *domain.JobLogEntry) (string, error)
}

// Runner enforces the execution protocol for one invocation:
// enable check, claim, execute, complete, log. Every non-skipped invocation
// ends with exactly one CompleteRun and exactly one log entry.
type Runner struct {
	store    StateStore
	logs     LogStore
	registry *Registry
	logger   *slog.Logger
}

// NewRunner creates a Runner over the given stores and workflow registry.
func NewRunner(store StateStore, logs LogStore, registry *Registry, logger *slog.Logger) *Runner {
	return &Runner{
		store:    store,
		logs:     logs,
		registry: registry,
		logger:   logger,
	}
}

// Run executes the named job's workflow under the claim protocol.
//
// A disabled job is not an error: the run is reported as skipped and leaves
// no trace in the log. ErrJobNotFound, ErrJobAlreadyRunning, and workflow
// failures surface to the caller; workflow failures are additionally recorded
// in the state row and the run log before propagating.
func (r *Runner) Run(ctx context.Context, name string) (*domain.RunResult, error) {
	wf, ok := r.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, name)
	}

	job, err := r.store.GetStatus(ctx, name)
	if err != nil {
		return nil, err
	}

	if !job.IsEnabled {
		r.logger.Info("Job is disabled, skipping run",
			slog.String("job_name", name),
		)
		return &domain.RunResult{JobName: name, Skipped: true, Job: job}, nil
	}

	if _, err := r.store.ClaimRun(ctx, name); err != nil {
		if errors.Is(err, domain.ErrJobDisabled) {
			// Disabled between the status read and the claim. Same
			// non-error skip as above.
			return &domain.RunResult{JobName: name, Skipped: true, Job: job}, nil
		}
		return nil, err
	}

	start := time.Now()
	summary, execErr := wf.Execute(ctx)
	duration := time.Since(start)

	if execErr != nil {
		r.logger.Error("Job workflow failed",
			slog.String("job_name", name),
			slog.Duration("duration", duration),
			slog.Any("error", execErr),
		)

		metadata := map[string]interface{}{
			"error": map[string]interface{}{
				"message": execErr.Error(),
				"type":    fmt.Sprintf("%T", execErr),
			},
		}

		outcome := domain.RunOutcome{
			Success:  false,
			Duration: duration,
			Error:    execErr.Error(),
			Metadata: metadata,
		}

		// Completion must land even though the run failed, otherwise the
		// job would sit in RUNNING until the stale reclaim kicks in.
		if _, err := r.store.CompleteRun(ctx, name, outcome); err != nil {
			r.logger.Error("Failed to record run failure",
				slog.String("job_name", name),
				slog.Any("error", err),
			)
		}

		r.appendLog(ctx, name, start, duration, domain.LogStatusFailed, execErr.Error(), metadata)

		return nil, domain.NewWorkflowError(name, execErr)
	}

	outcome := domain.RunOutcome{
		Success:  true,
		Duration: duration,
		Metadata: summary.Metadata(),
	}

	completed, err := r.store.CompleteRun(ctx, name, outcome)
	if err != nil {
		return nil, err
	}

	r.appendLog(ctx, name, start, duration, domain.LogStatusSuccess, "", summary.Metadata())

	r.logger.Info("Job run succeeded",
		slog.String("job_name", name),
		slog.Duration("duration", duration),
		slog.Int("processed", summary.Processed),
		slog.Int("failed", summary.Failed),
	)

	return &domain.RunResult{JobName: name, Summary: summary, Job: completed}, nil
}

// appendLog writes the single log entry for this invocation. Logging is a
// secondary effect: a failed append is reported but never fails the run.
func (r *Runner) appendLog(ctx context.Context, name string, start time.Time, duration time.Duration, status, errMsg string, metadata map[string]interface{}) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		r.logger.Error("Failed to marshal run metadata",
			slog.String("job_name", name),
			slog.Any("error", err),
		)
		raw = nil
	}

	entry := &domain.JobLogEntry{
		JobName:   name,
		StartTime: start,
		EndTime:   start.Add(duration),
		Status:    status,
		Duration:  duration.Milliseconds(),
		Metadata:  raw,
	}
	if errMsg != "" {
		entry.Error.String = errMsg
		entry.Error.Valid = true
	}

	if _, err := r.logs.Append(ctx, entry); err != nil {
		r.logger.Error("Failed to append job log entry",
			slog.String("job_name", name),
			slog.Any("error", err),
		)
	}
}
