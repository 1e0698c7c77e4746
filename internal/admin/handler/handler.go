package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/monitorul/subjobs/internal/admin/dto"
	"github.com/monitorul/subjobs/internal/jobs/domain"
)

// StateStore is the job-state access the admin surface needs.
type StateStore interface {
	GetStatus(ctx context.Context, name string) (*domain.CronJob, error)
	ListStatuses(ctx context.Context) ([]domain.CronJob, error)
	ToggleEnabled(ctx context.Context, name string, enabled bool) (*domain.CronJob, error)
}

// LogStore is the run-log access the admin surface needs.
type LogStore interface {
	List(ctx context.Context, filter domain.LogFilter) (*domain.LogPage, error)
	Purge(ctx context.Context, filter domain.LogFilter) (int64, error)
}

// JobRunner triggers a synchronous run.
type JobRunner interface {
	Run(ctx context.Context, name string) (*domain.RunResult, error)
}

// Dependencies holds everything the admin handlers need.
type Dependencies struct {
	Logger    *slog.Logger
	States    StateStore
	Logs      LogStore
	Runner    JobRunner
	Retention time.Duration
}

// JobHandler serves the admin job endpoints.
type JobHandler struct {
	logger    *slog.Logger
	states    StateStore
	logs      LogStore
	runner    JobRunner
	retention time.Duration
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		states:    deps.States,
		logs:      deps.Logs,
		runner:    deps.Runner,
		retention: deps.Retention,
	}
}

// jobToDTO converts a state row to its wire shape.
func jobToDTO(job *domain.CronJob) *dto.JobStatusDTO {
	out := &dto.JobStatusDTO{
		Name:           job.Name,
		Status:         job.Status,
		IsEnabled:      job.IsEnabled,
		TotalRuns:      job.TotalRuns,
		SuccessfulRuns: job.SuccessfulRuns,
		FailedRuns:     job.FailedRuns,
		AverageRuntime: job.AverageRuntime,
	}
	if job.LastRun.Valid {
		s := job.LastRun.Time.Format(time.RFC3339)
		out.LastRun = &s
	}
	if job.NextRun.Valid {
		s := job.NextRun.Time.Format(time.RFC3339)
		out.NextRun = &s
	}
	if job.LastRunDuration.Valid {
		d := job.LastRunDuration.Int64
		out.LastRunDuration = &d
	}
	if job.LastRunError.Valid {
		e := job.LastRunError.String
		out.LastRunError = &e
	}
	return out
}
