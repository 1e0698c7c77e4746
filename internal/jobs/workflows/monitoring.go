package workflows

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/monitorul/subjobs/internal/jobs/domain"
)

// Monitoring is the read-only health pass over every job's state row. It
// classifies failed, disabled, and stale-running jobs and raises a broker
// alert when anything needs an operator.
type Monitoring struct {
	states     JobStateReader
	alerts     AlertPublisher
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewMonitoring creates the monitoring workflow. alerts may be nil when no
// broker is configured; classification still runs.
func NewMonitoring(states JobStateReader, alerts AlertPublisher, staleAfter time.Duration, logger *slog.Logger) *Monitoring {
	return &Monitoring{
		states:     states,
		alerts:     alerts,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// Name implements domain.BatchWorkflow.
func (w *Monitoring) Name() string {
	return domain.JobMonitoring
}

// Execute classifies all job rows and publishes an alert if any job is
// failed or stuck.
func (w *Monitoring) Execute(ctx context.Context) (*domain.BatchSummary, error) {
	jobs, err := w.states.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}

	staleBefore := w.now().Add(-w.staleAfter)

	var failed, disabled, stale []string
	for i := range jobs {
		job := &jobs[i]

		if !job.IsEnabled {
			disabled = append(disabled, job.Name)
		}
		switch job.Status {
		case domain.JobStatusFailed:
			failed = append(failed, job.Name)
		case domain.JobStatusRunning:
			if job.LastRun.Valid && job.LastRun.Time.Before(staleBefore) {
				stale = append(stale, job.Name)
			}
		}
	}

	summary := &domain.BatchSummary{
		Processed: len(jobs),
		Succeeded: len(jobs),
		Extra: map[string]interface{}{
			"failed_jobs":   failed,
			"disabled_jobs": disabled,
			"stale_jobs":    stale,
		},
	}

	if len(failed) == 0 && len(stale) == 0 {
		w.logger.Info("Monitoring pass clean",
			slog.Int("jobs", len(jobs)),
			slog.Int("disabled", len(disabled)),
		)
		return summary, nil
	}

	w.logger.Warn("Monitoring found unhealthy jobs",
		slog.Any("failed", failed),
		slog.Any("stale", stale),
	)

	if w.alerts != nil {
		body, err := json.Marshal(map[string]interface{}{
			"source":        "subscription-jobs",
			"failed_jobs":   failed,
			"stale_jobs":    stale,
			"disabled_jobs": disabled,
			"observed_at":   w.now().Format(time.RFC3339),
		})
		if err == nil {
			if err := w.alerts.Publish(ctx, body, "application/json"); err != nil {
				w.logger.Error("Failed to publish monitoring alert",
					slog.Any("error", err),
				)
			}
		}
	}

	return summary, nil
}
