package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/monitorul/subjobs/internal/jobs/domain"
	"github.com/robfig/cron/v3"
)

// ScheduleSync is the thin adapter between the external time-based trigger
// and the runner. On every tick it refreshes the job's advisory next_run and
// delegates to Runner.Run. next_run never gates execution; the trigger's own
// interval is the real schedule.
type ScheduleSync struct {
	store     StateStore
	runner    *Runner
	schedules map[string]cron.Schedule
	logger    *slog.Logger
}

// NewScheduleSync parses the per-job cron expressions (standard 5-field
// format) and returns the adapter. Unknown or malformed expressions fail
// construction rather than the first tick.
func NewScheduleSync(store StateStore, r *Runner, specs map[string]string, logger *slog.Logger) (*ScheduleSync, error) {
	schedules := make(map[string]cron.Schedule, len(specs))
	for name, spec := range specs {
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression for job %s: %w", name, err)
		}
		schedules[name] = sched
	}

	return &ScheduleSync{
		store:     store,
		runner:    r,
		schedules: schedules,
		logger:    logger,
	}, nil
}

// Sync computes the job's next nominal fire time, upserts it (creating the
// state row enabled on first sight only), and runs the job.
func (s *ScheduleSync) Sync(ctx context.Context, name string) (*domain.RunResult, error) {
	sched, ok := s.schedules[name]
	if !ok {
		return nil, fmt.Errorf("%w: no schedule for %s", domain.ErrJobNotFound, name)
	}

	nextRun := sched.Next(time.Now())

	if err := s.store.UpsertSchedule(ctx, name, nextRun, true); err != nil {
		return nil, err
	}

	s.logger.Debug("Schedule synced",
		slog.String("job_name", name),
		slog.Time("next_run", nextRun),
	)

	return s.runner.Run(ctx, name)
}

// NextRun returns the next nominal fire time for a job, for callers that
// only need the schedule.
func (s *ScheduleSync) NextRun(name string, after time.Time) (time.Time, bool) {
	sched, ok := s.schedules[name]
	if !ok {
		return time.Time{}, false
	}
	return sched.Next(after), true
}
