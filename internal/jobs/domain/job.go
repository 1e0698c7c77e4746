package domain

import (
	"database/sql"
	"time"
)

// Job status constants
const (
	JobStatusIdle    = "IDLE"
	JobStatusRunning = "RUNNING"
	JobStatusFailed  = "FAILED"
)

// Registered job names
const (
	JobRecurringBilling = "recurring_billing"
	JobTrialProcessing  = "trial_processing"
	JobPaymentRetries   = "payment_retries"
	JobFullCleanup      = "full_cleanup"
	JobMonitoring       = "monitoring"
)

// JobNames lists every registered job in a stable order.
func JobNames() []string {
	return []string{
		JobRecurringBilling,
		JobTrialProcessing,
		JobPaymentRetries,
		JobFullCleanup,
		JobMonitoring,
	}
}

// CronJob is the durable state row for one named job.
type CronJob struct {
	Name            string         `db:"job_name"`
	Status          string         `db:"status"`
	IsEnabled       bool           `db:"is_enabled"`
	LastRun         sql.NullTime   `db:"last_run"`
	NextRun         sql.NullTime   `db:"next_run"`
	LastRunDuration sql.NullInt64  `db:"last_run_duration_ms"`
	LastRunError    sql.NullString `db:"last_run_error"`
	TotalRuns       int64          `db:"total_runs"`
	SuccessfulRuns  int64          `db:"successful_runs"`
	FailedRuns      int64          `db:"failed_runs"`
	AverageRuntime  float64        `db:"average_runtime_ms"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// RunOutcome is the terminal record of one job invocation, passed to
// CompleteRun and embedded into the matching log entry.
type RunOutcome struct {
	Success  bool
	Duration time.Duration
	Error    string
	Metadata map[string]interface{}
}
