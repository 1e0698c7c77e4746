package dto

// GetLogsRequest is the query shape for listing job logs. Dates are RFC3339.
type GetLogsRequest struct {
	JobName   string `form:"job_name"`
	Status    string `form:"status"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// ClearLogsRequest is the body shape for purging job logs. With no fields
// set the purge defaults to the configured retention cutoff rather than
// emptying the table.
type ClearLogsRequest struct {
	JobName       string `json:"job_name"`
	Status        string `json:"status"`
	OlderThanDays int    `json:"older_than_days"`
}

// JobStatusDTO is the wire shape of one job state row.
type JobStatusDTO struct {
	Name            string   `json:"name"`
	Status          string   `json:"status"`
	IsEnabled       bool     `json:"is_enabled"`
	LastRun         *string  `json:"last_run,omitempty"`
	NextRun         *string  `json:"next_run,omitempty"`
	LastRunDuration *int64   `json:"last_run_duration_ms,omitempty"`
	LastRunError    *string  `json:"last_run_error,omitempty"`
	TotalRuns       int64    `json:"total_runs"`
	SuccessfulRuns  int64    `json:"successful_runs"`
	FailedRuns      int64    `json:"failed_runs"`
	AverageRuntime  float64  `json:"average_runtime_ms"`
}

// LogEntryDTO is the wire shape of one run log entry.
type LogEntryDTO struct {
	ID        string      `json:"id"`
	JobName   string      `json:"job_name"`
	StartTime string      `json:"start_time"`
	EndTime   string      `json:"end_time"`
	Status    string      `json:"status"`
	Duration  int64       `json:"duration_ms"`
	Error     *string     `json:"error,omitempty"`
	Metadata  interface{} `json:"metadata,omitempty"`
}

// LogsResponse is one page of log entries plus pagination metadata.
type LogsResponse struct {
	Entries         []LogEntryDTO `json:"entries"`
	TotalCount      int           `json:"total_count"`
	CurrentPage     int           `json:"current_page"`
	TotalPages      int           `json:"total_pages"`
	HasNextPage     bool          `json:"has_next_page"`
	HasPreviousPage bool          `json:"has_previous_page"`
}

// RunResponse reports the outcome of a manual run.
type RunResponse struct {
	Success bool                   `json:"success"`
	Skipped bool                   `json:"skipped"`
	Summary map[string]interface{} `json:"summary,omitempty"`
	Job     *JobStatusDTO          `json:"job,omitempty"`
}

// ClearLogsResponse reports how many log rows a purge removed.
type ClearLogsResponse struct {
	Deleted int64 `json:"deleted"`
}
