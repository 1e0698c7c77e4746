package domain

import (
	"database/sql"
	"time"
)

// Log entry status constants. A log entry records a terminal outcome, so
// there is no RUNNING state here.
const (
	LogStatusSuccess = "SUCCESS"
	LogStatusFailed  = "FAILED"
	LogStatusSkipped = "SKIPPED"
)

// JobLogEntry is one immutable record per execution attempt.
type JobLogEntry struct {
	ID        string         `db:"id"`
	JobName   string         `db:"job_name"`
	StartTime time.Time      `db:"start_time"`
	EndTime   time.Time      `db:"end_time"`
	Status    string         `db:"status"`
	Duration  int64          `db:"duration_ms"`
	Error     sql.NullString `db:"error"`
	Metadata  []byte         `db:"metadata"`
	CreatedAt time.Time      `db:"created_at"`
}

// LogFilter narrows list and purge operations. All fields are optional and
// conjunctive; zero values mean "no constraint".
type LogFilter struct {
	JobName   string
	Status    string
	StartDate time.Time
	EndDate   time.Time
	OlderThan time.Time
	Limit     int
	Offset    int
}

// LogPage is one page of log entries plus the pagination metadata derived
// from the unbounded total.
type LogPage struct {
	Entries         []JobLogEntry
	TotalCount      int
	CurrentPage     int
	TotalPages      int
	HasNextPage     bool
	HasPreviousPage bool
}
