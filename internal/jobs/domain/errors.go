package domain

import "errors"

var (
	// ErrJobNotFound is returned when no state row exists for a job name
	ErrJobNotFound = errors.New("job not found")

	// ErrJobDisabled is returned when a run is requested for a disabled job
	ErrJobDisabled = errors.New("job is disabled")

	// ErrJobAlreadyRunning is returned when a claim is refused because a
	// non-stale run already holds the job
	ErrJobAlreadyRunning = errors.New("job is already running")
)

// WorkflowError marks a failure of the batch as a whole (for example the
// candidate-selection query failing), as opposed to individual item failures
// which are absorbed into the batch summary.
type WorkflowError struct {
	Job string
	Err error
}

func (e *WorkflowError) Error() string {
	return "workflow " + e.Job + " failed: " + e.Err.Error()
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// NewWorkflowError wraps err as a batch-level failure of the named job.
func NewWorkflowError(job string, err error) error {
	return &WorkflowError{Job: job, Err: err}
}
