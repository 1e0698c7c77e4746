package domain

import "context"

// BatchWorkflow is the business logic of one job type: enumerate a bounded
// candidate set, attempt each item, and report aggregate counters. Item-level
// failures are absorbed into the summary; a returned error means the batch as
// a whole failed and the remaining items were not attempted.
type BatchWorkflow interface {
	Name() string
	Execute(ctx context.Context) (*BatchSummary, error)
}

// ItemError records one failed candidate inside an otherwise successful batch.
type ItemError struct {
	ItemID string `json:"item_id"`
	Stage  string `json:"stage,omitempty"`
	Reason string `json:"reason"`
}

// BatchSummary is the aggregate result of one workflow execution.
type BatchSummary struct {
	Processed int                    `json:"processed"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	Errors    []ItemError            `json:"errors,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// RecordSuccess counts one candidate that went through cleanly.
func (s *BatchSummary) RecordSuccess() {
	s.Processed++
	s.Succeeded++
}

// RecordFailure counts one failed candidate and keeps its error detail.
func (s *BatchSummary) RecordFailure(itemID, stage string, err error) {
	s.Processed++
	s.Failed++
	s.Errors = append(s.Errors, ItemError{ItemID: itemID, Stage: stage, Reason: err.Error()})
}

// Metadata flattens the summary into the shape stored in job log entries.
func (s *BatchSummary) Metadata() map[string]interface{} {
	m := map[string]interface{}{
		"processed": s.Processed,
		"succeeded": s.Succeeded,
		"failed":    s.Failed,
	}
	if len(s.Errors) > 0 {
		m["errors"] = s.Errors
	}
	for k, v := range s.Extra {
		m[k] = v
	}
	return m
}

// RunResult is what JobRunner reports back to its caller.
type RunResult struct {
	JobName string
	Skipped bool
	Summary *BatchSummary
	Job     *CronJob
}
