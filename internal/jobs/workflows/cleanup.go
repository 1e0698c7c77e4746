package workflows

import (
	"context"
	"log/slog"
	"time"

	"github.com/monitorul/subjobs/internal/jobs/domain"
)

// FullCleanup bulk-deletes job log and payment log rows older than the
// retention window. Unlike the other workflows it has no per-item loop;
// either bulk delete failing fails the batch.
type FullCleanup struct {
	jobLogs   JobLogPurger
	ledger    PaymentLedger
	retention time.Duration
	logger    *slog.Logger
	dryRun    bool
	now       func() time.Time
}

// NewFullCleanup creates the full_cleanup workflow.
func NewFullCleanup(jobLogs JobLogPurger, ledger PaymentLedger, retention time.Duration, logger *slog.Logger, dryRun bool) *FullCleanup {
	return &FullCleanup{
		jobLogs:   jobLogs,
		ledger:    ledger,
		retention: retention,
		logger:    logger,
		dryRun:    dryRun,
		now:       time.Now,
	}
}

// Name implements domain.BatchWorkflow.
func (w *FullCleanup) Name() string {
	return domain.JobFullCleanup
}

// Execute purges both logs past the retention cutoff.
func (w *FullCleanup) Execute(ctx context.Context) (*domain.BatchSummary, error) {
	cutoff := w.now().Add(-w.retention)

	if w.dryRun {
		w.logger.Info("Dry run: skipping log purges",
			slog.Time("cutoff", cutoff),
		)
		return &domain.BatchSummary{
			Extra: map[string]interface{}{
				"cutoff":  cutoff.Format(time.RFC3339),
				"dry_run": true,
			},
		}, nil
	}

	jobLogsDeleted, err := w.jobLogs.Purge(ctx, domain.LogFilter{OlderThan: cutoff})
	if err != nil {
		return nil, err
	}

	paymentLogsDeleted, err := w.ledger.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	w.logger.Info("Cleanup finished",
		slog.Time("cutoff", cutoff),
		slog.Int64("job_logs_deleted", jobLogsDeleted),
		slog.Int64("payment_logs_deleted", paymentLogsDeleted),
	)

	return &domain.BatchSummary{
		Extra: map[string]interface{}{
			"cutoff":               cutoff.Format(time.RFC3339),
			"job_logs_deleted":     jobLogsDeleted,
			"payment_logs_deleted": paymentLogsDeleted,
		},
	}, nil
}
