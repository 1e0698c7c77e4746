package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/monitorul/subjobs/internal/jobs/domain"
)

const (
	// DefaultLogPageSize is applied when a caller passes no limit
	DefaultLogPageSize = 50
	// MaxLogPageSize caps a single page to keep scans bounded
	MaxLogPageSize = 200
)

// LogStore is the append-only record of individual run attempts.
type LogStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewLogStore creates a LogStore.
func NewLogStore(db *sqlx.DB, logger *slog.Logger) *LogStore {
	return &LogStore{
		db:     db,
		logger: logger,
	}
}

// Append writes one completed run attempt and returns its id. Entries are
// immutable once written.
func (s *LogStore) Append(ctx context.Context, entry *domain.JobLogEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO job_logs (
			id, job_name, start_time, end_time,
			status, duration_ms, error, metadata, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, NOW()
		)`

	_, err := s.db.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.JobName,
		entry.StartTime,
		entry.EndTime,
		entry.Status,
		entry.Duration,
		entry.Error,
		entry.Metadata,
	)
	if err != nil {
		return "", fmt.Errorf("failed to append job log: %w", err)
	}

	return entry.ID, nil
}

// List returns one page of log entries matching the filter, newest first,
// along with pagination metadata derived from the unpaged count.
func (s *LogStore) List(ctx context.Context, filter domain.LogFilter) (*domain.LogPage, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLogPageSize
	}
	if limit > MaxLogPageSize {
		limit = MaxLogPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	where, args := buildLogFilter(filter)

	var totalCount int
	countQuery := `SELECT COUNT(*) FROM job_logs` + where
	if err := s.db.GetContext(ctx, &totalCount, countQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to count job logs: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, job_name, start_time, end_time, status, duration_ms, error, metadata, created_at
		FROM job_logs%s
		ORDER BY start_time DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var entries []domain.JobLogEntry
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list job logs: %w", err)
	}

	totalPages := totalCount / limit
	if totalCount%limit != 0 {
		totalPages++
	}

	return &domain.LogPage{
		Entries:         entries,
		TotalCount:      totalCount,
		CurrentPage:     offset/limit + 1,
		TotalPages:      totalPages,
		HasNextPage:     offset+len(entries) < totalCount,
		HasPreviousPage: offset > 0,
	}, nil
}

// Purge deletes log entries matching the filter and returns how many rows
// went. With an empty filter it empties the whole table, so callers default
// to an age cutoff.
func (s *LogStore) Purge(ctx context.Context, filter domain.LogFilter) (int64, error) {
	where, args := buildLogFilter(filter)

	query := `DELETE FROM job_logs` + where
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge job logs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get purged row count: %w", err)
	}

	s.logger.Info("Job logs purged",
		slog.String("job_name", filter.JobName),
		slog.Int64("deleted", deleted),
	)

	return deleted, nil
}

// buildLogFilter accumulates conjunctive WHERE clauses and their positional
// args from the optional filter fields.
func buildLogFilter(filter domain.LogFilter) (string, []interface{}) {
	where := ""
	args := []interface{}{}
	argIdx := 1

	add := func(clause string, value interface{}) {
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(clause, argIdx)
		args = append(args, value)
		argIdx++
	}

	if filter.JobName != "" {
		add("job_name = $%d", filter.JobName)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if !filter.StartDate.IsZero() {
		add("start_time >= $%d", filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		add("start_time <= $%d", filter.EndDate)
	}
	if !filter.OlderThan.IsZero() {
		add("start_time < $%d", filter.OlderThan)
	}

	return where, args
}
