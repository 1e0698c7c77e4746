package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/monitorul/subjobs/internal/admin/dto"
	"github.com/monitorul/subjobs/internal/jobs/domain"
)

// GetJobStatus handles GET /api/v1/admin/jobs/:name
func (h *JobHandler) GetJobStatus(c *gin.Context) {
	name := c.Param("name")

	job, err := h.states.GetStatus(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.logger.Error("Failed to get job status",
			slog.String("job_name", name),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job status"})
		return
	}

	c.JSON(http.StatusOK, jobToDTO(job))
}

// GetAllJobStatuses handles GET /api/v1/admin/jobs
func (h *JobHandler) GetAllJobStatuses(c *gin.Context) {
	jobs, err := h.states.ListStatuses(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list job statuses", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list job statuses"})
		return
	}

	out := make([]*dto.JobStatusDTO, len(jobs))
	for i := range jobs {
		out[i] = jobToDTO(&jobs[i])
	}

	c.JSON(http.StatusOK, gin.H{"jobs": out})
}

// RunJob handles POST /api/v1/admin/jobs/:name/run
//
// The run is synchronous. A disabled job reports a skipped (non-error)
// result; an unknown name maps to 404 and a concurrent run to 409.
func (h *JobHandler) RunJob(c *gin.Context) {
	name := c.Param("name")

	h.logger.Info("Manual job run requested",
		slog.String("job_name", name),
	)

	result, err := h.runner.Run(c.Request.Context(), name)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		case errors.Is(err, domain.ErrJobAlreadyRunning):
			c.JSON(http.StatusConflict, gin.H{"error": "job is already running"})
		default:
			h.logger.Error("Manual job run failed",
				slog.String("job_name", name),
				slog.Any("error", err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	resp := dto.RunResponse{Success: true, Skipped: result.Skipped}
	if result.Summary != nil {
		resp.Summary = result.Summary.Metadata()
	}
	if result.Job != nil {
		resp.Job = jobToDTO(result.Job)
	}

	c.JSON(http.StatusOK, resp)
}

// EnableJob handles POST /api/v1/admin/jobs/:name/enable
func (h *JobHandler) EnableJob(c *gin.Context) {
	h.setEnabled(c, true)
}

// DisableJob handles POST /api/v1/admin/jobs/:name/disable
func (h *JobHandler) DisableJob(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *JobHandler) setEnabled(c *gin.Context, enabled bool) {
	name := c.Param("name")

	job, err := h.states.ToggleEnabled(c.Request.Context(), name, enabled)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.logger.Error("Failed to toggle job",
			slog.String("job_name", name),
			slog.Bool("enabled", enabled),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to toggle job"})
		return
	}

	c.JSON(http.StatusOK, jobToDTO(job))
}

// GetJobLogs handles GET /api/v1/admin/logs
func (h *JobHandler) GetJobLogs(c *gin.Context) {
	var req dto.GetLogsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}

	filter := domain.LogFilter{
		JobName: req.JobName,
		Status:  req.Status,
		Limit:   req.Limit,
		Offset:  req.Offset,
	}

	var err error
	if filter.StartDate, err = parseDate(req.StartDate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date, expected RFC3339"})
		return
	}
	if filter.EndDate, err = parseDate(req.EndDate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date, expected RFC3339"})
		return
	}

	page, err := h.logs.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list job logs", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list job logs"})
		return
	}

	entries := make([]dto.LogEntryDTO, len(page.Entries))
	for i := range page.Entries {
		entries[i] = logEntryToDTO(&page.Entries[i])
	}

	c.JSON(http.StatusOK, dto.LogsResponse{
		Entries:         entries,
		TotalCount:      page.TotalCount,
		CurrentPage:     page.CurrentPage,
		TotalPages:      page.TotalPages,
		HasNextPage:     page.HasNextPage,
		HasPreviousPage: page.HasPreviousPage,
	})
}

// ClearJobLogs handles DELETE /api/v1/admin/logs
//
// With no filters at all the purge falls back to the retention cutoff
// instead of deleting the entire log.
func (h *JobHandler) ClearJobLogs(c *gin.Context) {
	// An absent body is fine; it means "use the defaults".
	var req dto.ClearLogsRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	filter := domain.LogFilter{
		JobName: req.JobName,
		Status:  req.Status,
	}
	if req.OlderThanDays > 0 {
		filter.OlderThan = time.Now().AddDate(0, 0, -req.OlderThanDays)
	}

	if filter.JobName == "" && filter.Status == "" && filter.OlderThan.IsZero() {
		filter.OlderThan = time.Now().Add(-h.retention)
	}

	deleted, err := h.logs.Purge(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to clear job logs", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear job logs"})
		return
	}

	h.logger.Info("Job logs cleared",
		slog.String("job_name", req.JobName),
		slog.Int64("deleted", deleted),
	)

	c.JSON(http.StatusOK, dto.ClearLogsResponse{Deleted: deleted})
}

// parseDate parses an optional RFC3339 query value.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}

func logEntryToDTO(entry *domain.JobLogEntry) dto.LogEntryDTO {
	out := dto.LogEntryDTO{
		ID:        entry.ID,
		JobName:   entry.JobName,
		StartTime: entry.StartTime.Format(time.RFC3339),
		EndTime:   entry.EndTime.Format(time.RFC3339),
		Status:    entry.Status,
		Duration:  entry.Duration,
	}
	if entry.Error.Valid {
		e := entry.Error.String
		out.Error = &e
	}
	if len(entry.Metadata) > 0 {
		var metadata interface{}
		if err := json.Unmarshal(entry.Metadata, &metadata); err == nil {
			out.Metadata = metadata
		}
	}
	return out
}
