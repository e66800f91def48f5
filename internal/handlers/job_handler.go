package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/logs"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// JobHandler handles job status, logs and control
type JobHandler struct {
	jobs   JobService
	logs   JobLogService
	logger arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobService, logs JobLogService, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logs:   logs,
		logger: logger,
	}
}

// ListJobsHandler returns jobs, newest first
// GET /api/jobs?kind=generation&owner=shop
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	q := r.URL.Query()
	kind := models.JobKind(q.Get("kind"))
	switch kind {
	case "", models.JobKindTraining, models.JobKindGeneration, models.JobKindIndexing:
	default:
		WriteBadRequest(w, "unknown job kind "+string(kind))
		return
	}

	jobs, err := h.jobs.List(r.Context(), kind, q.Get("owner"))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":        jobs,
		"total_count": len(jobs),
	})
}

// GetJobHandler returns a single job by ID
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// GetJobLogsHandler returns the tail of a job's log
// GET /api/jobs/{id}/logs?limit=50
func (h *JobHandler) GetJobLogsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := r.PathValue("id")
	entries, err := h.logs.Tail(r.Context(), jobID, QueryInt(r, "limit", logs.DefaultTail))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"logs":   entries,
		"count":  len(entries),
	})
}

// PauseJobHandler pauses a running job
// POST /api/jobs/{id}/pause
func (h *JobHandler) PauseJobHandler(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.jobs.Pause)
}

// ResumeJobHandler resumes a paused job
// POST /api/jobs/{id}/resume
func (h *JobHandler) ResumeJobHandler(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.jobs.Resume)
}

// CancelJobHandler cancels a running or paused job and waits for it to stop
// POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.jobs.Cancel)
}

func (h *JobHandler) control(w http.ResponseWriter, r *http.Request, action func(context.Context, string) (*models.Job, error)) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	job, err := action(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}
