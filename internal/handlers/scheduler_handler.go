package handlers

import (
	"net/http"
)

// SchedulerHandler handles scheduler-related endpoints
type SchedulerHandler struct {
	scheduler TaskScheduler
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(scheduler TaskScheduler) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler}
}

// ListTasksHandler handles GET /api/scheduler
func (h *SchedulerHandler) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": h.scheduler.Statuses(),
	})
}

// TriggerTaskHandler runs a task now and reports its outcome.
// POST /api/scheduler/{task}/trigger
func (h *SchedulerHandler) TriggerTaskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	task := r.PathValue("task")
	if err := h.scheduler.Trigger(task); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"task":    task,
	})
}
