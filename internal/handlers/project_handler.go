package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/models"
	"github.com/neto007/HRM-pipeline/internal/services/projects"
)

// ProjectHandler handles training project requests
type ProjectHandler struct {
	projects ProjectService
	logger   arbor.ILogger
}

// NewProjectHandler creates a project handler
func NewProjectHandler(projects ProjectService, logger arbor.ILogger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

// ListProjectsHandler lists projects
// GET /api/projects
func (h *ProjectHandler) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.projects.List(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"projects": list,
		"count":    len(list),
	})
}

// CreateProjectHandler creates a project and queues its training
// POST /api/projects
func (h *ProjectHandler) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	var req projects.CreateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	project, err := h.projects.Create(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}

	h.logger.Info().Str("project", project.Name).Str("job_id", project.JobID).Msg("Project created")
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"project": project,
		"job_id":  project.JobID,
	})
}

// GetProjectHandler returns a project
// GET /api/projects/{name}
func (h *ProjectHandler) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	project, err := h.projects.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, project)
}

// DeleteProjectHandler deletes an idle project
// DELETE /api/projects/{name}
func (h *ProjectHandler) DeleteProjectHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.projects.Delete(r.Context(), name); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"project": name,
	})
}

// PauseProjectHandler handles POST /api/projects/{name}/pause
func (h *ProjectHandler) PauseProjectHandler(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.projects.Pause)
}

// ResumeProjectHandler handles POST /api/projects/{name}/resume
func (h *ProjectHandler) ResumeProjectHandler(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.projects.Resume)
}

// CancelProjectHandler handles POST /api/projects/{name}/cancel
func (h *ProjectHandler) CancelProjectHandler(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.projects.Cancel)
}

// RetrainProjectHandler handles POST /api/projects/{name}/train
func (h *ProjectHandler) RetrainProjectHandler(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.projects.Retrain)
}

func (h *ProjectHandler) control(w http.ResponseWriter, r *http.Request, action func(context.Context, string) (*models.Project, error)) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	project, err := action(r.Context(), r.PathValue("name"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, project)
}

// ProjectLogsHandler tails the training output
// GET /api/projects/{name}/logs?lines=100
func (h *ProjectHandler) ProjectLogsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	name := r.PathValue("name")
	lines, err := h.projects.Logs(r.Context(), name, QueryInt(r, "lines", projects.DefaultLogLines))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"project": name,
		"lines":   lines,
	})
}
