package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/services/repositories"
)

// RepositoryHandler handles the retrieval repository registry
type RepositoryHandler struct {
	repos  RepositoryService
	logger arbor.ILogger
}

// NewRepositoryHandler creates a repository handler
func NewRepositoryHandler(repos RepositoryService, logger arbor.ILogger) *RepositoryHandler {
	return &RepositoryHandler{repos: repos, logger: logger}
}

// ListRepositoriesHandler handles GET /api/repositories
func (h *RepositoryHandler) ListRepositoriesHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.repos.List(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"repositories": list,
		"count":        len(list),
	})
}

// AddRepositoryHandler handles POST /api/repositories
func (h *RepositoryHandler) AddRepositoryHandler(w http.ResponseWriter, r *http.Request) {
	var req repositories.AddRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	repo, err := h.repos.Add(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, repo)
}

// GetRepositoryHandler handles GET /api/repositories/{name}
func (h *RepositoryHandler) GetRepositoryHandler(w http.ResponseWriter, r *http.Request) {
	repo, err := h.repos.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, repo)
}

// IndexRepositoryHandler handles POST /api/repositories/{name}/index
func (h *RepositoryHandler) IndexRepositoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	job, err := h.repos.Index(r.Context(), r.PathValue("name"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"job_id":  job.ID,
		"job":     job,
	})
}

// ActivateRepositoryHandler handles POST /api/repositories/{name}/activate
func (h *RepositoryHandler) ActivateRepositoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	repo, err := h.repos.Activate(r.Context(), r.PathValue("name"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, repo)
}

// DeleteRepositoryHandler handles DELETE /api/repositories/{name}
func (h *RepositoryHandler) DeleteRepositoryHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.repos.Delete(r.Context(), name); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"repository": name,
	})
}
