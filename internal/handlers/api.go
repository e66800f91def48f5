package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
)

type APIHandler struct {
	logger arbor.ILogger
}

func NewAPIHandler(logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		logger: logger,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.Build,
		"git_commit": common.GitCommit,
	})
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"job_goroutines": common.GetGoroutineCount(),
	})
}

// NotFoundHandler handles unmatched API routes
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, ErrorResponse{
		Error: "endpoint " + r.URL.Path + " does not exist",
		Kind:  string(interfaces.KindNotFound),
	})
}
