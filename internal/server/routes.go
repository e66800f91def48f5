package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	a := s.app

	// WebSocket event stream
	mux.HandleFunc("/ws", a.WSHandler.HandleWebSocket)

	// API routes - System
	mux.HandleFunc("/api/health", a.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", a.APIHandler.VersionHandler)

	// API routes - Plan
	mux.HandleFunc("/api/plan", a.PlanHandler.GetPlanHandler)
	mux.HandleFunc("/api/plan/refresh", a.PlanHandler.RefreshPlanHandler)

	// API routes - Generation
	mux.HandleFunc("/api/generation", a.GenerationHandler.StartGenerationHandler)
	mux.HandleFunc("/api/transcribe", a.GenerationHandler.TranscribeHandler)
	mux.HandleFunc("/api/checkpoints", a.GenerationHandler.ListCheckpointsHandler)

	// API routes - Dataset curation
	mux.HandleFunc("/api/dataset", a.DatasetHandler.ListHandler)
	mux.HandleFunc("/api/dataset/stats", a.DatasetHandler.StatsHandler)
	mux.HandleFunc("/api/dataset/export", a.DatasetHandler.ExportHandler)
	mux.HandleFunc("/api/dataset/{filename}", RouteResourceItem(a.DatasetHandler.GetHandler, a.DatasetHandler.RejectHandler))
	mux.HandleFunc("/api/dataset/{filename}/review", a.DatasetHandler.ReviewHandler)
	mux.HandleFunc("/api/dataset/{filename}/approve", a.DatasetHandler.ApproveHandler)
	mux.HandleFunc("/api/dataset/{filename}/test", a.DatasetHandler.GenerateTestHandler)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", a.JobHandler.ListJobsHandler)
	mux.HandleFunc("/api/jobs/{id}", a.JobHandler.GetJobHandler)
	mux.HandleFunc("/api/jobs/{id}/logs", a.JobHandler.GetJobLogsHandler)
	mux.HandleFunc("/api/jobs/{id}/pause", a.JobHandler.PauseJobHandler)
	mux.HandleFunc("/api/jobs/{id}/resume", a.JobHandler.ResumeJobHandler)
	mux.HandleFunc("/api/jobs/{id}/cancel", a.JobHandler.CancelJobHandler)

	// API routes - Training projects
	mux.HandleFunc("/api/projects", RouteResourceCollection(a.ProjectHandler.ListProjectsHandler, a.ProjectHandler.CreateProjectHandler))
	mux.HandleFunc("/api/projects/{name}", RouteResourceItem(a.ProjectHandler.GetProjectHandler, a.ProjectHandler.DeleteProjectHandler))
	mux.HandleFunc("/api/projects/{name}/pause", post(a.ProjectHandler.PauseProjectHandler))
	mux.HandleFunc("/api/projects/{name}/resume", post(a.ProjectHandler.ResumeProjectHandler))
	mux.HandleFunc("/api/projects/{name}/cancel", post(a.ProjectHandler.CancelProjectHandler))
	mux.HandleFunc("/api/projects/{name}/train", post(a.ProjectHandler.RetrainProjectHandler))
	mux.HandleFunc("/api/projects/{name}/logs", a.ProjectHandler.ProjectLogsHandler)

	// API routes - Retrieval repositories
	mux.HandleFunc("/api/repositories", RouteResourceCollection(a.RepositoryHandler.ListRepositoriesHandler, a.RepositoryHandler.AddRepositoryHandler))
	mux.HandleFunc("/api/repositories/{name}", RouteResourceItem(a.RepositoryHandler.GetRepositoryHandler, a.RepositoryHandler.DeleteRepositoryHandler))
	mux.HandleFunc("/api/repositories/{name}/index", post(a.RepositoryHandler.IndexRepositoryHandler))
	mux.HandleFunc("/api/repositories/{name}/activate", post(a.RepositoryHandler.ActivateRepositoryHandler))

	// API routes - Scheduler
	mux.HandleFunc("/api/scheduler", a.SchedulerHandler.ListTasksHandler)
	mux.HandleFunc("/api/scheduler/{task}/trigger", a.SchedulerHandler.TriggerTaskHandler)

	// 404 for unmatched API routes
	mux.HandleFunc("/api/", a.APIHandler.NotFoundHandler)

	return mux
}
