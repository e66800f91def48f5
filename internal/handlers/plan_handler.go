package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
)

// PlanHandler serves migration plans
type PlanHandler struct {
	plans  PlanService
	logger arbor.ILogger
}

// NewPlanHandler creates a plan handler
func NewPlanHandler(plans PlanService, logger arbor.ILogger) *PlanHandler {
	return &PlanHandler{plans: plans, logger: logger}
}

// GetPlanHandler returns the plan of a repository, or of the active one.
// GET /api/plan?repo=
func (h *PlanHandler) GetPlanHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	plan, err := h.plans.GetPlan(r.Context(), r.URL.Query().Get("repo"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, plan)
}

// RefreshPlanHandler re-analyzes and returns the new plan.
// POST /api/plan/refresh?repo=
func (h *PlanHandler) RefreshPlanHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	plan, err := h.plans.Refresh(r.Context(), r.URL.Query().Get("repo"))
	if err != nil {
		h.logger.Warn().Err(err).Msg("Plan refresh failed")
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, plan)
}
