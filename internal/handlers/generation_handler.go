package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/models"
)

// GenerationHandler starts batch generation and single transcriptions
type GenerationHandler struct {
	generation  GenerationService
	checkpoints CheckpointLister
	logger      arbor.ILogger
}

// NewGenerationHandler creates a generation handler
func NewGenerationHandler(generation GenerationService, checkpoints CheckpointLister, logger arbor.ILogger) *GenerationHandler {
	return &GenerationHandler{generation: generation, checkpoints: checkpoints, logger: logger}
}

// StartGenerationRequest is the body of POST /api/generation.
type StartGenerationRequest struct {
	Repository string `json:"repository"`
	Limit      int    `json:"limit" validate:"gte=0"`
	TargetLang string `json:"target_lang" validate:"omitempty,max=32"`
	Model      string `json:"model"`
	Checkpoint string `json:"checkpoint"`
	TopK       int    `json:"top_k" validate:"gte=0,lte=50"`
}

func (req StartGenerationRequest) toModel() models.GenerationRequest {
	return models.GenerationRequest{
		Repository: req.Repository,
		Limit:      req.Limit,
		TargetLang: req.TargetLang,
		Model:      req.Model,
		Checkpoint: req.Checkpoint,
		TopK:       req.TopK,
	}
}

// TranscribeRequest is the body of POST /api/transcribe.
type TranscribeRequest struct {
	Code       string `json:"code" validate:"required"`
	TargetLang string `json:"target_lang" validate:"omitempty,max=32"`
	Model      string `json:"model"`
	Checkpoint string `json:"checkpoint"`
	TopK       int    `json:"top_k" validate:"gte=0,lte=50"`
}

// StartGenerationHandler queues a generation job.
// POST /api/generation
func (h *GenerationHandler) StartGenerationHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req StartGenerationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.generation.Start(r.Context(), req.toModel())
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

// TranscribeHandler runs one snippet through the pipeline synchronously.
// POST /api/transcribe
func (h *GenerationHandler) TranscribeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req TranscribeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.generation.Transcribe(r.Context(), req.Code, models.GenerationRequest{
		TargetLang: req.TargetLang,
		Model:      req.Model,
		Checkpoint: req.Checkpoint,
		TopK:       req.TopK,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// ListCheckpointsHandler lists guidance checkpoints.
// GET /api/checkpoints
func (h *GenerationHandler) ListCheckpointsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	checkpoints, err := h.checkpoints.List(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"checkpoints": checkpoints,
		"count":       len(checkpoints),
	})
}
