package handlers

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/models"
)

// DatasetHandler serves the curation API
type DatasetHandler struct {
	dataset DatasetService
	logger  arbor.ILogger
}

// NewDatasetHandler creates a dataset handler
func NewDatasetHandler(dataset DatasetService, logger arbor.ILogger) *DatasetHandler {
	return &DatasetHandler{dataset: dataset, logger: logger}
}

// ApproveRequest carries the reviewer's edit. An empty edit keeps the
// generated output.
type ApproveRequest struct {
	EditedCode string `json:"edited_code"`
}

// GenerateTestRequest selects the model used for test generation.
type GenerateTestRequest struct {
	Model string `json:"model"`
}

// ListHandler returns entry summaries, newest first.
// GET /api/dataset?status=draft|reviewing|approved
func (h *DatasetHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status := models.EntryStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.EntryStatusDraft, models.EntryStatusReviewing, models.EntryStatusApproved:
	default:
		WriteBadRequest(w, "unknown status "+string(status))
		return
	}

	entries, err := h.dataset.List(r.Context(), status)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// GetHandler returns a full entry.
// GET /api/dataset/{filename}
func (h *DatasetHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := h.dataset.Get(r.Context(), r.PathValue("filename"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, entry)
}

// ReviewHandler moves a draft into review.
// POST /api/dataset/{filename}/review
func (h *DatasetHandler) ReviewHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	entry, err := h.dataset.Open(r.Context(), r.PathValue("filename"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, entry)
}

// ApproveHandler promotes an entry into the golden dataset.
// POST /api/dataset/{filename}/approve
func (h *DatasetHandler) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req ApproveRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	entry, err := h.dataset.Approve(r.Context(), r.PathValue("filename"), req.EditedCode)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"entry":   entry,
	})
}

// RejectHandler deletes a draft.
// DELETE /api/dataset/{filename}
func (h *DatasetHandler) RejectHandler(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	if err := h.dataset.Reject(r.Context(), filename); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"filename": filename,
	})
}

// GenerateTestHandler generates a unit test for an entry.
// POST /api/dataset/{filename}/test
func (h *DatasetHandler) GenerateTestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req GenerateTestRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	test, err := h.dataset.GenerateTest(r.Context(), r.PathValue("filename"), req.Model)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, test)
}

// StatsHandler returns dataset counts.
// GET /api/dataset/stats
func (h *DatasetHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stats, err := h.dataset.Stats(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// ExportHandler streams the golden dataset as JSON Lines.
// GET /api/dataset/export
func (h *DatasetHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	// buffered so a storage error can still be reported as JSON
	var buf bytes.Buffer
	n, err := h.dataset.Export(r.Context(), &buf)
	if err != nil {
		WriteError(w, err)
		return
	}

	name := "golden_dataset_" + time.Now().Format("20060102") + ".jsonl"
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("X-Entry-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write dataset export")
	}
}
