package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casetrail/engine/pkg/models"
	"github.com/casetrail/engine/pkg/services"
)

// NarrativeHandler handles the analyst review workflow over a case's
// narrative versions.
type NarrativeHandler struct {
	narratives *services.NarrativeService
	logger     *zap.Logger
}

// NewNarrativeHandler creates a new NarrativeHandler.
func NewNarrativeHandler(narratives *services.NarrativeService, logger *zap.Logger) *NarrativeHandler {
	return &NarrativeHandler{narratives: narratives, logger: logger}
}

// RegisterRoutes registers the narrative handler's routes on the given mux.
func (h *NarrativeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/cases/{cid}/narrative", h.GetCurrent)
	mux.HandleFunc("GET /api/v1/cases/{cid}/narrative/versions", h.ListVersions)
	mux.HandleFunc("PUT /api/v1/cases/{cid}/narrative", h.Edit)
	mux.HandleFunc("POST /api/v1/cases/{cid}/narrative/review", h.SubmitForReview)
	mux.HandleFunc("POST /api/v1/cases/{cid}/narrative/approve", h.Approve)
	mux.HandleFunc("POST /api/v1/cases/{cid}/narrative/reject", h.Reject)
	mux.HandleFunc("POST /api/v1/cases/{cid}/narrative/redraft", h.Redraft)
	mux.HandleFunc("POST /api/v1/cases/{cid}/submit", h.Submit)
}

// GetCurrent handles GET /api/v1/cases/{cid}/narrative.
func (h *NarrativeHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	version, err := h.narratives.GetCurrent(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, version); err != nil {
		h.logger.Error("Failed to encode narrative version", zap.Error(err))
	}
}

// ListVersions handles GET /api/v1/cases/{cid}/narrative/versions.
func (h *NarrativeHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	versions, err := h.narratives.ListVersions(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{
		"case_id":  caseID,
		"versions": versions,
	}); err != nil {
		h.logger.Error("Failed to encode narrative versions", zap.Error(err))
	}
}

// EditNarrativeRequest is the body of PUT /api/v1/cases/{cid}/narrative.
type EditNarrativeRequest struct {
	Content string `json:"content"`
}

// Edit handles PUT /api/v1/cases/{cid}/narrative. It creates a new
// analyst-edited version; prior versions are never modified.
func (h *NarrativeHandler) Edit(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	var req EditNarrativeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_input", "malformed request body")
		return
	}

	version, err := h.narratives.Edit(r.Context(), caseID, req.Content)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, version); err != nil {
		h.logger.Error("Failed to encode narrative version", zap.Error(err))
	}
}

// SubmitForReview handles POST /api/v1/cases/{cid}/narrative/review.
func (h *NarrativeHandler) SubmitForReview(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	c, err := h.narratives.SubmitForReview(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, c); err != nil {
		h.logger.Error("Failed to encode case", zap.Error(err))
	}
}

// Approve handles POST /api/v1/cases/{cid}/narrative/approve.
func (h *NarrativeHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.narratives.Approve)
}

// Reject handles POST /api/v1/cases/{cid}/narrative/reject.
func (h *NarrativeHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.narratives.Reject)
}

func (h *NarrativeHandler) review(w http.ResponseWriter, r *http.Request, verdict func(ctx context.Context, caseID uuid.UUID) (*models.NarrativeVersion, error)) {
	caseID, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	version, err := verdict(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, version); err != nil {
		h.logger.Error("Failed to encode narrative version", zap.Error(err))
	}
}

// Redraft handles POST /api/v1/cases/{cid}/narrative/redraft.
func (h *NarrativeHandler) Redraft(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	version, err := h.narratives.Redraft(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, version); err != nil {
		h.logger.Error("Failed to encode narrative version", zap.Error(err))
	}
}

// Submit handles POST /api/v1/cases/{cid}/submit.
func (h *NarrativeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	c, err := h.narratives.Submit(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, c); err != nil {
		h.logger.Error("Failed to encode case", zap.Error(err))
	}
}
