package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casetrail/engine/pkg/models"
	"github.com/casetrail/engine/pkg/repositories"
	"github.com/casetrail/engine/pkg/services"
)

// maxCaseInputBytes bounds ingestion payload size.
const maxCaseInputBytes = 4 << 20

// CaseHandler handles case ingestion, lookup, audit trail access and
// decision reconstruction.
type CaseHandler struct {
	pipeline       *services.PipelineService
	caseRepo       repositories.CaseRepository
	audit          *services.AuditService
	reconstruction *services.ReconstructionService
	logger         *zap.Logger
}

// NewCaseHandler creates a new CaseHandler.
func NewCaseHandler(
	pipeline *services.PipelineService,
	caseRepo repositories.CaseRepository,
	audit *services.AuditService,
	reconstruction *services.ReconstructionService,
	logger *zap.Logger,
) *CaseHandler {
	return &CaseHandler{
		pipeline:       pipeline,
		caseRepo:       caseRepo,
		audit:          audit,
		reconstruction: reconstruction,
		logger:         logger,
	}
}

// RegisterRoutes registers the case handler's routes on the given mux.
func (h *CaseHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/cases", h.CreateCase)
	mux.HandleFunc("GET /api/v1/cases/{cid}", h.GetCase)
	mux.HandleFunc("GET /api/v1/cases/{cid}/audit", h.GetAuditTrail)
	mux.HandleFunc("GET /api/v1/cases/{cid}/reconstruction", h.GetReconstruction)
}

// CreateCaseResponse is returned by POST /api/v1/cases.
type CreateCaseResponse struct {
	Case     *models.Case             `json:"case"`
	Pipeline *services.PipelineResult `json:"pipeline"`
}

// CreateCase handles POST /api/v1/cases. It ingests the normalized case
// snapshot and runs the full pipeline synchronously, returning the drafted
// case and run summary.
func (h *CaseHandler) CreateCase(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCaseInputBytes))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_input", "failed to read request body")
		return
	}

	c, err := h.pipeline.IngestCase(r.Context(), json.RawMessage(body))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	result, err := h.pipeline.Run(r.Context(), c.ID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	c, err = h.caseRepo.GetByID(r.Context(), c.ID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, CreateCaseResponse{Case: c, Pipeline: result}); err != nil {
		h.logger.Error("Failed to encode case response", zap.Error(err))
	}
}

// GetCase handles GET /api/v1/cases/{cid}.
func (h *CaseHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	c, err := h.caseRepo.GetByID(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, c); err != nil {
		h.logger.Error("Failed to encode case", zap.Error(err))
	}
}

// GetAuditTrail handles GET /api/v1/cases/{cid}/audit. Supports filtering
// with ?types=A,B&from=RFC3339&to=RFC3339.
func (h *CaseHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	filter, err := parseAuditFilter(r)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	events, err := h.audit.ListByCase(r.Context(), caseID, filter)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{
		"case_id": caseID,
		"events":  events,
	}); err != nil {
		h.logger.Error("Failed to encode audit trail", zap.Error(err))
	}
}

// GetReconstruction handles GET /api/v1/cases/{cid}/reconstruction.
func (h *CaseHandler) GetReconstruction(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	rec, err := h.reconstruction.Reconstruct(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, rec); err != nil {
		h.logger.Error("Failed to encode reconstruction", zap.Error(err))
	}
}

// parseCaseID extracts and validates the {cid} path value, writing a 400 on
// failure.
func parseCaseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	caseID, err := uuid.Parse(r.PathValue("cid"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_input", "invalid case id")
		return uuid.Nil, false
	}
	return caseID, true
}

func parseAuditFilter(r *http.Request) (repositories.AuditEventFilter, error) {
	var filter repositories.AuditEventFilter
	q := r.URL.Query()

	if raw := q.Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			filter.Types = append(filter.Types, models.EventType(strings.TrimSpace(t)))
		}
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.To = t
	}
	return filter, nil
}
