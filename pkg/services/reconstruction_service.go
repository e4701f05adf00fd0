package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casetrail/engine/pkg/hashchain"
	"github.com/casetrail/engine/pkg/models"
	"github.com/casetrail/engine/pkg/repositories"
)

// ReconstructionStep is one link in the why-chain: what happened, when, who
// initiated it, and the event-specific detail a reviewer needs.
type ReconstructionStep struct {
	SequenceNo int64           `json:"sequence_no"`
	EventType  models.EventType `json:"event_type"`
	Timestamp  string          `json:"timestamp"`
	Actor      string          `json:"actor"`
	Summary    string          `json:"summary"`
	Detail     map[string]any  `json:"detail,omitempty"`
}

// Reconstruction is the full answer to "why does this case's narrative say
// what it says": the verified event chain from ingestion to the present,
// derived entirely from persisted audit rows.
type Reconstruction struct {
	CaseID     uuid.UUID            `json:"case_id"`
	ChainValid bool                 `json:"chain_valid"`
	ChainError string               `json:"chain_error,omitempty"`
	Chain      []ReconstructionStep `json:"chain"`
}

// eventSummaries are the fixed one-line explanations per event type.
var eventSummaries = map[models.EventType]string{
	models.EventCaseCreated:             "Case ingested with normalized input data",
	models.EventRulesEvaluated:          "Deterministic rules evaluated against the input snapshot",
	models.EventContextRetrieved:        "Regulatory context retrieved for narrative generation",
	models.EventGenerationAttempted:     "Narrative generation attempted against the model collaborator",
	models.EventGenerationSucceeded:     "Model output passed validation and became a draft",
	models.EventGenerationFallbackUsed:  "Template fallback produced the draft after retries were exhausted",
	models.EventNarrativeVersionCreated: "A new narrative version became current",
	models.EventNarrativeApproved:       "Narrative approved for filing",
	models.EventNarrativeRejected:       "Narrative rejected, needs revision",
	models.EventCaseStateChanged:        "Case moved to a new lifecycle state",
}

// ReconstructionService rebuilds the decision chain for a case from the
// audit log. The projection is a pure function of stored events: the same
// log always yields the same reconstruction.
type ReconstructionService struct {
	audit  *AuditService
	logger *zap.Logger
}

// NewReconstructionService creates a new ReconstructionService.
func NewReconstructionService(audit *AuditService, logger *zap.Logger) *ReconstructionService {
	return &ReconstructionService{audit: audit, logger: logger.Named("reconstruction")}
}

// Reconstruct verifies the case's hash chain and projects each event into a
// reviewer-facing step. A broken chain is reported, not hidden; the steps
// are still returned so the reviewer can see where the break sits.
func (s *ReconstructionService) Reconstruct(ctx context.Context, caseID uuid.UUID) (*Reconstruction, error) {
	events, err := s.audit.ListByCase(ctx, caseID, repositories.AuditEventFilter{})
	if err != nil {
		return nil, err
	}

	rec := &Reconstruction{
		CaseID:     caseID,
		ChainValid: true,
		Chain:      make([]ReconstructionStep, 0, len(events)),
	}

	if err := hashchain.Verify(events); err != nil {
		rec.ChainValid = false
		rec.ChainError = err.Error()
		s.logger.Error("audit chain verification failed",
			zap.String("case_id", caseID.String()), zap.Error(err))
	}

	for _, e := range events {
		rec.Chain = append(rec.Chain, projectStep(e))
	}
	return rec, nil
}

// projectStep derives one reconstruction step from an audit event.
func projectStep(e *models.AuditEvent) ReconstructionStep {
	step := ReconstructionStep{
		SequenceNo: e.SequenceNo,
		EventType:  e.EventType,
		Timestamp:  e.CreatedAt.UTC().Format(time.RFC3339Nano),
		Actor:      e.Actor,
		Summary:    summarize(e.EventType),
	}

	switch e.EventType {
	case models.EventRulesEvaluated:
		var p models.RulesEvaluatedPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			step.Detail = map[string]any{
				"triggered_rules": p.TriggeredRuleIDs,
				"composite_score": p.CompositeScore,
				"risk_category":   p.RiskCategory,
				"typologies":      p.Typologies,
			}
		}
	case models.EventContextRetrieved:
		var p models.ContextRetrievedPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			step.Detail = map[string]any{
				"document_ids":   p.DocumentIDs,
				"document_count": p.DocumentCount,
				"degraded":       p.Degraded,
			}
		}
	case models.EventGenerationAttempted:
		var p models.GenerationAttemptedPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			step.Detail = map[string]any{
				"attempt_number":  p.AttemptNumber,
				"prompt_hash":     p.PromptHash,
				"model_id":        p.ModelID,
				"valid":           p.Valid,
				"failure_reasons": p.FailureReasons,
			}
		}
	case models.EventGenerationSucceeded, models.EventGenerationFallbackUsed:
		var p models.GenerationOutcomePayload
		if json.Unmarshal(e.Payload, &p) == nil {
			step.Detail = map[string]any{
				"attempt_number": p.AttemptNumber,
				"model_id":       p.ModelID,
				"fallback":       p.Fallback,
			}
		}
	case models.EventNarrativeVersionCreated, models.EventNarrativeApproved, models.EventNarrativeRejected:
		var p models.NarrativeVersionPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			step.Detail = map[string]any{
				"version_number": p.VersionNumber,
				"origin":         p.Origin,
				"fallback":       p.Fallback,
			}
		}
	case models.EventCaseStateChanged:
		var p models.CaseStateChangedPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			step.Detail = map[string]any{
				"from_state": p.FromState,
				"to_state":   p.ToState,
				"reason":     p.Reason,
			}
		}
	}

	return step
}

func summarize(t models.EventType) string {
	if s, ok := eventSummaries[t]; ok {
		return s
	}
	return string(t)
}
