// Package models contains domain types for the casetrail engine.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CaseState represents the lifecycle state of a case.
type CaseState string

// Case lifecycle states. Transitions between them are governed by
// services.CaseStateService; nothing else may change a case's state.
const (
	StateNew              CaseState = "NEW"
	StateRulesEvaluated   CaseState = "RULES_EVALUATED"
	StateContextRetrieved CaseState = "CONTEXT_RETRIEVED"
	StateNarrativeDrafted CaseState = "NARRATIVE_DRAFTED"
	StateUnderReview      CaseState = "UNDER_REVIEW"
	StateApproved         CaseState = "APPROVED"
	StateRejected         CaseState = "REJECTED"
	StateSubmitted        CaseState = "SUBMITTED"
)

// String returns the string representation of a CaseState.
func (s CaseState) String() string {
	return string(s)
}

// IsValid returns true if the state is a known lifecycle state.
func (s CaseState) IsValid() bool {
	switch s {
	case StateNew, StateRulesEvaluated, StateContextRetrieved, StateNarrativeDrafted,
		StateUnderReview, StateApproved, StateRejected, StateSubmitted:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for states from which a case is soft-closed.
func (s CaseState) IsTerminal() bool {
	return s == StateSubmitted
}

// RiskCategory is the deterministic banding of the composite risk score.
type RiskCategory string

// Risk categories derived from composite score bands.
const (
	RiskLow      RiskCategory = "low"
	RiskMedium   RiskCategory = "medium"
	RiskHigh     RiskCategory = "high"
	RiskCritical RiskCategory = "critical"
)

// Case is a regulated case under investigation. The normalized input snapshot
// is immutable once stored; state, risk score and category are mutated only by
// the state machine and the pipeline that owns the case.
type Case struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	InputData    json.RawMessage `json:"input_data"` // normalized snapshot, never rewritten
	State        CaseState       `json:"state"`
	RiskScore    float64         `json:"risk_score"`
	RiskCategory RiskCategory    `json:"risk_category"`
	RedraftCount int             `json:"redraft_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
