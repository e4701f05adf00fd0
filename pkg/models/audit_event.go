package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the closed set of audit event kinds. The log rejects
// anything outside this set.
type EventType string

// Audit event types.
const (
	EventCaseCreated             EventType = "CASE_CREATED"
	EventRulesEvaluated          EventType = "RULES_EVALUATED"
	EventContextRetrieved        EventType = "CONTEXT_RETRIEVED"
	EventGenerationAttempted     EventType = "GENERATION_ATTEMPTED"
	EventGenerationSucceeded     EventType = "GENERATION_SUCCEEDED"
	EventGenerationFallbackUsed  EventType = "GENERATION_FALLBACK_USED"
	EventNarrativeVersionCreated EventType = "NARRATIVE_VERSION_CREATED"
	EventNarrativeApproved       EventType = "NARRATIVE_APPROVED"
	EventNarrativeRejected       EventType = "NARRATIVE_REJECTED"
	EventCaseStateChanged        EventType = "CASE_STATE_CHANGED"
)

// IsValid returns true if the event type belongs to the closed set.
func (t EventType) IsValid() bool {
	switch t {
	case EventCaseCreated, EventRulesEvaluated, EventContextRetrieved,
		EventGenerationAttempted, EventGenerationSucceeded, EventGenerationFallbackUsed,
		EventNarrativeVersionCreated, EventNarrativeApproved, EventNarrativeRejected,
		EventCaseStateChanged:
		return true
	default:
		return false
	}
}

// AuditEvent is one entry in the append-only per-case audit log. SequenceNo
// is strictly increasing per case with no gaps; Hash chains to the previous
// event's hash for the same case so consumers can detect tampering.
type AuditEvent struct {
	ID         uuid.UUID       `json:"id"`
	CaseID     uuid.UUID       `json:"case_id"`
	SequenceNo int64           `json:"sequence_no"`
	EventType  EventType       `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	Actor      string          `json:"actor"`
	Hash       string          `json:"hash"`
	PrevHash   string          `json:"prev_hash"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Typed payloads for each event kind. These are marshaled into
// AuditEvent.Payload; keeping them as plain structs (rather than per-type
// subclasses) keeps the event log a flat tagged variant.

// RulesEvaluatedPayload accompanies EventRulesEvaluated.
type RulesEvaluatedPayload struct {
	RuleEvaluationID uuid.UUID `json:"rule_evaluation_id"`
	TriggeredRuleIDs []string  `json:"triggered_rule_ids"`
	CompositeScore   float64   `json:"composite_score"`
	RiskCategory     string    `json:"risk_category"`
	Typologies       []string  `json:"typologies"`
}

// ContextRetrievedPayload accompanies EventContextRetrieved.
type ContextRetrievedPayload struct {
	RetrievalEventID uuid.UUID `json:"retrieval_event_id,omitempty"`
	DocumentIDs      []string  `json:"document_ids"`
	DocumentCount    int       `json:"document_count"`
	Degraded         bool      `json:"degraded"` // retrieval failed, pipeline proceeded with empty context
}

// GenerationAttemptedPayload accompanies EventGenerationAttempted.
type GenerationAttemptedPayload struct {
	AttemptID      uuid.UUID `json:"attempt_id"`
	AttemptNumber  int       `json:"attempt_number"`
	PromptHash     string    `json:"prompt_hash"`
	ModelID        string    `json:"model_id"`
	Valid          bool      `json:"valid"`
	FailureReasons []string  `json:"failure_reasons,omitempty"`
	LatencyMS      int64     `json:"latency_ms"`
}

// GenerationOutcomePayload accompanies EventGenerationSucceeded and
// EventGenerationFallbackUsed.
type GenerationOutcomePayload struct {
	AttemptID     uuid.UUID `json:"attempt_id,omitempty"`
	AttemptNumber int       `json:"attempt_number,omitempty"`
	ModelID       string    `json:"model_id,omitempty"`
	Fallback      bool      `json:"fallback"`
}

// NarrativeVersionPayload accompanies EventNarrativeVersionCreated,
// EventNarrativeApproved and EventNarrativeRejected.
type NarrativeVersionPayload struct {
	VersionID     uuid.UUID `json:"version_id"`
	VersionNumber int       `json:"version_number"`
	Origin        string    `json:"origin,omitempty"`
	Fallback      bool      `json:"fallback,omitempty"`
	ContentHash   string    `json:"content_hash,omitempty"`
}

// CaseStateChangedPayload accompanies EventCaseStateChanged.
type CaseStateChangedPayload struct {
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Reason    string `json:"reason,omitempty"`
}

// CaseCreatedPayload accompanies EventCaseCreated.
type CaseCreatedPayload struct {
	TenantID         uuid.UUID `json:"tenant_id"`
	CustomerID       string    `json:"customer_id"`
	TransactionCount int       `json:"transaction_count"`
	AlertCount       int       `json:"alert_count"`
}

// MarshalPayload serializes a typed payload for storage in an AuditEvent.
func MarshalPayload(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}
