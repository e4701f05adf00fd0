package models

import (
	"time"

	"github.com/google/uuid"
)

// RuleResult is the outcome of one deterministic rule for one evaluation pass.
type RuleResult struct {
	RuleID     string   `json:"rule_id"`
	Triggered  bool     `json:"triggered"`
	Confidence float64  `json:"confidence"` // 0.0-1.0
	Severity   float64  `json:"severity"`   // declared per rule, 0.0-1.0
	Typology   string   `json:"typology,omitempty"`
	Evidence   []string `json:"evidence,omitempty"`
	Reasoning  string   `json:"reasoning"`
}

// RuleEvaluation is one complete rule-engine pass over a case's normalized
// input. Created once per pipeline run and never modified; a re-run produces
// a new RuleEvaluation row.
type RuleEvaluation struct {
	ID             uuid.UUID    `json:"id"`
	CaseID         uuid.UUID    `json:"case_id"`
	Results        []RuleResult `json:"results"` // evaluation order preserved for reporting
	CompositeScore float64      `json:"composite_score"`
	RiskCategory   RiskCategory `json:"risk_category"`
	Typologies     []string     `json:"typologies"`
	EngineVersion  string       `json:"engine_version"`
	EvaluatedAt    time.Time    `json:"evaluated_at"`
}

// TriggeredResults returns the subset of results that fired, in evaluation order.
func (e *RuleEvaluation) TriggeredResults() []RuleResult {
	var out []RuleResult
	for _, r := range e.Results {
		if r.Triggered {
			out = append(out, r)
		}
	}
	return out
}

// TriggeredRuleIDs returns the ids of triggered rules, in evaluation order.
func (e *RuleEvaluation) TriggeredRuleIDs() []string {
	var out []string
	for _, r := range e.Results {
		if r.Triggered {
			out = append(out, r.RuleID)
		}
	}
	return out
}
