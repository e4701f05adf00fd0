// Package rules implements the deterministic suspicious-activity rule engine.
// Every rule is a pure function of the normalized case snapshot; the engine
// runs a fixed, ordered list of them and aggregates a composite risk score
// with a fixed formula. No model calls, no randomness, no cross-rule
// dependencies: evaluating the same input twice yields identical output.
package rules

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/casetrail/engine/pkg/models"
)

// EngineVersion is recorded on every evaluation so old evaluations remain
// interpretable after rule changes.
const EngineVersion = "1.0.0"

// baselineScore is the composite score when no rule triggers. Absence of any
// trigger is a valid low-risk result, not an error.
const baselineScore = 0.05

// RuleFunc evaluates one rule against a normalized case. Implementations
// must be pure and independent of other rules' results.
type RuleFunc func(t Thresholds, nc *models.NormalizedCase) models.RuleResult

// Engine runs the fixed rule list. Construct with NewEngine.
type Engine struct {
	thresholds Thresholds
	ruleset    []RuleFunc
}

// NewEngine creates an engine with the given thresholds and the standard
// ruleset. Rule order is preserved in evaluation output for reporting, but
// no rule depends on any other's result.
func NewEngine(t Thresholds) *Engine {
	return &Engine{
		thresholds: t,
		ruleset: []RuleFunc{
			checkThreshold,
			checkVelocity,
			checkJurisdiction,
			checkStructuring,
			checkLayering,
			checkRapidInternational,
			checkProfessionalFacilitation,
			checkPredicateOffences,
		},
	}
}

// Evaluate runs every rule against the normalized case and returns the
// complete evaluation. The engine itself never fails: a panicking rule is
// recorded as a non-triggering result with the error kind in its reasoning,
// and the pass continues.
func (e *Engine) Evaluate(caseID uuid.UUID, nc *models.NormalizedCase) *models.RuleEvaluation {
	results := make([]models.RuleResult, 0, len(e.ruleset))
	for _, rule := range e.ruleset {
		results = append(results, e.runRule(rule, nc))
	}

	eval := &models.RuleEvaluation{
		ID:            uuid.New(),
		CaseID:        caseID,
		Results:       results,
		EngineVersion: EngineVersion,
		EvaluatedAt:   time.Now().UTC(),
	}
	eval.Typologies = typologies(results)
	eval.CompositeScore = CompositeScore(results)
	eval.RiskCategory = Categorize(eval.CompositeScore)
	return eval
}

// runRule isolates one rule execution so a panic inside a rule cannot abort
// the pass.
func (e *Engine) runRule(rule RuleFunc, nc *models.NormalizedCase) (result models.RuleResult) {
	defer func() {
		if r := recover(); r != nil {
			result = models.RuleResult{
				RuleID:    "unknown",
				Triggered: false,
				Reasoning: fmt.Sprintf("evaluation error: %v", r),
			}
		}
	}()
	return rule(e.thresholds, nc)
}

// CompositeScore aggregates triggered rules into a score in [0,1] with the
// fixed formula min(1, Σ severity_i × confidence_i). Non-triggered rules
// contribute nothing; no trigger at all yields the documented baseline.
func CompositeScore(results []models.RuleResult) float64 {
	var sum float64
	var any bool
	for _, r := range results {
		if r.Triggered {
			any = true
			sum += r.Severity * r.Confidence
		}
	}
	if !any {
		return baselineScore
	}
	return math.Min(round4(sum), 1.0)
}

// Categorize maps a composite score to its risk band.
func Categorize(score float64) models.RiskCategory {
	switch {
	case score < 0.3:
		return models.RiskLow
	case score < 0.6:
		return models.RiskMedium
	case score < 0.85:
		return models.RiskHigh
	default:
		return models.RiskCritical
	}
}

// typologies collects the distinct typology labels of triggered rules in
// evaluation order.
func typologies(results []models.RuleResult) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range results {
		if r.Triggered && r.Typology != "" && !seen[r.Typology] {
			seen[r.Typology] = true
			out = append(out, r.Typology)
		}
	}
	return out
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
