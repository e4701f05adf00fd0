package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/casetrail/engine/pkg/models"
)

func sampleEval() *models.RuleEvaluation {
	return &models.RuleEvaluation{
		Results: []models.RuleResult{
			{RuleID: "structuring_check", Triggered: true, Typology: "structuring",
				Reasoning: "Repeated sub-threshold deposits",
				Evidence:  []string{"4 transactions in 900000-999999 band"}},
			{RuleID: "velocity_check", Triggered: false, Reasoning: "Normal velocity"},
		},
		CompositeScore: 0.42,
		RiskCategory:   models.RiskMedium,
		Typologies:     []string{"structuring"},
	}
}

func TestBuildNarrativePromptScope(t *testing.T) {
	docs := []models.RetrievedDocument{
		{DocumentID: "d1", Source: "guidelines", SimilarityScore: 0.9, Snippet: "Report structured deposits."},
	}
	prompt := BuildNarrativePrompt(sampleEval(), docs)

	// Findings, triggered evidence and context all present.
	assert.Contains(t, prompt, "Typologies detected: structuring")
	assert.Contains(t, prompt, "Repeated sub-threshold deposits")
	assert.Contains(t, prompt, "4 transactions in 900000-999999 band")
	assert.Contains(t, prompt, "Report structured deposits.")

	// Non-triggered rules contribute nothing.
	assert.NotContains(t, prompt, "Normal velocity")

	// Section contract is stated to the collaborator.
	for _, section := range RequiredSections {
		assert.Contains(t, prompt, section)
	}
}

func TestBuildNarrativePromptEmptyInputs(t *testing.T) {
	eval := &models.RuleEvaluation{CompositeScore: 0.05, RiskCategory: models.RiskLow}
	prompt := BuildNarrativePrompt(eval, nil)

	assert.Contains(t, prompt, "Typologies detected: none")
	assert.Contains(t, prompt, "No detection rules triggered")
	assert.Contains(t, prompt, "No reference material available")
}

func TestPromptHashStable(t *testing.T) {
	eval := sampleEval()
	first := PromptHash(BuildNarrativePrompt(eval, nil))
	second := PromptHash(BuildNarrativePrompt(eval, nil))
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	eval.CompositeScore = 0.43
	assert.NotEqual(t, first, PromptHash(BuildNarrativePrompt(eval, nil)))
}

func TestRegulatoryHooks(t *testing.T) {
	hooks := RegulatoryHooks(nil)
	assert.Equal(t, []string{"suspicious_activity_reporting"}, hooks)

	hooks = RegulatoryHooks([]string{"structuring", "layering", "predicate_offences", "high_value_transaction"})
	assert.Equal(t, []string{
		"suspicious_activity_reporting",
		"proceeds_of_crime_concealment",
		"predicate_offence_disclosure",
	}, hooks)

	hooks = RegulatoryHooks([]string{"high_risk_jurisdiction", "rapid_international_movement"})
	assert.Equal(t, []string{
		"suspicious_activity_reporting",
		"cross_border_reporting",
	}, hooks)
}

func TestRequiredSectionsAreOrdered(t *testing.T) {
	for i, section := range RequiredSections {
		assert.True(t, strings.HasPrefix(section, string(rune('1'+i))+". "))
	}
}
