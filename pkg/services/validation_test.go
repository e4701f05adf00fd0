package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casetrail/engine/pkg/models"
	"github.com/casetrail/engine/pkg/prompts"
)

func evalWithTypologies(typologies ...string) *models.RuleEvaluation {
	return &models.RuleEvaluation{Typologies: typologies}
}

func TestValidateNarrativeAcceptsCompliantOutput(t *testing.T) {
	content := validNarrative([]string{"structuring", "high_value_transaction"})
	failures := ValidateNarrative(content, nil, evalWithTypologies("structuring", "high_value_transaction"))
	assert.Empty(t, failures)
}

func TestValidateNarrativeRejectsEmptyAndShort(t *testing.T) {
	failures := ValidateNarrative("", nil, evalWithTypologies())
	assert.Equal(t, []string{"empty narrative"}, failures)

	failures = ValidateNarrative("   \n\t  ", nil, evalWithTypologies())
	assert.Equal(t, []string{"empty narrative"}, failures)

	failures = ValidateNarrative("1. SUBJECT INFORMATION brief", nil, evalWithTypologies())
	require.NotEmpty(t, failures)
	assert.Contains(t, failures[0], "narrative too short")
}

func TestValidateNarrativeRejectsRunawayOutput(t *testing.T) {
	content := validNarrative(nil) + strings.Repeat("x", maxNarrativeLength)
	failures := ValidateNarrative(content, nil, evalWithTypologies())
	require.NotEmpty(t, failures)
	assert.Contains(t, failures[0], "narrative too long")
}

func TestValidateNarrativeDetectsMissingSection(t *testing.T) {
	content := validNarrative(nil)
	content = strings.Replace(content, "5. RECOMMENDATION", "5. CONCLUSIONS", 1)

	failures := ValidateNarrative(content, nil, evalWithTypologies())
	assert.Contains(t, failures, "missing section: 5. RECOMMENDATION")
}

func TestValidateNarrativeDetectsSectionOutOfOrder(t *testing.T) {
	var b strings.Builder
	// Recommendation first, everything else after.
	b.WriteString(prompts.RequiredSections[len(prompts.RequiredSections)-1] + "\n")
	for _, section := range prompts.RequiredSections[:len(prompts.RequiredSections)-1] {
		b.WriteString(section + "\n")
		b.WriteString(strings.Repeat("Narrative body text for the filing. ", 4) + "\n")
	}

	failures := ValidateNarrative(b.String(), nil, evalWithTypologies())
	assert.Contains(t, failures, "section out of order: 5. RECOMMENDATION")
}

func TestValidateNarrativeDetectsInternalLeaks(t *testing.T) {
	for _, marker := range []string{"composite risk score", "confidence level", "rule_id", "engine_version"} {
		content := validNarrative(nil) + "\nInternal note: the " + marker + " was 0.42.\n"
		failures := ValidateNarrative(content, nil, evalWithTypologies())
		require.NotEmpty(t, failures, marker)
		assert.Contains(t, failures[0], "internal detail leaked")
	}
}

func TestValidateNarrativeRequiresTypologyCoverage(t *testing.T) {
	eval := evalWithTypologies("structuring", "rapid_international_movement")

	// Underscore form and spaced form both count as addressed.
	content := validNarrative(nil) +
		"\nThe pattern indicates structuring and rapid international movement of funds.\n"
	assert.Empty(t, ValidateNarrative(content, nil, eval))

	content = validNarrative(nil) + "\nThe pattern indicates structuring only.\n"
	failures := ValidateNarrative(content, nil, eval)
	assert.Contains(t, failures, "typology not addressed: rapid_international_movement")
}

func TestFallbackNarrativePassesValidation(t *testing.T) {
	nc := &models.NormalizedCase{
		Customer:   models.Customer{CustomerID: "CUST-55"},
		KYC:        models.KYCProfile{RiskRating: "high"},
		Aggregates: models.Aggregates{TotalTransactions: 8, TotalCredit: 3000000, DateRangeDays: 14},
	}
	eval := &models.RuleEvaluation{
		Results: []models.RuleResult{
			{RuleID: "structuring_detection", Triggered: true, Typology: "structuring",
				Reasoning: "repeated just-below-threshold deposits"},
		},
		Typologies:   []string{"structuring"},
		RiskCategory: models.RiskHigh,
	}

	content := BuildFallbackNarrative(nc, eval)
	failures := ValidateNarrative(content, nc, eval)
	assert.Empty(t, failures)
}

func TestValidateNarrativeDetectsFabricatedFigures(t *testing.T) {
	nc := &models.NormalizedCase{
		Customer:   models.Customer{CustomerID: "CUST-55"},
		Aggregates: models.Aggregates{TotalTransactions: 8, TotalCredit: 3000000},
	}
	eval := evalWithTypologies()

	// Figures drawn from the case data are fine, separators included.
	content := validNarrative(nil) + "\nThe accounts received a total of 3,000,000 in credits.\n"
	assert.Empty(t, ValidateNarrative(content, nc, eval))

	// An amount the evidence never mentions is a fabrication.
	content = validNarrative(nil) + "\nA transfer of 4,750,000 was routed through the account.\n"
	failures := ValidateNarrative(content, nc, eval)
	assert.Contains(t, failures, "figure not supported by case evidence: 4750000")

	// Small figures (dates, counts, section numbers) are not checked.
	content = validNarrative(nil) + "\nAcross 14 days the subject made 8 transfers ending 2026-03-01.\n"
	assert.Empty(t, ValidateNarrative(content, nc, eval))
}
