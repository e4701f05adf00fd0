package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casetrail/engine/pkg/llm"
	"github.com/casetrail/engine/pkg/models"
	"github.com/casetrail/engine/pkg/prompts"
)

func generationFixture(t *testing.T) (*pipelineFixture, *models.Case, *models.NormalizedCase, *models.RuleEvaluation) {
	t.Helper()
	f := newPipelineFixture(t)

	c := &models.Case{ID: uuid.New(), TenantID: f.tenantID, State: models.StateContextRetrieved}
	f.caseRepo.cases[c.ID] = c

	nc := &models.NormalizedCase{
		Customer: models.Customer{CustomerID: "CUST-77"},
		KYC:      models.KYCProfile{RiskRating: "high"},
		Aggregates: models.Aggregates{
			TotalTransactions: 12, TotalCredit: 2000000, UniqueCounterparties: 4, DateRangeDays: 30,
		},
	}
	eval := &models.RuleEvaluation{
		ID:     uuid.New(),
		CaseID: c.ID,
		Results: []models.RuleResult{
			{RuleID: "threshold_check", Triggered: true, Confidence: 0.9, Severity: 0.25,
				Typology: "high_value_transaction", Reasoning: "over threshold",
				Evidence: []string{"Max single transaction 2000000 exceeds 1000000"}},
		},
		CompositeScore: 0.225,
		RiskCategory:   models.RiskLow,
		Typologies:     []string{"high_value_transaction"},
	}
	return f, c, nc, eval
}

func TestGenerateNarrativeSucceedsFirstAttempt(t *testing.T) {
	f, c, nc, eval := generationFixture(t)
	f.generator.CompleteFunc = func(ctx context.Context, prompt string, maxTokens int, temperature float64) (*llm.CompletionResult, error) {
		return &llm.CompletionResult{Content: validNarrative(eval.Typologies), ModelID: "mock-model"}, nil
	}

	version, fallback, err := f.generation.GenerateNarrative(f.ctx(), c, nc, eval, nil)
	require.NoError(t, err)

	assert.False(t, fallback)
	assert.Equal(t, 1, f.generator.CompleteCalls)
	assert.Equal(t, models.OriginMachineGenerated, version.Origin)
	assert.False(t, version.IsFallback)
	assert.Equal(t, models.ReviewPending, version.ReviewStatus)
	assert.Equal(t, "mock-model", version.ModelID)

	require.Len(t, f.attempts.attempts, 1)
	attempt := f.attempts.attempts[0]
	assert.True(t, attempt.Valid)
	assert.Equal(t, 1, attempt.AttemptNumber)
	assert.Equal(t, prompts.PromptHash(f.generator.Prompts[0]), attempt.PromptHash)

	assert.Equal(t, []models.EventType{
		models.EventGenerationAttempted,
		models.EventGenerationSucceeded,
		models.EventNarrativeVersionCreated,
	}, f.audit.typesForCase(c.ID))
}

func TestGenerateNarrativeRetriesInvalidOutputThenSucceeds(t *testing.T) {
	f, c, nc, eval := generationFixture(t)
	call := 0
	f.generator.CompleteFunc = func(ctx context.Context, prompt string, maxTokens int, temperature float64) (*llm.CompletionResult, error) {
		call++
		if call < 3 {
			return &llm.CompletionResult{Content: "too short, no sections", ModelID: "mock-model"}, nil
		}
		return &llm.CompletionResult{Content: validNarrative(eval.Typologies), ModelID: "mock-model"}, nil
	}

	version, fallback, err := f.generation.GenerateNarrative(f.ctx(), c, nc, eval, nil)
	require.NoError(t, err)

	assert.False(t, fallback)
	assert.Equal(t, 3, f.generator.CompleteCalls)

	// Every attempt was persisted with its failure reasons.
	require.Len(t, f.attempts.attempts, 3)
	assert.False(t, f.attempts.attempts[0].Valid)
	assert.NotEmpty(t, f.attempts.attempts[0].FailureReasons)
	assert.False(t, f.attempts.attempts[1].Valid)
	assert.True(t, f.attempts.attempts[2].Valid)
	assert.Equal(t, 3, f.attempts.attempts[2].AttemptNumber)

	require.Len(t, f.versions.versions, 1)
	assert.Same(t, f.versions.versions[0], version)
	assert.Equal(t, 1, f.versions.versions[0].VersionNumber)
}

func TestGenerateNarrativeFallsBackAfterExhaustedRetries(t *testing.T) {
	f, c, nc, eval := generationFixture(t)
	f.generator.CompleteFunc = func(ctx context.Context, prompt string, maxTokens int, temperature float64) (*llm.CompletionResult, error) {
		return nil, fmt.Errorf("503 service unavailable")
	}

	version, fallback, err := f.generation.GenerateNarrative(f.ctx(), c, nc, eval, nil)
	require.NoError(t, err)

	assert.True(t, fallback)
	assert.Equal(t, 3, f.generator.CompleteCalls)
	assert.True(t, version.IsFallback)
	assert.Equal(t, models.ReviewPending, version.ReviewStatus)
	assert.Contains(t, version.Content, "SUSPICIOUS ACTIVITY REPORT")
	assert.Contains(t, version.Content, "CUST-77")

	// Failed attempts are persisted too; the trail shows the whole story.
	require.Len(t, f.attempts.attempts, 3)
	for i, attempt := range f.attempts.attempts {
		assert.False(t, attempt.Valid)
		assert.Equal(t, i+1, attempt.AttemptNumber)
		assert.NotEmpty(t, attempt.FailureReasons)
	}
	assert.Equal(t, []models.EventType{
		models.EventGenerationAttempted,
		models.EventGenerationAttempted,
		models.EventGenerationAttempted,
		models.EventGenerationFallbackUsed,
		models.EventNarrativeVersionCreated,
	}, f.audit.typesForCase(c.ID))
}

func TestGenerateNarrativeOpenCircuitSkipsStraightToFallback(t *testing.T) {
	f, c, nc, eval := generationFixture(t)
	f.generator.CompleteFunc = func(ctx context.Context, prompt string, maxTokens int, temperature float64) (*llm.CompletionResult, error) {
		return nil, fmt.Errorf("connection refused")
	}

	// Trip the breaker with prior failures.
	breaker := llm.NewCircuitBreaker(llm.CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour})
	breaker.RecordFailure()
	breaker.RecordFailure()
	require.Equal(t, llm.CircuitOpen, breaker.State())
	f.generation.breaker = breaker

	version, fallback, err := f.generation.GenerateNarrative(f.ctx(), c, nc, eval, nil)
	require.NoError(t, err)

	assert.True(t, fallback)
	assert.Zero(t, f.generator.CompleteCalls)
	assert.True(t, version.IsFallback)
	assert.Empty(t, f.attempts.attempts)
}

func TestGenerateNarrativePersistenceFailureIsFatal(t *testing.T) {
	f, c, nc, eval := generationFixture(t)
	f.generator.CompleteFunc = func(ctx context.Context, prompt string, maxTokens int, temperature float64) (*llm.CompletionResult, error) {
		return &llm.CompletionResult{Content: validNarrative(eval.Typologies), ModelID: "mock-model"}, nil
	}
	txRunner := &stubTxRunner{failNext: fmt.Errorf("connection lost")}
	f.generation.txRunner = txRunner

	_, _, err := f.generation.GenerateNarrative(f.ctx(), c, nc, eval, nil)
	assert.ErrorContains(t, err, "connection lost")
}

func TestFallbackNarrativeIsDeterministicAndComplete(t *testing.T) {
	_, _, nc, eval := generationFixture(t)

	first := BuildFallbackNarrative(nc, eval)
	second := BuildFallbackNarrative(nc, eval)
	assert.Equal(t, first, second)

	for _, section := range prompts.RequiredSections {
		assert.Contains(t, first, section)
	}
	assert.Contains(t, first, fallbackNotice)
	assert.Contains(t, first, "over threshold")
}

func TestFallbackNarrativeCitesLegislationForStructuring(t *testing.T) {
	_, _, nc, eval := generationFixture(t)
	eval.Typologies = []string{"structuring"}

	content := BuildFallbackNarrative(nc, eval)
	assert.Contains(t, content, "Proceeds of Crime Act 2002")
}
