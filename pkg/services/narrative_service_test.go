package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casetrail/engine/pkg/apperrors"
	"github.com/casetrail/engine/pkg/llm"
	"github.com/casetrail/engine/pkg/models"
)

// draftedCase runs the full pipeline so the workflow tests start from a case
// in NARRATIVE_DRAFTED with one pending machine version.
func draftedCase(t *testing.T, f *pipelineFixture) *models.Case {
	t.Helper()
	f.generator.CompleteFunc = func(ctx context.Context, prompt string, maxTokens int, temperature float64) (*llm.CompletionResult, error) {
		return &llm.CompletionResult{
			Content: validNarrative([]string{"high_value_transaction"}),
			ModelID: "mock-model",
		}, nil
	}
	c, _ := f.ingestAndRun(t, highValueCaseInput())
	return c
}

func TestReviewWorkflowApproveAndSubmit(t *testing.T) {
	f := newPipelineFixture(t)
	c := draftedCase(t, f)
	ctx := f.ctx()

	reviewed, err := f.narratives.SubmitForReview(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnderReview, reviewed.State)

	version, err := f.narratives.Approve(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewApproved, version.ReviewStatus)

	updated, err := f.caseRepo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateApproved, updated.State)

	submitted, err := f.narratives.Submit(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSubmitted, submitted.State)

	types := f.audit.typesForCase(c.ID)
	assert.Contains(t, types, models.EventNarrativeApproved)
	// Review, approval and submission each left a state-change event.
	last := types[len(types)-1]
	assert.Equal(t, models.EventCaseStateChanged, last)
}

func TestRejectAndRedraftProducesNewVersion(t *testing.T) {
	f := newPipelineFixture(t)
	c := draftedCase(t, f)
	ctx := f.ctx()

	_, err := f.narratives.SubmitForReview(ctx, c.ID)
	require.NoError(t, err)

	version, err := f.narratives.Reject(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewRejected, version.ReviewStatus)

	updated, err := f.caseRepo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateRejected, updated.State)

	redrafted, err := f.narratives.Redraft(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, redrafted.VersionNumber)
	assert.True(t, redrafted.IsCurrent)
	assert.Equal(t, models.ReviewPending, redrafted.ReviewStatus)

	updated, err = f.caseRepo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateNarrativeDrafted, updated.State)
	assert.Equal(t, 1, updated.RedraftCount)

	// The rejected version stays in history untouched.
	history, err := f.narratives.ListVersions(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].IsCurrent)
	assert.Equal(t, models.ReviewRejected, history[0].ReviewStatus)
}

func TestRedraftLimitEnforced(t *testing.T) {
	f := newPipelineFixture(t)
	c := draftedCase(t, f)
	ctx := f.ctx()

	_, err := f.narratives.SubmitForReview(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.narratives.Reject(ctx, c.ID)
	require.NoError(t, err)

	f.caseRepo.cases[c.ID].RedraftCount = 3

	_, err = f.narratives.Redraft(ctx, c.ID)
	assert.ErrorIs(t, err, apperrors.ErrRedraftLimit)
}

func TestRedraftRequiresRejectedState(t *testing.T) {
	f := newPipelineFixture(t)
	c := draftedCase(t, f)

	_, err := f.narratives.Redraft(f.ctx(), c.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestEditCreatesNewVersionPreservingHistory(t *testing.T) {
	f := newPipelineFixture(t)
	c := draftedCase(t, f)
	ctx := f.ctx()

	original, err := f.narratives.GetCurrent(ctx, c.ID)
	require.NoError(t, err)
	originalContent := original.Content

	edited, err := f.narratives.Edit(ctx, c.ID, "Analyst revised narrative content.")
	require.NoError(t, err)
	assert.Equal(t, 2, edited.VersionNumber)
	assert.Equal(t, models.OriginAnalystEdited, edited.Origin)
	assert.True(t, edited.IsCurrent)

	history, err := f.narratives.ListVersions(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, originalContent, history[0].Content)
	assert.False(t, history[0].IsCurrent)
}

func TestEditRejectsEmptyContentAndWrongState(t *testing.T) {
	f := newPipelineFixture(t)
	c := draftedCase(t, f)
	ctx := f.ctx()

	_, err := f.narratives.Edit(ctx, c.ID, "   ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	fresh := &models.Case{ID: uuid.New(), TenantID: f.tenantID, State: models.StateNew}
	f.caseRepo.cases[fresh.ID] = fresh
	_, err = f.narratives.Edit(ctx, fresh.ID, "content")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestReviewRequiresUnderReviewState(t *testing.T) {
	f := newPipelineFixture(t)
	c := draftedCase(t, f)

	_, err := f.narratives.Approve(f.ctx(), c.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestSubmitRequiresApprovedVersion(t *testing.T) {
	f := newPipelineFixture(t)
	c := draftedCase(t, f)
	ctx := f.ctx()

	_, err := f.narratives.SubmitForReview(ctx, c.ID)
	require.NoError(t, err)

	// Still pending: submission refused.
	_, err = f.narratives.Submit(ctx, c.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestWorkflowOnUnknownCase(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := f.ctx()
	missing := uuid.New()

	_, err := f.narratives.GetCurrent(ctx, missing)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.narratives.Approve(ctx, missing)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.narratives.Redraft(ctx, missing)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
