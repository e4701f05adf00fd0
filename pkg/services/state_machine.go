// Package services implements the casetrail engine's business logic: case
// ingestion and the generation pipeline, narrative review, the case state
// machine, the append-only audit trail and decision reconstruction.
package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/casetrail/engine/pkg/apperrors"
	"github.com/casetrail/engine/pkg/models"
	"github.com/casetrail/engine/pkg/repositories"
)

// transitions is the complete set of legal case state transitions. Anything
// not listed is rejected.
var transitions = map[models.CaseState][]models.CaseState{
	models.StateNew:              {models.StateRulesEvaluated},
	models.StateRulesEvaluated:   {models.StateContextRetrieved},
	models.StateContextRetrieved: {models.StateNarrativeDrafted},
	models.StateNarrativeDrafted: {models.StateUnderReview},
	models.StateUnderReview:      {models.StateApproved, models.StateRejected},
	models.StateApproved:         {models.StateSubmitted},
	models.StateRejected:         {models.StateNarrativeDrafted},
	models.StateSubmitted:        {},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to models.CaseState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CaseStateService is the single authority for case state changes. Every
// transition updates the case row and appends a CASE_STATE_CHANGED event in
// the same transaction; an illegal transition changes nothing.
type CaseStateService struct {
	caseRepo repositories.CaseRepository
	audit    *AuditService
	logger   *zap.Logger
}

// NewCaseStateService creates a new CaseStateService.
func NewCaseStateService(
	caseRepo repositories.CaseRepository,
	audit *AuditService,
	logger *zap.Logger,
) *CaseStateService {
	return &CaseStateService{
		caseRepo: caseRepo,
		audit:    audit,
		logger:   logger.Named("case-state"),
	}
}

// TransitionTx moves the case to a new state inside the supplied
// transaction. The case model's State is updated on success.
func (s *CaseStateService) TransitionTx(ctx context.Context, tx pgx.Tx, c *models.Case, to models.CaseState, reason string) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown state %q", apperrors.ErrInvalidTransition, to)
	}
	if !CanTransition(c.State, to) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, c.State, to)
	}

	if err := s.caseRepo.UpdateStateTx(ctx, tx, c.ID, to); err != nil {
		return err
	}

	payload, err := models.MarshalPayload(models.CaseStateChangedPayload{
		FromState: string(c.State),
		ToState:   string(to),
		Reason:    reason,
	})
	if err != nil {
		return err
	}
	if err := s.audit.AppendTx(ctx, tx, c.ID, models.EventCaseStateChanged, payload); err != nil {
		return err
	}

	s.logger.Info("case state changed",
		zap.String("case_id", c.ID.String()),
		zap.String("from", string(c.State)),
		zap.String("to", string(to)))

	c.State = to
	return nil
}

// RedraftAllowed reports whether a rejected case may loop back to drafting
// given the redraft budget.
func RedraftAllowed(redraftCount, maxRedrafts int) bool {
	return redraftCount < maxRedrafts
}
