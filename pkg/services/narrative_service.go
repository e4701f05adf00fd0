package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/casetrail/engine/pkg/apperrors"
	"github.com/casetrail/engine/pkg/config"
	"github.com/casetrail/engine/pkg/database"
	"github.com/casetrail/engine/pkg/hashchain"
	"github.com/casetrail/engine/pkg/models"
	"github.com/casetrail/engine/pkg/repositories"
)

// NarrativeService handles the analyst-facing review workflow: edits,
// review verdicts, redrafts and final submission. Review verdicts are
// recorded on the exact version reviewed; edits create new versions and
// never mutate stored content.
type NarrativeService struct {
	caseRepo   repositories.CaseRepository
	versions   repositories.NarrativeRepository
	evalRepo   repositories.RuleEvaluationRepository
	retrievals repositories.RetrievalEventRepository
	generation *GenerationService
	stateSvc   *CaseStateService
	audit      *AuditService
	txRunner   database.TxRunner
	pipeCfg    config.PipelineConfig
	logger     *zap.Logger
}

// NewNarrativeService creates a new NarrativeService.
func NewNarrativeService(
	caseRepo repositories.CaseRepository,
	versions repositories.NarrativeRepository,
	evalRepo repositories.RuleEvaluationRepository,
	retrievals repositories.RetrievalEventRepository,
	generation *GenerationService,
	stateSvc *CaseStateService,
	audit *AuditService,
	txRunner database.TxRunner,
	pipeCfg config.PipelineConfig,
	logger *zap.Logger,
) *NarrativeService {
	return &NarrativeService{
		caseRepo:   caseRepo,
		versions:   versions,
		evalRepo:   evalRepo,
		retrievals: retrievals,
		generation: generation,
		stateSvc:   stateSvc,
		audit:      audit,
		txRunner:   txRunner,
		pipeCfg:    pipeCfg,
		logger:     logger.Named("narrative"),
	}
}

// GetCurrent returns the case's current narrative version.
func (s *NarrativeService) GetCurrent(ctx context.Context, caseID uuid.UUID) (*models.NarrativeVersion, error) {
	return s.versions.GetCurrent(ctx, caseID)
}

// ListVersions returns the case's full version history in version order.
func (s *NarrativeService) ListVersions(ctx context.Context, caseID uuid.UUID) ([]*models.NarrativeVersion, error) {
	return s.versions.ListByCase(ctx, caseID)
}

// Edit creates a new analyst-edited version as the current one. The prior
// version's content stays untouched in history. Allowed while the case is
// drafted or under review.
func (s *NarrativeService) Edit(ctx context.Context, caseID uuid.UUID, content string) (*models.NarrativeVersion, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: narrative content is required", apperrors.ErrInvalidInput)
	}

	c, err := s.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.State != models.StateNarrativeDrafted && c.State != models.StateUnderReview {
		return nil, fmt.Errorf("%w: cannot edit narrative in state %s", apperrors.ErrInvalidTransition, c.State)
	}

	version := &models.NarrativeVersion{
		CaseID:   caseID,
		Content:  content,
		Origin:   models.OriginAnalystEdited,
		AuthorID: models.ActorOrSystem(ctx).ID,
	}

	err = s.txRunner.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.versions.CreateVersionTx(ctx, tx, version); err != nil {
			return err
		}
		payload, err := models.MarshalPayload(models.NarrativeVersionPayload{
			VersionID:     version.ID,
			VersionNumber: version.VersionNumber,
			Origin:        string(version.Origin),
			ContentHash:   hashchain.SumString(version.Content),
		})
		if err != nil {
			return err
		}
		return s.audit.AppendTx(ctx, tx, caseID, models.EventNarrativeVersionCreated, payload)
	})
	if err != nil {
		return nil, err
	}

	return version, nil
}

// SubmitForReview moves a drafted case into review.
func (s *NarrativeService) SubmitForReview(ctx context.Context, caseID uuid.UUID) (*models.Case, error) {
	c, err := s.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	err = s.txRunner.InTx(ctx, func(tx pgx.Tx) error {
		return s.stateSvc.TransitionTx(ctx, tx, c, models.StateUnderReview, "submitted for review")
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Approve records an approval verdict on the current pending version and
// moves the case to APPROVED. The verdict, version update and state change
// commit together or not at all.
func (s *NarrativeService) Approve(ctx context.Context, caseID uuid.UUID) (*models.NarrativeVersion, error) {
	return s.review(ctx, caseID, models.ReviewApproved, models.StateApproved, models.EventNarrativeApproved)
}

// Reject records a rejection verdict on the current pending version and
// moves the case to REJECTED.
func (s *NarrativeService) Reject(ctx context.Context, caseID uuid.UUID) (*models.NarrativeVersion, error) {
	return s.review(ctx, caseID, models.ReviewRejected, models.StateRejected, models.EventNarrativeRejected)
}

func (s *NarrativeService) review(
	ctx context.Context,
	caseID uuid.UUID,
	verdict models.ReviewStatus,
	toState models.CaseState,
	eventType models.EventType,
) (*models.NarrativeVersion, error) {
	c, err := s.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.State != models.StateUnderReview {
		return nil, fmt.Errorf("%w: review requires state %s, case is %s",
			apperrors.ErrInvalidTransition, models.StateUnderReview, c.State)
	}

	version, err := s.versions.GetCurrent(ctx, caseID)
	if err != nil {
		return nil, err
	}

	err = s.txRunner.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.versions.SetReviewStatusTx(ctx, tx, version.ID, verdict); err != nil {
			return err
		}
		payload, err := models.MarshalPayload(models.NarrativeVersionPayload{
			VersionID:     version.ID,
			VersionNumber: version.VersionNumber,
			Origin:        string(version.Origin),
			Fallback:      version.IsFallback,
		})
		if err != nil {
			return err
		}
		if err := s.audit.AppendTx(ctx, tx, caseID, eventType, payload); err != nil {
			return err
		}
		return s.stateSvc.TransitionTx(ctx, tx, c, toState, "review verdict: "+string(verdict))
	})
	if err != nil {
		return nil, err
	}

	version.ReviewStatus = verdict
	s.logger.Info("narrative reviewed",
		zap.String("case_id", caseID.String()),
		zap.Int("version", version.VersionNumber),
		zap.String("verdict", string(verdict)))
	return version, nil
}

// Redraft loops a rejected case back to drafting and generates a fresh
// machine draft from the latest evaluation and retrieved context. Each case
// has a bounded redraft budget; once spent, further redrafts are refused.
func (s *NarrativeService) Redraft(ctx context.Context, caseID uuid.UUID) (*models.NarrativeVersion, error) {
	c, err := s.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.State != models.StateRejected {
		return nil, fmt.Errorf("%w: redraft requires state %s, case is %s",
			apperrors.ErrInvalidTransition, models.StateRejected, c.State)
	}
	if !RedraftAllowed(c.RedraftCount, s.pipeCfg.MaxRedrafts) {
		return nil, fmt.Errorf("%w: case %s used %d of %d redrafts",
			apperrors.ErrRedraftLimit, caseID, c.RedraftCount, s.pipeCfg.MaxRedrafts)
	}

	nc, err := parseNormalizedCase(c.InputData)
	if err != nil {
		return nil, err
	}
	eval, err := s.evalRepo.GetLatestByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	docs, err := s.latestDocuments(ctx, caseID)
	if err != nil {
		return nil, err
	}

	err = s.txRunner.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.caseRepo.IncrementRedraftTx(ctx, tx, caseID); err != nil {
			return err
		}
		return s.stateSvc.TransitionTx(ctx, tx, c, models.StateNarrativeDrafted, "redraft requested")
	})
	if err != nil {
		return nil, err
	}

	version, _, err := s.generation.GenerateNarrative(ctx, c, nc, eval, docs)
	return version, err
}

// Submit finalizes an approved case. Submission requires the current
// version to carry an approved verdict; SUBMITTED is terminal.
func (s *NarrativeService) Submit(ctx context.Context, caseID uuid.UUID) (*models.Case, error) {
	c, err := s.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	version, err := s.versions.GetCurrent(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if version.ReviewStatus != models.ReviewApproved {
		return nil, fmt.Errorf("%w: submission requires an approved narrative, version %d is %s",
			apperrors.ErrInvalidTransition, version.VersionNumber, version.ReviewStatus)
	}

	err = s.txRunner.InTx(ctx, func(tx pgx.Tx) error {
		return s.stateSvc.TransitionTx(ctx, tx, c, models.StateSubmitted, "report submitted")
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// latestDocuments returns the documents of the case's most recent retrieval
// pass, or none when retrieval never succeeded.
func (s *NarrativeService) latestDocuments(ctx context.Context, caseID uuid.UUID) ([]models.RetrievedDocument, error) {
	events, err := s.retrievals.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return events[len(events)-1].Documents, nil
}
