package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/casetrail/engine/pkg/apperrors"
	"github.com/casetrail/engine/pkg/config"
	"github.com/casetrail/engine/pkg/database"
	"github.com/casetrail/engine/pkg/models"
	"github.com/casetrail/engine/pkg/prompts"
	"github.com/casetrail/engine/pkg/repositories"
	"github.com/casetrail/engine/pkg/retrieval"
	"github.com/casetrail/engine/pkg/retry"
	"github.com/casetrail/engine/pkg/rules"
)

// PipelineResult summarizes one completed pipeline run.
type PipelineResult struct {
	CaseID             uuid.UUID           `json:"case_id"`
	State              models.CaseState    `json:"state"`
	CompositeScore     float64             `json:"composite_score"`
	RiskCategory       models.RiskCategory `json:"risk_category"`
	Typologies         []string            `json:"typologies"`
	HighPriority       bool                `json:"high_priority"`
	NarrativeVersionID uuid.UUID           `json:"narrative_version_id"`
	Fallback           bool                `json:"fallback"`
	RetrievalDegraded  bool                `json:"retrieval_degraded"`
}

// PipelineService owns case ingestion and the sequential generation
// pipeline: rules, context retrieval, narrative generation. One run per
// case at a time; stages always execute in order; only persistence failures
// abort a run.
type PipelineService struct {
	caseRepo      repositories.CaseRepository
	evalRepo      repositories.RuleEvaluationRepository
	retrievalRepo repositories.RetrievalEventRepository
	engine        *rules.Engine
	retriever     retrieval.Retriever
	generation    *GenerationService
	stateMachine  *CaseStateService
	audit         *AuditService
	txRunner      database.TxRunner
	locker        database.CaseLocker
	retrievalCfg  config.RetrievalConfig
	pipeCfg       config.PipelineConfig
	logger        *zap.Logger
}

// NewPipelineService creates a new PipelineService.
func NewPipelineService(
	caseRepo repositories.CaseRepository,
	evalRepo repositories.RuleEvaluationRepository,
	retrievalRepo repositories.RetrievalEventRepository,
	engine *rules.Engine,
	retriever retrieval.Retriever,
	generation *GenerationService,
	stateMachine *CaseStateService,
	audit *AuditService,
	txRunner database.TxRunner,
	locker database.CaseLocker,
	retrievalCfg config.RetrievalConfig,
	pipeCfg config.PipelineConfig,
	logger *zap.Logger,
) *PipelineService {
	return &PipelineService{
		caseRepo:      caseRepo,
		evalRepo:      evalRepo,
		retrievalRepo: retrievalRepo,
		engine:        engine,
		retriever:     retriever,
		generation:    generation,
		stateMachine:  stateMachine,
		audit:         audit,
		txRunner:      txRunner,
		locker:        locker,
		retrievalCfg:  retrievalCfg,
		pipeCfg:       pipeCfg,
		logger:        logger.Named("pipeline"),
	}
}

// IngestCase validates the normalized input snapshot and creates the case in
// state NEW along with its creation audit event. Invalid input is rejected
// before anything is persisted.
func (s *PipelineService) IngestCase(ctx context.Context, input json.RawMessage) (*models.Case, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	nc, err := parseNormalizedCase(input)
	if err != nil {
		return nil, err
	}

	c := &models.Case{
		TenantID:     scope.TenantID,
		InputData:    input,
		State:        models.StateNew,
		RiskCategory: models.RiskLow,
	}

	err = s.txRunner.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.caseRepo.CreateTx(ctx, tx, c); err != nil {
			return err
		}
		payload, err := models.MarshalPayload(models.CaseCreatedPayload{
			TenantID:         c.TenantID,
			CustomerID:       nc.Customer.CustomerID,
			TransactionCount: len(nc.Transactions),
			AlertCount:       len(nc.Alerts),
		})
		if err != nil {
			return err
		}
		return s.audit.AppendTx(ctx, tx, c.ID, models.EventCaseCreated, payload)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("case created",
		zap.String("case_id", c.ID.String()),
		zap.String("customer_id", nc.Customer.CustomerID),
		zap.Int("transactions", len(nc.Transactions)))
	return c, nil
}

// Run executes the full pipeline for a case. A second concurrent run for the
// same case returns ErrCaseLocked without touching any state.
func (s *PipelineService) Run(ctx context.Context, caseID uuid.UUID) (*PipelineResult, error) {
	acquired, err := s.locker.TryLock(ctx, caseID)
	if err != nil {
		return nil, apperrors.NewPipelineError(caseID, "lock", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: case %s", apperrors.ErrCaseLocked, caseID)
	}
	defer func() {
		if err := s.locker.Unlock(ctx, caseID); err != nil {
			s.logger.Error("failed to release case lock",
				zap.String("case_id", caseID.String()), zap.Error(err))
		}
	}()

	c, err := s.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, apperrors.NewPipelineError(caseID, "load", err)
	}
	if c.State != models.StateNew {
		return nil, fmt.Errorf("%w: pipeline requires state %s, case is %s",
			apperrors.ErrInvalidTransition, models.StateNew, c.State)
	}

	nc, err := parseNormalizedCase(c.InputData)
	if err != nil {
		return nil, apperrors.NewPipelineError(caseID, "load", err)
	}

	eval, err := s.runRules(ctx, c, nc)
	if err != nil {
		return nil, apperrors.NewPipelineError(caseID, "rules", err)
	}

	docs, degraded, err := s.runRetrieval(ctx, c, eval)
	if err != nil {
		return nil, apperrors.NewPipelineError(caseID, "retrieval", err)
	}

	version, fallback, err := s.runGeneration(ctx, c, nc, eval, docs)
	if err != nil {
		return nil, apperrors.NewPipelineError(caseID, "generation", err)
	}

	return &PipelineResult{
		CaseID:             c.ID,
		State:              c.State,
		CompositeScore:     eval.CompositeScore,
		RiskCategory:       eval.RiskCategory,
		Typologies:         eval.Typologies,
		HighPriority:       eval.CompositeScore >= s.pipeCfg.RiskAlertThreshold,
		NarrativeVersionID: version.ID,
		Fallback:           fallback,
		RetrievalDegraded:  degraded,
	}, nil
}

// runRules executes the deterministic rule pass and persists the evaluation,
// the case's risk fields, the audit event and the state transition together.
func (s *PipelineService) runRules(ctx context.Context, c *models.Case, nc *models.NormalizedCase) (*models.RuleEvaluation, error) {
	eval := s.engine.Evaluate(c.ID, nc)

	err := s.txRunner.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.evalRepo.CreateTx(ctx, tx, eval); err != nil {
			return err
		}
		if err := s.caseRepo.UpdateRiskTx(ctx, tx, c.ID, eval.CompositeScore, eval.RiskCategory); err != nil {
			return err
		}
		payload, err := models.MarshalPayload(models.RulesEvaluatedPayload{
			RuleEvaluationID: eval.ID,
			TriggeredRuleIDs: eval.TriggeredRuleIDs(),
			CompositeScore:   eval.CompositeScore,
			RiskCategory:     string(eval.RiskCategory),
			Typologies:       eval.Typologies,
		})
		if err != nil {
			return err
		}
		if err := s.audit.AppendTx(ctx, tx, c.ID, models.EventRulesEvaluated, payload); err != nil {
			return err
		}
		return s.stateMachine.TransitionTx(ctx, tx, c, models.StateRulesEvaluated, "rule evaluation complete")
	})
	if err != nil {
		return nil, err
	}

	c.RiskScore = eval.CompositeScore
	c.RiskCategory = eval.RiskCategory
	return eval, nil
}

// runRetrieval fetches regulatory context with bounded retries. Retrieval is
// best-effort: on failure the pipeline records a degraded retrieval and
// proceeds with empty context rather than aborting.
func (s *PipelineService) runRetrieval(ctx context.Context, c *models.Case, eval *models.RuleEvaluation) ([]models.RetrievedDocument, bool, error) {
	hooks := prompts.RegulatoryHooks(eval.Typologies)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = s.retrievalCfg.Retries
	docs, lastErr := retry.DoWithResult(ctx, retryCfg, func() ([]models.RetrievedDocument, error) {
		docs, err := s.retriever.Retrieve(ctx, c.TenantID, eval.Typologies, hooks)
		if err == nil {
			err = verifyDocumentTenancy(docs, c.TenantID)
		}
		if err != nil {
			s.logger.Warn("retrieval attempt failed",
				zap.String("case_id", c.ID.String()), zap.Error(err))
		}
		return docs, err
	})

	degraded := lastErr != nil
	if degraded {
		docs = nil
	}

	event := &models.RetrievalEvent{
		CaseID:          c.ID,
		TenantID:        c.TenantID,
		Typologies:      eval.Typologies,
		RegulatoryHooks: hooks,
		Documents:       docs,
	}

	err := s.txRunner.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.retrievalRepo.CreateTx(ctx, tx, event); err != nil {
			return err
		}
		ids := make([]string, len(docs))
		for i, d := range docs {
			ids[i] = d.DocumentID
		}
		payload, err := models.MarshalPayload(models.ContextRetrievedPayload{
			RetrievalEventID: event.ID,
			DocumentIDs:      ids,
			DocumentCount:    len(docs),
			Degraded:         degraded,
		})
		if err != nil {
			return err
		}
		if err := s.audit.AppendTx(ctx, tx, c.ID, models.EventContextRetrieved, payload); err != nil {
			return err
		}
		return s.stateMachine.TransitionTx(ctx, tx, c, models.StateContextRetrieved, "context retrieval complete")
	})
	if err != nil {
		return nil, degraded, err
	}

	return docs, degraded, nil
}

// runGeneration produces the draft narrative and moves the case to
// NARRATIVE_DRAFTED.
func (s *PipelineService) runGeneration(
	ctx context.Context,
	c *models.Case,
	nc *models.NormalizedCase,
	eval *models.RuleEvaluation,
	docs []models.RetrievedDocument,
) (*models.NarrativeVersion, bool, error) {
	version, fallback, err := s.generation.GenerateNarrative(ctx, c, nc, eval, docs)
	if err != nil {
		return nil, false, err
	}

	err = s.txRunner.InTx(ctx, func(tx pgx.Tx) error {
		return s.stateMachine.TransitionTx(ctx, tx, c, models.StateNarrativeDrafted, "narrative draft created")
	})
	if err != nil {
		return nil, false, err
	}

	return version, fallback, nil
}

// verifyDocumentTenancy rejects any retrieved document tagged for a
// different tenant. Cross-tenant material must never reach a prompt.
func verifyDocumentTenancy(docs []models.RetrievedDocument, tenantID uuid.UUID) error {
	for _, d := range docs {
		if d.TenantID != tenantID {
			return fmt.Errorf("%w: document %s belongs to tenant %s",
				apperrors.ErrTenantMismatch, d.DocumentID, d.TenantID)
		}
	}
	return nil
}

// parseNormalizedCase decodes and validates the ingestion snapshot.
func parseNormalizedCase(input json.RawMessage) (*models.NormalizedCase, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("%w: empty case input", apperrors.ErrInvalidInput)
	}
	var nc models.NormalizedCase
	if err := json.Unmarshal(input, &nc); err != nil {
		return nil, fmt.Errorf("%w: malformed case input: %v", apperrors.ErrInvalidInput, err)
	}
	if nc.Customer.CustomerID == "" {
		return nil, fmt.Errorf("%w: customer_id is required", apperrors.ErrInvalidInput)
	}
	if len(nc.Transactions) == 0 {
		return nil, fmt.Errorf("%w: at least one transaction is required", apperrors.ErrInvalidInput)
	}
	for i, txn := range nc.Transactions {
		if txn.Amount < 0 {
			return nil, fmt.Errorf("%w: transaction %d has negative amount", apperrors.ErrInvalidInput, i)
		}
		if txn.Type != "credit" && txn.Type != "debit" {
			return nil, fmt.Errorf("%w: transaction %d has unknown type %q", apperrors.ErrInvalidInput, i, txn.Type)
		}
	}
	return &nc, nil
}
