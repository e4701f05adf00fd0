package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/casetrail/engine/pkg/config"
	"github.com/casetrail/engine/pkg/database"
	"github.com/casetrail/engine/pkg/hashchain"
	"github.com/casetrail/engine/pkg/llm"
	"github.com/casetrail/engine/pkg/models"
	"github.com/casetrail/engine/pkg/prompts"
	"github.com/casetrail/engine/pkg/repositories"
)

// GenerationService orchestrates narrative generation for a case: prompt
// assembly, bounded validation retries against the generation collaborator,
// and the deterministic template fallback when the budget is exhausted.
// Every attempt is persisted and audited whether it validated or not, and a
// run always ends with a narrative version in pending review.
type GenerationService struct {
	generator llm.Generator
	breaker   *llm.CircuitBreaker
	attempts  repositories.GenerationAttemptRepository
	versions  repositories.NarrativeRepository
	audit     *AuditService
	txRunner  database.TxRunner
	llmCfg    config.LLMConfig
	pipeCfg   config.PipelineConfig
	logger    *zap.Logger

	// sleep is swapped in tests so retry backoff does not slow the suite.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGenerationService creates a new GenerationService.
func NewGenerationService(
	generator llm.Generator,
	breaker *llm.CircuitBreaker,
	attempts repositories.GenerationAttemptRepository,
	versions repositories.NarrativeRepository,
	audit *AuditService,
	txRunner database.TxRunner,
	llmCfg config.LLMConfig,
	pipeCfg config.PipelineConfig,
	logger *zap.Logger,
) *GenerationService {
	return &GenerationService{
		generator: generator,
		breaker:   breaker,
		attempts:  attempts,
		versions:  versions,
		audit:     audit,
		txRunner:  txRunner,
		llmCfg:    llmCfg,
		pipeCfg:   pipeCfg,
		logger:    logger.Named("generation"),
		sleep:     sleepCtx,
	}
}

// GenerateNarrative runs the bounded generate-validate loop for a case and
// returns the created narrative version. The second return is true when the
// template fallback produced it. Only persistence failures return an error;
// collaborator failures and invalid outputs are consumed by the retry and
// fallback path.
func (s *GenerationService) GenerateNarrative(
	ctx context.Context,
	c *models.Case,
	nc *models.NormalizedCase,
	eval *models.RuleEvaluation,
	docs []models.RetrievedDocument,
) (*models.NarrativeVersion, bool, error) {
	prompt := prompts.BuildNarrativePrompt(eval, docs)
	promptHash := prompts.PromptHash(prompt)

	backoff := s.pipeCfg.GenerationBackoff
	for attemptNo := 1; attemptNo <= s.pipeCfg.MaxGenerationAttempts; attemptNo++ {
		if attemptNo > 1 {
			if err := s.sleep(ctx, backoff); err != nil {
				break
			}
			backoff *= 2
		}

		if allowed, cbErr := s.breaker.Allow(); !allowed {
			s.logger.Warn("generation circuit open, skipping remaining attempts",
				zap.String("case_id", c.ID.String()), zap.Error(cbErr))
			break
		}

		attempt, content := s.runAttempt(ctx, c, nc, eval, prompt, promptHash, attemptNo)
		if err := s.persistAttempt(ctx, attempt); err != nil {
			return nil, false, err
		}

		if !attempt.Valid {
			continue
		}

		version, err := s.createVersion(ctx, c, &models.NarrativeVersion{
			CaseID:   c.ID,
			Content:  content,
			Origin:   models.OriginMachineGenerated,
			AuthorID: models.ActorOrSystem(ctx).ID,
			ModelID:  attempt.ModelID,
		}, models.EventGenerationSucceeded, models.GenerationOutcomePayload{
			AttemptID:     attempt.ID,
			AttemptNumber: attempt.AttemptNumber,
			ModelID:       attempt.ModelID,
		})
		if err != nil {
			return nil, false, err
		}
		return version, false, nil
	}

	// Retry budget exhausted or circuit open. The pipeline never fails for
	// generation reasons; the analyst gets a deterministic template draft.
	content := BuildFallbackNarrative(nc, eval)
	version, err := s.createVersion(ctx, c, &models.NarrativeVersion{
		CaseID:     c.ID,
		Content:    content,
		Origin:     models.OriginMachineGenerated,
		IsFallback: true,
		AuthorID:   models.ActorOrSystem(ctx).ID,
	}, models.EventGenerationFallbackUsed, models.GenerationOutcomePayload{
		Fallback: true,
	})
	if err != nil {
		return nil, false, err
	}

	s.logger.Warn("generation fell back to template",
		zap.String("case_id", c.ID.String()),
		zap.Int("attempts", s.pipeCfg.MaxGenerationAttempts))
	return version, true, nil
}

// runAttempt performs one collaborator call plus output validation and
// returns the attempt record and, when valid, the narrative content.
func (s *GenerationService) runAttempt(
	ctx context.Context,
	c *models.Case,
	nc *models.NormalizedCase,
	eval *models.RuleEvaluation,
	prompt, promptHash string,
	attemptNo int,
) (*models.GenerationAttempt, string) {
	attempt := &models.GenerationAttempt{
		CaseID:        c.ID,
		AttemptNumber: attemptNo,
		PromptHash:    promptHash,
		ModelID:       s.generator.Model(),
	}

	callCtx, cancel := context.WithTimeout(ctx, s.llmCfg.Timeout)
	defer cancel()

	start := time.Now()
	result, err := s.generator.Complete(callCtx, prompt, s.llmCfg.MaxTokens, s.llmCfg.Temperature)
	attempt.Latency = time.Since(start)

	if err != nil {
		s.breaker.RecordFailure()
		classified := llm.ClassifyError(err, s.generator.Model())
		attempt.FailureReasons = []string{classified.Error()}
		s.logger.Warn("generation attempt failed",
			zap.String("case_id", c.ID.String()),
			zap.Int("attempt", attemptNo),
			zap.Error(classified))
		return attempt, ""
	}
	s.breaker.RecordSuccess()
	attempt.ModelID = result.ModelID
	attempt.RawOutput = result.Content

	if failures := ValidateNarrative(result.Content, nc, eval); len(failures) > 0 {
		attempt.FailureReasons = failures
		s.logger.Warn("generation output failed validation",
			zap.String("case_id", c.ID.String()),
			zap.Int("attempt", attemptNo),
			zap.Strings("failures", failures))
		return attempt, ""
	}

	attempt.Valid = true
	return attempt, result.Content
}

// persistAttempt stores the attempt record and its audit event atomically.
func (s *GenerationService) persistAttempt(ctx context.Context, attempt *models.GenerationAttempt) error {
	return s.txRunner.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.attempts.CreateTx(ctx, tx, attempt); err != nil {
			return err
		}
		payload, err := models.MarshalPayload(models.GenerationAttemptedPayload{
			AttemptID:      attempt.ID,
			AttemptNumber:  attempt.AttemptNumber,
			PromptHash:     attempt.PromptHash,
			ModelID:        attempt.ModelID,
			Valid:          attempt.Valid,
			FailureReasons: attempt.FailureReasons,
			LatencyMS:      attempt.Latency.Milliseconds(),
		})
		if err != nil {
			return err
		}
		return s.audit.AppendTx(ctx, tx, attempt.CaseID, models.EventGenerationAttempted, payload)
	})
}

// createVersion stores a new current narrative version together with the
// generation outcome event and the version-created event.
func (s *GenerationService) createVersion(
	ctx context.Context,
	c *models.Case,
	version *models.NarrativeVersion,
	outcomeType models.EventType,
	outcome models.GenerationOutcomePayload,
) (*models.NarrativeVersion, error) {
	err := s.txRunner.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.versions.CreateVersionTx(ctx, tx, version); err != nil {
			return err
		}

		outcomePayload, err := models.MarshalPayload(outcome)
		if err != nil {
			return err
		}
		if err := s.audit.AppendTx(ctx, tx, c.ID, outcomeType, outcomePayload); err != nil {
			return err
		}

		versionPayload, err := models.MarshalPayload(models.NarrativeVersionPayload{
			VersionID:     version.ID,
			VersionNumber: version.VersionNumber,
			Origin:        string(version.Origin),
			Fallback:      version.IsFallback,
			ContentHash:   hashchain.SumString(version.Content),
		})
		if err != nil {
			return err
		}
		return s.audit.AppendTx(ctx, tx, c.ID, models.EventNarrativeVersionCreated, versionPayload)
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
