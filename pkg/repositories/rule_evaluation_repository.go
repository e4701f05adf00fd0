package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/casetrail/engine/pkg/apperrors"
	"github.com/casetrail/engine/pkg/database"
	"github.com/casetrail/engine/pkg/models"
)

// RuleEvaluationRepository provides data access for rule-engine passes.
// Evaluations are insert-only; a re-run creates a new row.
type RuleEvaluationRepository interface {
	// CreateTx inserts an evaluation inside the supplied transaction.
	CreateTx(ctx context.Context, tx pgx.Tx, eval *models.RuleEvaluation) error

	// GetLatestByCase returns the most recent evaluation for a case.
	GetLatestByCase(ctx context.Context, caseID uuid.UUID) (*models.RuleEvaluation, error)

	// ListByCase returns all evaluations for a case, oldest first.
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.RuleEvaluation, error)
}

type ruleEvaluationRepository struct{}

// NewRuleEvaluationRepository creates a new RuleEvaluationRepository.
func NewRuleEvaluationRepository() RuleEvaluationRepository {
	return &ruleEvaluationRepository{}
}

var _ RuleEvaluationRepository = (*ruleEvaluationRepository)(nil)

func (r *ruleEvaluationRepository) CreateTx(ctx context.Context, tx pgx.Tx, eval *models.RuleEvaluation) error {
	if eval.ID == uuid.Nil {
		eval.ID = uuid.New()
	}
	if eval.EvaluatedAt.IsZero() {
		eval.EvaluatedAt = time.Now().UTC()
	}

	resultsJSON, err := json.Marshal(eval.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal rule results: %w", err)
	}

	query := `
		INSERT INTO rule_evaluations (
			id, case_id, results, composite_score, risk_category, typologies, engine_version, evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.Exec(ctx, query,
		eval.ID,
		eval.CaseID,
		resultsJSON,
		eval.CompositeScore,
		eval.RiskCategory,
		eval.Typologies,
		eval.EngineVersion,
		eval.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create rule evaluation: %w", err)
	}

	return nil
}

func (r *ruleEvaluationRepository) GetLatestByCase(ctx context.Context, caseID uuid.UUID) (*models.RuleEvaluation, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, case_id, results, composite_score, risk_category, typologies, engine_version, evaluated_at
		FROM rule_evaluations
		WHERE case_id = $1
		ORDER BY evaluated_at DESC
		LIMIT 1`

	return scanRuleEvaluation(scope.Conn.QueryRow(ctx, query, caseID))
}

func (r *ruleEvaluationRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.RuleEvaluation, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, case_id, results, composite_score, risk_category, typologies, engine_version, evaluated_at
		FROM rule_evaluations
		WHERE case_id = $1
		ORDER BY evaluated_at ASC`

	rows, err := scope.Conn.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule evaluations: %w", err)
	}
	defer rows.Close()

	var evals []*models.RuleEvaluation
	for rows.Next() {
		eval, err := scanRuleEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evals = append(evals, eval)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule evaluations: %w", err)
	}

	return evals, nil
}

func scanRuleEvaluation(row pgx.Row) (*models.RuleEvaluation, error) {
	var eval models.RuleEvaluation
	var resultsJSON []byte

	err := row.Scan(
		&eval.ID,
		&eval.CaseID,
		&resultsJSON,
		&eval.CompositeScore,
		&eval.RiskCategory,
		&eval.Typologies,
		&eval.EngineVersion,
		&eval.EvaluatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan rule evaluation: %w", err)
	}

	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &eval.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rule results: %w", err)
		}
	}

	return &eval, nil
}
