package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/casetrail/engine/pkg/database"
	"github.com/casetrail/engine/pkg/models"
)

// GenerationAttemptRepository provides data access for generation attempts.
// Every attempt is persisted, failed or not, and never overwritten.
type GenerationAttemptRepository interface {
	// CreateTx inserts an attempt inside the supplied transaction.
	CreateTx(ctx context.Context, tx pgx.Tx, attempt *models.GenerationAttempt) error

	// ListByCase returns all attempts for a case in attempt order.
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.GenerationAttempt, error)
}

type generationAttemptRepository struct{}

// NewGenerationAttemptRepository creates a new GenerationAttemptRepository.
func NewGenerationAttemptRepository() GenerationAttemptRepository {
	return &generationAttemptRepository{}
}

var _ GenerationAttemptRepository = (*generationAttemptRepository)(nil)

func (r *generationAttemptRepository) CreateTx(ctx context.Context, tx pgx.Tx, attempt *models.GenerationAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO generation_attempts (
			id, case_id, attempt_number, prompt_hash, raw_output, valid, failure_reasons, model_id, latency_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		attempt.ID,
		attempt.CaseID,
		attempt.AttemptNumber,
		attempt.PromptHash,
		attempt.RawOutput,
		attempt.Valid,
		attempt.FailureReasons,
		attempt.ModelID,
		attempt.Latency.Milliseconds(),
		attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create generation attempt: %w", err)
	}

	return nil
}

func (r *generationAttemptRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.GenerationAttempt, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, case_id, attempt_number, prompt_hash, raw_output, valid, failure_reasons, model_id, latency_ms, created_at
		FROM generation_attempts
		WHERE case_id = $1
		ORDER BY created_at ASC, attempt_number ASC`

	rows, err := scope.Conn.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query generation attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.GenerationAttempt
	for rows.Next() {
		attempt, err := scanGenerationAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generation attempts: %w", err)
	}

	return attempts, nil
}

func scanGenerationAttempt(row pgx.Row) (*models.GenerationAttempt, error) {
	var attempt models.GenerationAttempt
	var latencyMS int64

	err := row.Scan(
		&attempt.ID,
		&attempt.CaseID,
		&attempt.AttemptNumber,
		&attempt.PromptHash,
		&attempt.RawOutput,
		&attempt.Valid,
		&attempt.FailureReasons,
		&attempt.ModelID,
		&latencyMS,
		&attempt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan generation attempt: %w", err)
	}

	attempt.Latency = time.Duration(latencyMS) * time.Millisecond
	return &attempt, nil
}
