package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/casetrail/engine/pkg/apperrors"
	"github.com/casetrail/engine/pkg/database"
	"github.com/casetrail/engine/pkg/models"
)

// CaseRepository provides data access for compliance cases.
type CaseRepository interface {
	// CreateTx inserts a new case inside the supplied transaction so the
	// creation audit event lands atomically with the row.
	CreateTx(ctx context.Context, tx pgx.Tx, c *models.Case) error

	// GetByID returns a case by ID within the current tenant scope.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error)

	// List returns cases for the current tenant, newest first.
	List(ctx context.Context, limit int) ([]*models.Case, error)

	// UpdateStateTx sets the case state inside the supplied transaction.
	UpdateStateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, state models.CaseState) error

	// UpdateRiskTx records the composite risk score and category.
	UpdateRiskTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, score float64, category models.RiskCategory) error

	// IncrementRedraftTx bumps the redraft counter and returns the new count.
	IncrementRedraftTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error)
}

type caseRepository struct{}

// NewCaseRepository creates a new CaseRepository.
func NewCaseRepository() CaseRepository {
	return &caseRepository{}
}

var _ CaseRepository = (*caseRepository)(nil)

func (r *caseRepository) CreateTx(ctx context.Context, tx pgx.Tx, c *models.Case) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
		INSERT INTO cases (
			id, tenant_id, input_data, state, risk_score, risk_category, redraft_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		c.ID,
		c.TenantID,
		c.InputData,
		c.State,
		c.RiskScore,
		c.RiskCategory,
		c.RedraftCount,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}

	return nil
}

func (r *caseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, tenant_id, input_data, state, risk_score, risk_category, redraft_count, created_at, updated_at
		FROM cases
		WHERE id = $1`

	return scanCase(scope.Conn.QueryRow(ctx, query, id))
}

func (r *caseRepository) List(ctx context.Context, limit int) ([]*models.Case, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, tenant_id, input_data, state, risk_score, risk_category, redraft_count, created_at, updated_at
		FROM cases
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := scope.Conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}
	defer rows.Close()

	var cases []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cases: %w", err)
	}

	return cases, nil
}

func (r *caseRepository) UpdateStateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, state models.CaseState) error {
	query := `
		UPDATE cases
		SET state = $2, updated_at = now()
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query, id, state)
	if err != nil {
		return fmt.Errorf("failed to update case state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *caseRepository) UpdateRiskTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, score float64, category models.RiskCategory) error {
	query := `
		UPDATE cases
		SET risk_score = $2, risk_category = $3, updated_at = now()
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query, id, score, category)
	if err != nil {
		return fmt.Errorf("failed to update case risk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *caseRepository) IncrementRedraftTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error) {
	query := `
		UPDATE cases
		SET redraft_count = redraft_count + 1, updated_at = now()
		WHERE id = $1
		RETURNING redraft_count`

	var count int
	if err := tx.QueryRow(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment redraft count: %w", err)
	}

	return count, nil
}

func scanCase(row pgx.Row) (*models.Case, error) {
	var c models.Case
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.InputData,
		&c.State,
		&c.RiskScore,
		&c.RiskCategory,
		&c.RedraftCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan case: %w", err)
	}
	return &c, nil
}
