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

// NarrativeRepository provides data access for narrative versions. Versions
// are immutable once written; creating a version assigns the next contiguous
// version number and flips the current pointer in the same transaction.
type NarrativeRepository interface {
	// CreateVersionTx inserts a new version as the current one, demoting the
	// previous current version. Sets VersionNumber and IsCurrent on the model.
	CreateVersionTx(ctx context.Context, tx pgx.Tx, v *models.NarrativeVersion) error

	// GetCurrent returns the case's current narrative version.
	GetCurrent(ctx context.Context, caseID uuid.UUID) (*models.NarrativeVersion, error)

	// GetByID returns a specific version.
	GetByID(ctx context.Context, id uuid.UUID) (*models.NarrativeVersion, error)

	// ListByCase returns all versions for a case in version order.
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.NarrativeVersion, error)

	// SetReviewStatusTx moves a version from pending to approved or rejected.
	// Returns ErrVersionNotPending if the version already has a verdict.
	SetReviewStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.ReviewStatus) error
}

type narrativeRepository struct{}

// NewNarrativeRepository creates a new NarrativeRepository.
func NewNarrativeRepository() NarrativeRepository {
	return &narrativeRepository{}
}

var _ NarrativeRepository = (*narrativeRepository)(nil)

func (r *narrativeRepository) CreateVersionTx(ctx context.Context, tx pgx.Tx, v *models.NarrativeVersion) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if v.ReviewStatus == "" {
		v.ReviewStatus = models.ReviewPending
	}

	// Demote the previous current version and claim the next number. The
	// partial unique index on (case_id) WHERE is_current makes a lost race
	// here a constraint violation rather than two current versions.
	_, err := tx.Exec(ctx,
		`UPDATE narrative_versions SET is_current = false WHERE case_id = $1 AND is_current`, v.CaseID)
	if err != nil {
		return fmt.Errorf("failed to demote current narrative version: %w", err)
	}

	query := `
		INSERT INTO narrative_versions (
			id, case_id, version_number, content, origin, review_status, is_current, is_fallback, author_id, model_id, created_at
		)
		SELECT $1, $2, COALESCE(MAX(version_number), 0) + 1, $3, $4, $5, true, $6, $7, $8, $9
		FROM narrative_versions
		WHERE case_id = $2
		RETURNING version_number`

	err = tx.QueryRow(ctx, query,
		v.ID,
		v.CaseID,
		v.Content,
		v.Origin,
		v.ReviewStatus,
		v.IsFallback,
		v.AuthorID,
		v.ModelID,
		v.CreatedAt,
	).Scan(&v.VersionNumber)
	if err != nil {
		return fmt.Errorf("failed to create narrative version: %w", err)
	}
	v.IsCurrent = true

	return nil
}

func (r *narrativeRepository) GetCurrent(ctx context.Context, caseID uuid.UUID) (*models.NarrativeVersion, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := selectNarrativeVersion + ` WHERE case_id = $1 AND is_current`
	return scanNarrativeVersion(scope.Conn.QueryRow(ctx, query, caseID))
}

func (r *narrativeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.NarrativeVersion, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := selectNarrativeVersion + ` WHERE id = $1`
	return scanNarrativeVersion(scope.Conn.QueryRow(ctx, query, id))
}

func (r *narrativeRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.NarrativeVersion, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := selectNarrativeVersion + ` WHERE case_id = $1 ORDER BY version_number ASC`

	rows, err := scope.Conn.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query narrative versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.NarrativeVersion
	for rows.Next() {
		v, err := scanNarrativeVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating narrative versions: %w", err)
	}

	return versions, nil
}

func (r *narrativeRepository) SetReviewStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.ReviewStatus) error {
	query := `
		UPDATE narrative_versions
		SET review_status = $2
		WHERE id = $1 AND review_status = 'pending'`

	tag, err := tx.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to set review status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing version from one already reviewed.
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM narrative_versions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check narrative version: %w", err)
		}
		if !exists {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrVersionNotPending
	}

	return nil
}

const selectNarrativeVersion = `
	SELECT id, case_id, version_number, content, origin, review_status, is_current, is_fallback, author_id, model_id, created_at
	FROM narrative_versions`

func scanNarrativeVersion(row pgx.Row) (*models.NarrativeVersion, error) {
	var v models.NarrativeVersion
	err := row.Scan(
		&v.ID,
		&v.CaseID,
		&v.VersionNumber,
		&v.Content,
		&v.Origin,
		&v.ReviewStatus,
		&v.IsCurrent,
		&v.IsFallback,
		&v.AuthorID,
		&v.ModelID,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan narrative version: %w", err)
	}
	return &v, nil
}
