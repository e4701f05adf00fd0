package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/casetrail/engine/pkg/database"
	"github.com/casetrail/engine/pkg/models"
)

// RetrievalEventRepository provides data access for context retrieval
// records. Events are insert-only and keep document order as returned.
type RetrievalEventRepository interface {
	// CreateTx inserts a retrieval event inside the supplied transaction.
	CreateTx(ctx context.Context, tx pgx.Tx, event *models.RetrievalEvent) error

	// ListByCase returns all retrieval events for a case, oldest first.
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.RetrievalEvent, error)
}

type retrievalEventRepository struct{}

// NewRetrievalEventRepository creates a new RetrievalEventRepository.
func NewRetrievalEventRepository() RetrievalEventRepository {
	return &retrievalEventRepository{}
}

var _ RetrievalEventRepository = (*retrievalEventRepository)(nil)

func (r *retrievalEventRepository) CreateTx(ctx context.Context, tx pgx.Tx, event *models.RetrievalEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.RetrievedAt.IsZero() {
		event.RetrievedAt = time.Now().UTC()
	}

	docsJSON, err := json.Marshal(event.Documents)
	if err != nil {
		return fmt.Errorf("failed to marshal retrieved documents: %w", err)
	}

	query := `
		INSERT INTO retrieval_events (
			id, case_id, tenant_id, typologies, regulatory_hooks, documents, retrieved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = tx.Exec(ctx, query,
		event.ID,
		event.CaseID,
		event.TenantID,
		event.Typologies,
		event.RegulatoryHooks,
		docsJSON,
		event.RetrievedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create retrieval event: %w", err)
	}

	return nil
}

func (r *retrievalEventRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.RetrievalEvent, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, case_id, tenant_id, typologies, regulatory_hooks, documents, retrieved_at
		FROM retrieval_events
		WHERE case_id = $1
		ORDER BY retrieved_at ASC`

	rows, err := scope.Conn.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query retrieval events: %w", err)
	}
	defer rows.Close()

	var events []*models.RetrievalEvent
	for rows.Next() {
		event, err := scanRetrievalEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating retrieval events: %w", err)
	}

	return events, nil
}

func scanRetrievalEvent(row pgx.Row) (*models.RetrievalEvent, error) {
	var event models.RetrievalEvent
	var docsJSON []byte

	err := row.Scan(
		&event.ID,
		&event.CaseID,
		&event.TenantID,
		&event.Typologies,
		&event.RegulatoryHooks,
		&docsJSON,
		&event.RetrievedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan retrieval event: %w", err)
	}

	if len(docsJSON) > 0 {
		if err := json.Unmarshal(docsJSON, &event.Documents); err != nil {
			return nil, fmt.Errorf("failed to unmarshal retrieved documents: %w", err)
		}
	}

	return &event, nil
}
