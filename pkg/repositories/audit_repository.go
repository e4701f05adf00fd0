package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/casetrail/engine/pkg/apperrors"
	"github.com/casetrail/engine/pkg/database"
	"github.com/casetrail/engine/pkg/hashchain"
	"github.com/casetrail/engine/pkg/models"
)

// AuditEventFilter narrows ListByCase results. Zero values mean no filter.
type AuditEventFilter struct {
	Types []models.EventType
	From  time.Time
	To    time.Time
}

// AuditRepository provides access to the append-only per-case audit log.
// There are deliberately no update or delete methods.
type AuditRepository interface {
	// AppendTx assigns the next sequence number for the case, links the hash
	// chain and inserts the event, all inside the supplied transaction. The
	// event's SequenceNo, PrevHash, Hash and CreatedAt are set on return.
	AppendTx(ctx context.Context, tx pgx.Tx, event *models.AuditEvent) error

	// ListByCase returns events for a case in sequence order, optionally
	// filtered by type and time window.
	ListByCase(ctx context.Context, caseID uuid.UUID, filter AuditEventFilter) ([]*models.AuditEvent, error)
}

type auditRepository struct{}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository() AuditRepository {
	return &auditRepository{}
}

var _ AuditRepository = (*auditRepository)(nil)

func (r *auditRepository) AppendTx(ctx context.Context, tx pgx.Tx, event *models.AuditEvent) error {
	if !event.EventType.IsValid() {
		return fmt.Errorf("%w: unknown event type %q", apperrors.ErrInvalidInput, event.EventType)
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now().UTC()

	// Lock the tail of this case's chain so concurrent appenders serialize.
	// A fresh chain starts at sequence 1 from the genesis hash.
	var lastSeq int64
	var lastHash string
	err := tx.QueryRow(ctx, `
		SELECT sequence_no, hash
		FROM audit_events
		WHERE case_id = $1
		ORDER BY sequence_no DESC
		LIMIT 1
		FOR UPDATE`, event.CaseID).Scan(&lastSeq, &lastHash)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to read audit chain tail: %w", err)
		}
		lastSeq = 0
		lastHash = hashchain.GenesisHash
	}

	event.SequenceNo = lastSeq + 1
	event.PrevHash = lastHash
	event.Hash, err = hashchain.Next(lastHash, event)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_events (
			id, case_id, sequence_no, event_type, payload, actor, hash, prev_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.Exec(ctx, query,
		event.ID,
		event.CaseID,
		event.SequenceNo,
		event.EventType,
		event.Payload,
		event.Actor,
		event.Hash,
		event.PrevHash,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}

	return nil
}

func (r *auditRepository) ListByCase(ctx context.Context, caseID uuid.UUID, filter AuditEventFilter) ([]*models.AuditEvent, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	var b strings.Builder
	b.WriteString(`
		SELECT id, case_id, sequence_no, event_type, payload, actor, hash, prev_hash, created_at
		FROM audit_events
		WHERE case_id = $1`)
	args := []any{caseID}

	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		fmt.Fprintf(&b, " AND event_type = ANY($%d)", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		fmt.Fprintf(&b, " AND created_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		fmt.Fprintf(&b, " AND created_at <= $%d", len(args))
	}
	b.WriteString(" ORDER BY sequence_no ASC")

	rows, err := scope.Conn.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}

func scanAuditEvent(row pgx.Row) (*models.AuditEvent, error) {
	var event models.AuditEvent
	err := row.Scan(
		&event.ID,
		&event.CaseID,
		&event.SequenceNo,
		&event.EventType,
		&event.Payload,
		&event.Actor,
		&event.Hash,
		&event.PrevHash,
		&event.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}
	return &event, nil
}
