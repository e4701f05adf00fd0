package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/casetrail/engine/pkg/hashchain"
	"github.com/casetrail/engine/pkg/models"
	"github.com/casetrail/engine/pkg/repositories"
)

// AuditService appends to and reads the per-case audit log. Appends stamp
// the acting identity from context; callers never pass an actor explicitly.
type AuditService struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo repositories.AuditRepository, logger *zap.Logger) *AuditService {
	return &AuditService{repo: repo, logger: logger.Named("audit")}
}

// AppendTx records one event for the case inside the supplied transaction.
func (s *AuditService) AppendTx(ctx context.Context, tx pgx.Tx, caseID uuid.UUID, eventType models.EventType, payload json.RawMessage) error {
	actor := models.ActorOrSystem(ctx)
	event := &models.AuditEvent{
		CaseID:    caseID,
		EventType: eventType,
		Payload:   payload,
		Actor:     fmt.Sprintf("%s:%s", actor.Source, actor.ID),
	}
	if err := s.repo.AppendTx(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to record %s: %w", eventType, err)
	}
	return nil
}

// ListByCase returns the case's events in sequence order, optionally
// filtered by type and time window.
func (s *AuditService) ListByCase(ctx context.Context, caseID uuid.UUID, filter repositories.AuditEventFilter) ([]*models.AuditEvent, error) {
	return s.repo.ListByCase(ctx, caseID, filter)
}

// VerifyChain re-derives the case's full hash chain from stored rows and
// reports the first inconsistency, or nil when the log is intact.
func (s *AuditService) VerifyChain(ctx context.Context, caseID uuid.UUID) error {
	events, err := s.repo.ListByCase(ctx, caseID, repositories.AuditEventFilter{})
	if err != nil {
		return err
	}
	return hashchain.Verify(events)
}
