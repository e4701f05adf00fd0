package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/casetrail/engine/pkg/apperrors"
	"github.com/casetrail/engine/pkg/database"
	"github.com/casetrail/engine/pkg/hashchain"
	"github.com/casetrail/engine/pkg/models"
	"github.com/casetrail/engine/pkg/repositories"
)

// contextWithTenant builds a context whose tenant scope carries only the
// tenant ID. The in-memory repositories never touch the scope's connection.
func contextWithTenant(tenantID uuid.UUID) context.Context {
	return database.SetTenantScope(context.Background(), &database.TenantScope{TenantID: tenantID})
}

// stubTxRunner executes the function directly with a nil transaction. The
// in-memory repositories below ignore the tx argument.
type stubTxRunner struct {
	failNext error
}

func (r *stubTxRunner) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	return fn(nil)
}

// stubLocker is an in-process case lock.
type stubLocker struct {
	held map[uuid.UUID]bool
}

func newStubLocker() *stubLocker {
	return &stubLocker{held: make(map[uuid.UUID]bool)}
}

func (l *stubLocker) TryLock(ctx context.Context, caseID uuid.UUID) (bool, error) {
	if l.held[caseID] {
		return false, nil
	}
	l.held[caseID] = true
	return true, nil
}

func (l *stubLocker) Unlock(ctx context.Context, caseID uuid.UUID) error {
	if !l.held[caseID] {
		return fmt.Errorf("lock for %s not held", caseID)
	}
	delete(l.held, caseID)
	return nil
}

type mockCaseRepo struct {
	cases map[uuid.UUID]*models.Case
}

func newMockCaseRepo() *mockCaseRepo {
	return &mockCaseRepo{cases: make(map[uuid.UUID]*models.Case)}
}

func (m *mockCaseRepo) CreateTx(ctx context.Context, tx pgx.Tx, c *models.Case) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	m.cases[c.ID] = &cp
	return nil
}

func (m *mockCaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	c, ok := m.cases[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCaseRepo) List(ctx context.Context, limit int) ([]*models.Case, error) {
	var out []*models.Case
	for _, c := range m.cases {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockCaseRepo) UpdateStateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, state models.CaseState) error {
	c, ok := m.cases[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.State = state
	return nil
}

func (m *mockCaseRepo) UpdateRiskTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, score float64, category models.RiskCategory) error {
	c, ok := m.cases[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.RiskScore = score
	c.RiskCategory = category
	return nil
}

func (m *mockCaseRepo) IncrementRedraftTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error) {
	c, ok := m.cases[id]
	if !ok {
		return 0, apperrors.ErrNotFound
	}
	c.RedraftCount++
	return c.RedraftCount, nil
}

var _ repositories.CaseRepository = (*mockCaseRepo)(nil)

type mockEvalRepo struct {
	evals []*models.RuleEvaluation
}

func (m *mockEvalRepo) CreateTx(ctx context.Context, tx pgx.Tx, eval *models.RuleEvaluation) error {
	if eval.ID == uuid.Nil {
		eval.ID = uuid.New()
	}
	m.evals = append(m.evals, eval)
	return nil
}

func (m *mockEvalRepo) GetLatestByCase(ctx context.Context, caseID uuid.UUID) (*models.RuleEvaluation, error) {
	for i := len(m.evals) - 1; i >= 0; i-- {
		if m.evals[i].CaseID == caseID {
			return m.evals[i], nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockEvalRepo) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.RuleEvaluation, error) {
	var out []*models.RuleEvaluation
	for _, e := range m.evals {
		if e.CaseID == caseID {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ repositories.RuleEvaluationRepository = (*mockEvalRepo)(nil)

type mockRetrievalRepo struct {
	events []*models.RetrievalEvent
}

func (m *mockRetrievalRepo) CreateTx(ctx context.Context, tx pgx.Tx, event *models.RetrievalEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockRetrievalRepo) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.RetrievalEvent, error) {
	var out []*models.RetrievalEvent
	for _, e := range m.events {
		if e.CaseID == caseID {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ repositories.RetrievalEventRepository = (*mockRetrievalRepo)(nil)

type mockAttemptRepo struct {
	attempts []*models.GenerationAttempt
}

func (m *mockAttemptRepo) CreateTx(ctx context.Context, tx pgx.Tx, attempt *models.GenerationAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	cp := *attempt
	m.attempts = append(m.attempts, &cp)
	return nil
}

func (m *mockAttemptRepo) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.GenerationAttempt, error) {
	var out []*models.GenerationAttempt
	for _, a := range m.attempts {
		if a.CaseID == caseID {
			out = append(out, a)
		}
	}
	return out, nil
}

var _ repositories.GenerationAttemptRepository = (*mockAttemptRepo)(nil)

type mockNarrativeRepo struct {
	versions []*models.NarrativeVersion
}

func (m *mockNarrativeRepo) CreateVersionTx(ctx context.Context, tx pgx.Tx, v *models.NarrativeVersion) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.ReviewStatus == "" {
		v.ReviewStatus = models.ReviewPending
	}
	max := 0
	for _, existing := range m.versions {
		if existing.CaseID == v.CaseID {
			existing.IsCurrent = false
			if existing.VersionNumber > max {
				max = existing.VersionNumber
			}
		}
	}
	v.VersionNumber = max + 1
	v.IsCurrent = true
	m.versions = append(m.versions, v)
	return nil
}

func (m *mockNarrativeRepo) GetCurrent(ctx context.Context, caseID uuid.UUID) (*models.NarrativeVersion, error) {
	for _, v := range m.versions {
		if v.CaseID == caseID && v.IsCurrent {
			return v, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockNarrativeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.NarrativeVersion, error) {
	for _, v := range m.versions {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockNarrativeRepo) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.NarrativeVersion, error) {
	var out []*models.NarrativeVersion
	for _, v := range m.versions {
		if v.CaseID == caseID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *mockNarrativeRepo) SetReviewStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.ReviewStatus) error {
	for _, v := range m.versions {
		if v.ID == id {
			if v.ReviewStatus != models.ReviewPending {
				return apperrors.ErrVersionNotPending
			}
			v.ReviewStatus = status
			return nil
		}
	}
	return apperrors.ErrNotFound
}

var _ repositories.NarrativeRepository = (*mockNarrativeRepo)(nil)

// mockAuditRepo keeps per-case chains in memory with real sequence numbers
// and hashes so chain verification works in tests.
type mockAuditRepo struct {
	events []*models.AuditEvent
}

func (m *mockAuditRepo) AppendTx(ctx context.Context, tx pgx.Tx, event *models.AuditEvent) error {
	if !event.EventType.IsValid() {
		return fmt.Errorf("%w: unknown event type %q", apperrors.ErrInvalidInput, event.EventType)
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now().UTC()

	var lastSeq int64
	lastHash := hashchain.GenesisHash
	for _, e := range m.events {
		if e.CaseID == event.CaseID && e.SequenceNo > lastSeq {
			lastSeq = e.SequenceNo
			lastHash = e.Hash
		}
	}

	event.SequenceNo = lastSeq + 1
	event.PrevHash = lastHash
	hash, err := hashchain.Next(lastHash, event)
	if err != nil {
		return err
	}
	event.Hash = hash
	m.events = append(m.events, event)
	return nil
}

func (m *mockAuditRepo) ListByCase(ctx context.Context, caseID uuid.UUID, filter repositories.AuditEventFilter) ([]*models.AuditEvent, error) {
	var out []*models.AuditEvent
	for _, e := range m.events {
		if e.CaseID != caseID {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, e.EventType) {
			continue
		}
		if !filter.From.IsZero() && e.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockAuditRepo) typesForCase(caseID uuid.UUID) []models.EventType {
	var out []models.EventType
	for _, e := range m.events {
		if e.CaseID == caseID {
			out = append(out, e.EventType)
		}
	}
	return out
}

func containsType(types []models.EventType, t models.EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

var _ repositories.AuditRepository = (*mockAuditRepo)(nil)
