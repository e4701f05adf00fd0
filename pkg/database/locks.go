package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// caseLockClass namespaces pipeline advisory locks away from any other
// advisory lock users sharing the database.
const caseLockClass = 7301

// CaseLocker serializes pipeline runs per case. TryLock never blocks; a
// false return means another run holds the case.
type CaseLocker interface {
	TryLock(ctx context.Context, caseID uuid.UUID) (bool, error)
	Unlock(ctx context.Context, caseID uuid.UUID) error
}

type scopeCaseLocker struct{}

// NewCaseLocker creates a CaseLocker backed by session advisory locks on the
// tenant scope's pinned connection.
func NewCaseLocker() CaseLocker {
	return &scopeCaseLocker{}
}

var _ CaseLocker = (*scopeCaseLocker)(nil)

func (l *scopeCaseLocker) TryLock(ctx context.Context, caseID uuid.UUID) (bool, error) {
	scope, ok := GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}
	return scope.TryCaseLock(ctx, caseID)
}

func (l *scopeCaseLocker) Unlock(ctx context.Context, caseID uuid.UUID) error {
	scope, ok := GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}
	return scope.ReleaseCaseLock(ctx, caseID)
}

// TryCaseLock attempts to take the session-level advisory lock that
// serializes pipeline runs for a case. Returns false without blocking when
// another run holds the lock. The lock is bound to the scope's pinned
// connection; ReleaseCaseLock must run on the same scope.
func (s *TenantScope) TryCaseLock(ctx context.Context, caseID uuid.UUID) (bool, error) {
	var acquired bool
	err := s.Conn.QueryRow(ctx,
		"SELECT pg_try_advisory_lock($1, hashtext($2::text))",
		caseLockClass, caseID.String(),
	).Scan(&acquired)
	if err != nil {
		return false, fmt.Errorf("failed to acquire case lock: %w", err)
	}
	return acquired, nil
}

// ReleaseCaseLock releases the advisory lock taken by TryCaseLock.
func (s *TenantScope) ReleaseCaseLock(ctx context.Context, caseID uuid.UUID) error {
	var released bool
	err := s.Conn.QueryRow(ctx,
		"SELECT pg_advisory_unlock($1, hashtext($2::text))",
		caseLockClass, caseID.String(),
	).Scan(&released)
	if err != nil {
		return fmt.Errorf("failed to release case lock: %w", err)
	}
	if !released {
		return fmt.Errorf("case lock for %s was not held by this session", caseID)
	}
	return nil
}
