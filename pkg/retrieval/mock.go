package retrieval

import (
	"context"

	"github.com/google/uuid"

	"github.com/casetrail/engine/pkg/models"
)

// MockRetriever is a configurable mock for testing retrieval behavior.
type MockRetriever struct {
	// RetrieveFunc is called when Retrieve is invoked.
	// If nil, returns an empty document list and nil error.
	RetrieveFunc func(ctx context.Context, tenantID uuid.UUID, typologies, regulatoryHooks []string) ([]models.RetrievedDocument, error)

	// RetrieveCalls counts invocations for verification.
	RetrieveCalls int
}

var _ Retriever = (*MockRetriever)(nil)

// Retrieve implements Retriever.
func (m *MockRetriever) Retrieve(ctx context.Context, tenantID uuid.UUID, typologies, regulatoryHooks []string) ([]models.RetrievedDocument, error) {
	m.RetrieveCalls++
	if m.RetrieveFunc != nil {
		return m.RetrieveFunc(ctx, tenantID, typologies, regulatoryHooks)
	}
	return nil, nil
}
