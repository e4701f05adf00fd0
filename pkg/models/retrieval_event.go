package models

import (
	"time"

	"github.com/google/uuid"
)

// RetrievedDocument is one similarity-search hit from the retrieval collaborator.
type RetrievedDocument struct {
	DocumentID      string  `json:"document_id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	SimilarityScore float64 `json:"similarity_score"`
	Snippet         string  `json:"snippet"`
	Source          string  `json:"source,omitempty"` // guidelines | templates | sars
}

// RetrievalEvent records one retrieval call made for a case. Immutable.
// Documents are kept in the order the collaborator returned them.
type RetrievalEvent struct {
	ID              uuid.UUID           `json:"id"`
	CaseID          uuid.UUID           `json:"case_id"`
	TenantID        uuid.UUID           `json:"tenant_id"`
	Typologies      []string            `json:"typologies"`
	RegulatoryHooks []string            `json:"regulatory_hooks"`
	Documents       []RetrievedDocument `json:"documents"`
	RetrievedAt     time.Time           `json:"retrieved_at"`
}
