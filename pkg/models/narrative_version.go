package models

import (
	"time"

	"github.com/google/uuid"
)

// NarrativeOrigin tags how a narrative version was produced.
type NarrativeOrigin string

// Narrative origins.
const (
	OriginMachineGenerated NarrativeOrigin = "machine_generated"
	OriginAnalystEdited    NarrativeOrigin = "analyst_edited"
)

// ReviewStatus is the review state of a narrative version.
type ReviewStatus string

// Review statuses. Only the current pending version may move to approved or
// rejected; content is never mutated by a status change.
const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// NarrativeVersion is one immutable version of a case's SAR narrative.
// Version numbers are contiguous from 1 with no reuse; exactly one version
// per case is current at any time.
type NarrativeVersion struct {
	ID            uuid.UUID       `json:"id"`
	CaseID        uuid.UUID       `json:"case_id"`
	VersionNumber int             `json:"version_number"`
	Content       string          `json:"content"`
	Origin        NarrativeOrigin `json:"origin"`
	ReviewStatus  ReviewStatus    `json:"review_status"`
	IsCurrent     bool            `json:"is_current"`
	IsFallback    bool            `json:"is_fallback"` // template-assembled, not model-composed
	AuthorID      string          `json:"author_id"`
	ModelID       string          `json:"model_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
