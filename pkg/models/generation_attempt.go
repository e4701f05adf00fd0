package models

import (
	"time"

	"github.com/google/uuid"
)

// GenerationAttempt records one call to the generation collaborator for a
// case, whether it validated or not. Attempts are persisted in order and
// never overwritten.
type GenerationAttempt struct {
	ID             uuid.UUID     `json:"id"`
	CaseID         uuid.UUID     `json:"case_id"`
	AttemptNumber  int           `json:"attempt_number"` // 1..MaxGenerationAttempts
	PromptHash     string        `json:"prompt_hash"`
	RawOutput      string        `json:"raw_output"`
	Valid          bool          `json:"valid"`
	FailureReasons []string      `json:"failure_reasons,omitempty"`
	ModelID        string        `json:"model_id"`
	Latency        time.Duration `json:"latency_ms"`
	CreatedAt      time.Time     `json:"created_at"`
}
