package apperrors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrCaseLocked        = errors.New("case pipeline already in flight")
	ErrInvalidTransition = errors.New("invalid case state transition")
	ErrVersionNotPending = errors.New("narrative version is not pending review")
	ErrTenantMismatch    = errors.New("document tenant does not match case tenant")
	ErrRedraftLimit      = errors.New("redraft limit reached")
)

// PipelineError is the structured fatal error surfaced to callers when a
// pipeline run aborts. Only persistence failures are fatal; everything else
// degrades inside the pipeline.
type PipelineError struct {
	CaseID uuid.UUID
	Stage  string
	Err    error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed: case=%s stage=%s: %v", e.CaseID, e.Stage, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError wraps err with the case and stage it failed in.
func NewPipelineError(caseID uuid.UUID, stage string, err error) *PipelineError {
	return &PipelineError{CaseID: caseID, Stage: stage, Err: err}
}
