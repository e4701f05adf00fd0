package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies a generation failure.
type ErrorType string

// Error classifications.
const (
	ErrTypeTimeout        ErrorType = "timeout"
	ErrTypeRateLimited    ErrorType = "rate_limited"
	ErrTypeUnavailable    ErrorType = "unavailable"
	ErrTypeAuthentication ErrorType = "authentication"
	ErrTypeBadRequest     ErrorType = "bad_request"
	ErrTypeEmptyResponse  ErrorType = "empty_response"
	ErrTypeUnknown        ErrorType = "unknown"
)

// Error represents a structured generation error with classification.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	ModelID    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.ModelID != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.ModelID))
	}
	parts = append(parts, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether another attempt could succeed. The generation
// orchestrator counts non-retryable failures against the attempt budget too,
// but skips the backoff wait for them.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured generation error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyError categorizes an error from a provider SDK into a structured
// Error so retry decisions do not depend on provider-specific error shapes.
func ClassifyError(err error, modelID string) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	e := &Error{Cause: err, ModelID: modelID, Message: "generation call failed"}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		e.Type = ErrTypeTimeout
		e.Retryable = true
		return e
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		e.Type = ErrTypeRateLimited
		e.Retryable = true
		e.StatusCode = 429
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") || strings.Contains(lower, "504") ||
		strings.Contains(lower, "unavailable") || strings.Contains(lower, "overloaded"):
		e.Type = ErrTypeUnavailable
		e.Retryable = true
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset"):
		e.Type = ErrTypeTimeout
		e.Retryable = true
	case strings.Contains(lower, "401") || strings.Contains(lower, "403") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		e.Type = ErrTypeAuthentication
		e.Retryable = false
	case strings.Contains(lower, "400") || strings.Contains(lower, "invalid request"):
		e.Type = ErrTypeBadRequest
		e.Retryable = false
	default:
		e.Type = ErrTypeUnknown
		e.Retryable = true
	}
	return e
}
