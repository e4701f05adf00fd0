package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyErrorByMessage(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"rate limited", errors.New("429 too many requests"), ErrTypeRateLimited, true},
		{"overloaded", errors.New("the model is overloaded"), ErrTypeUnavailable, true},
		{"gateway", errors.New("HTTP 502 bad gateway"), ErrTypeUnavailable, true},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrTypeTimeout, true},
		{"unauthorized", errors.New("401 unauthorized"), ErrTypeAuthentication, false},
		{"invalid key", errors.New("invalid api key supplied"), ErrTypeAuthentication, false},
		{"bad request", errors.New("invalid request: prompt too long"), ErrTypeBadRequest, false},
		{"unknown", errors.New("something odd happened"), ErrTypeUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyError(tt.err, "test-model")
			require.NotNil(t, classified)
			assert.Equal(t, tt.wantType, classified.Type)
			assert.Equal(t, tt.retryable, classified.IsRetryable())
			assert.Equal(t, "test-model", classified.ModelID)
			assert.ErrorIs(t, classified, tt.err)
		})
	}
}

func TestClassifyErrorContextCancellation(t *testing.T) {
	classified := ClassifyError(context.DeadlineExceeded, "m")
	assert.Equal(t, ErrTypeTimeout, classified.Type)
	assert.True(t, classified.Retryable)

	classified = ClassifyError(context.Canceled, "m")
	assert.Equal(t, ErrTypeTimeout, classified.Type)
}

func TestClassifyErrorPassesThroughStructuredErrors(t *testing.T) {
	original := NewError(ErrTypeEmptyResponse, "no content in response", true, nil)
	classified := ClassifyError(fmt.Errorf("call failed: %w", original), "m")
	assert.Same(t, original, classified)

	assert.Nil(t, ClassifyError(nil, "m"))
}

func TestErrorStringIncludesClassification(t *testing.T) {
	e := &Error{Type: ErrTypeRateLimited, StatusCode: 429, ModelID: "m1", Message: "slow down", Cause: errors.New("upstream")}
	s := e.Error()
	assert.Contains(t, s, "rate_limited")
	assert.Contains(t, s, "HTTP 429")
	assert.Contains(t, s, "model=m1")
	assert.Contains(t, s, "upstream")
}

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 3, ResetAfter: time.Hour})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		allowed, err := cb.Allow()
		assert.True(t, allowed)
		assert.NoError(t, err)
	}

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	allowed, err := cb.Allow()
	assert.False(t, allowed)
	assert.Error(t, err)
}

func TestCircuitBreakerHalfOpensAfterReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Millisecond})
	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.State())

	time.Sleep(5 * time.Millisecond)
	allowed, err := cb.Allow()
	assert.True(t, allowed)
	assert.NoError(t, err)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// A success in half-open closes the circuit again.
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour})
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
}
