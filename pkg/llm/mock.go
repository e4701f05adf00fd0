package llm

import (
	"context"
)

// MockGenerator is a configurable mock for testing generation behavior.
// Set the function field to control responses in tests.
type MockGenerator struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns an empty result and nil error.
	CompleteFunc func(ctx context.Context, prompt string, maxTokens int, temperature float64) (*CompletionResult, error)

	// ModelID is returned by Model. Defaults to "mock-model".
	ModelID string

	// CompleteCalls counts invocations for verification.
	CompleteCalls int

	// Prompts records every prompt passed to Complete.
	Prompts []string
}

// NewMockGenerator creates a new mock with sensible defaults.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{ModelID: "mock-model"}
}

// Complete implements Generator.
func (m *MockGenerator) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (*CompletionResult, error) {
	m.CompleteCalls++
	m.Prompts = append(m.Prompts, prompt)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, maxTokens, temperature)
	}
	return &CompletionResult{ModelID: m.Model()}, nil
}

// Model returns the configured mock model name.
func (m *MockGenerator) Model() string {
	if m.ModelID == "" {
		return "mock-model"
	}
	return m.ModelID
}
