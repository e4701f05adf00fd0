// Package llm provides clients for the external narrative-generation
// collaborator. Every call is stateless: no conversation memory is carried
// between completions, for the same case or any other.
package llm

import (
	"context"
)

// CompletionResult is the raw outcome of one generation call.
type CompletionResult struct {
	Content          string
	ModelID          string
	PromptTokens     int
	CompletionTokens int
}

// Generator is the capability interface for the generation collaborator.
// Use this for dependency injection to enable mocking in tests.
type Generator interface {
	// Complete generates a text completion for the prompt. Implementations
	// must honor ctx cancellation and deadlines.
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (*CompletionResult, error)

	// Model returns the configured model name.
	Model() string
}

// Compile-time interface checks.
var (
	_ Generator = (*OpenAIClient)(nil)
	_ Generator = (*AnthropicClient)(nil)
	_ Generator = (*MockGenerator)(nil)
)
