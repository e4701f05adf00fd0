package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/casetrail/engine/pkg/config"
)

// NewGenerator builds the configured generation client. The provider switch
// lives here so the rest of the pipeline depends only on the Generator
// interface.
func NewGenerator(cfg *config.LLMConfig, logger *zap.Logger) (Generator, error) {
	clientCfg := &Config{
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(clientCfg, logger)
	case "anthropic":
		return NewAnthropicClient(clientCfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
