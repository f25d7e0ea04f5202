package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/attest/internal/model"
)

// NewJudge creates a new judge backend based on configuration.
// An empty provider returns (nil, nil): relevance judging disabled.
func NewJudge(config Config) (Judge, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIJudge(config)

	case "anthropic", "claude":
		return NewAnthropicJudge(config)

	case "ollama":
		return NewOllamaJudge(config)

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(modelConfig model.LLMConfig) Config {
	return Config{
		Provider:  modelConfig.Provider,
		Model:     modelConfig.Model,
		APIKey:    modelConfig.APIKey,
		BaseURL:   modelConfig.BaseURL,
		Timeout:   modelConfig.Timeout,
		MaxTokens: modelConfig.MaxTokens,
	}
}
