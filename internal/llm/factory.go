package llm

import (
	"fmt"

	"zweefhulp/internal/config"
)

// New builds the Generator selected by cfg.
func New(cfg config.ProviderConfig) (Generator, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaLLM(cfg.BaseURL, cfg.Model, cfg.Timeout())
	case "openai":
		return NewOpenAILLM(OpenAIConfig{
			APIKey:  cfg.APIKey(),
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout(),
		})
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
