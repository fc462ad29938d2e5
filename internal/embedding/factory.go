package embedding

import (
	"fmt"

	"zweefhulp/internal/config"
)

// New builds the Embedder selected by cfg.
func New(cfg config.ProviderConfig) (Embedder, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Timeout())
	case "openai":
		return NewOpenAIEmbedder(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey(),
			Model:   cfg.Model,
			Timeout: cfg.Timeout(),
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
