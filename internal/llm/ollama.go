package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"zweefhulp/internal/config"
)

// Generator produces a text completion for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	ModelName() string
}

// Options configures one generation call
type Options struct {
	Temperature float64
	MaxTokens   int
}

var _ Generator = (*OllamaLLM)(nil)

// OllamaLLM handles interactions with the Ollama LLM API
type OllamaLLM struct {
	Client  *api.Client
	Model   string
	Timeout time.Duration
}

// NewOllamaLLM creates a new Ollama LLM client. An empty host falls back to
// OLLAMA_HOST.
func NewOllamaLLM(host string, model string, timeout time.Duration) (*OllamaLLM, error) {
	hostURL, err := config.OllamaHost(host)
	if err != nil {
		return nil, err
	}

	return &OllamaLLM{
		Client:  api.NewClient(hostURL, http.DefaultClient),
		Model:   model,
		Timeout: timeout,
	}, nil
}

// ModelName returns the generation model
func (o *OllamaLLM) ModelName() string {
	return o.Model
}

// Generate streams a completion from the model into a single string
func (o *OllamaLLM) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	options := map[string]interface{}{
		"temperature": opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}

	req := api.GenerateRequest{
		Model:   o.Model,
		Prompt:  prompt,
		Options: options,
	}

	var responseBuilder strings.Builder

	err := o.Client.Generate(ctx, &req, func(resp api.GenerateResponse) error {
		_, err := responseBuilder.WriteString(resp.Response)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	return responseBuilder.String(), nil
}
