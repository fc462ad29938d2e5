package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"zweefhulp/internal/config"
)

// Embedder converts text to a dense vector. The same model must be used for
// ingested chunks and for queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

var _ Embedder = (*OllamaEmbedder)(nil)

// OllamaEmbedder generates embeddings using the Ollama API
type OllamaEmbedder struct {
	Client  *api.Client
	Model   string
	Timeout time.Duration
}

// NewOllamaEmbedder creates a new Ollama embedder. An empty host falls back
// to OLLAMA_HOST.
func NewOllamaEmbedder(host string, model string, timeout time.Duration) (*OllamaEmbedder, error) {
	hostURL, err := config.OllamaHost(host)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OllamaEmbedder{
		Client:  api.NewClient(hostURL, http.DefaultClient),
		Model:   model,
		Timeout: timeout,
	}, nil
}

// ModelName returns the embedding model
func (e *OllamaEmbedder) ModelName() string {
	return e.Model
}

// Embed generates an embedding for a text. Provider errors are returned
// as is, retrying is left to the caller.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	resp, err := e.Client.Embed(ctxWithTimeout, &api.EmbedRequest{
		Model: e.Model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, errors.New("ollama returned no embedding")
	}

	return resp.Embeddings[0], nil
}

// EmbedBatchWithProgress embeds texts in parallel, bounded by maxConcurrent.
// The first error aborts the batch result.
func EmbedBatchWithProgress(ctx context.Context, e Embedder, texts []string, maxConcurrent int,
	progressFunc func(processed, total int)) ([][]float32, error) {

	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, maxConcurrent)

	var mu sync.Mutex
	processed := 0
	total := len(texts)
	vectors := make([][]float32, total)

	errChan := make(chan error, total)

	for i := range texts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int) {
			defer func() {
				wg.Done()
				<-semaphore
			}()

			vec, err := e.Embed(ctx, texts[i])
			if err != nil {
				errChan <- fmt.Errorf("failed to embed text %d: %w", i, err)
				return
			}

			mu.Lock()
			vectors[i] = vec
			processed++
			if progressFunc != nil {
				progressFunc(processed, total)
			}
			mu.Unlock()
		}(i)
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}

	return vectors, nil
}
