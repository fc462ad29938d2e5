package synthesis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"zweefhulp/internal/llm"
	"zweefhulp/internal/metrics"
	"zweefhulp/internal/models"
)

// ParseError reports model output that could not be parsed.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "unparsable synthesis output: " + e.Reason
}

// Config tunes generation.
type Config struct {
	Temperature  float64
	MaxTokens    int
	MaxPositions int
}

// Synthesizer prompts a generation model with retrieved fragments and
// parses the result into positions.
type Synthesizer struct {
	gen     llm.Generator
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// New creates a Synthesizer.
func New(gen llm.Generator, cfg Config, log zerolog.Logger, m *metrics.Metrics) *Synthesizer {
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = DefaultMaxPositions
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Synthesizer{gen: gen, cfg: cfg, log: log, metrics: m}
}

// Synthesize produces the summary and positions of one party for query.
// No fragments means nothing to say: the model is not called. Provider
// errors are returned wrapped; unparsable output returns a *ParseError.
func (s *Synthesizer) Synthesize(ctx context.Context, query, partyName string, chunks []models.ScoredChunk) (models.Synthesis, error) {
	if len(chunks) == 0 {
		return models.Synthesis{Positions: []models.Position{}}, nil
	}

	prompt := BuildPrompt(query, partyName, chunks, s.cfg.MaxPositions)

	start := time.Now()
	text, err := s.gen.Generate(ctx, prompt, llm.Options{Temperature: s.cfg.Temperature, MaxTokens: s.cfg.MaxTokens})
	s.metrics.RecordLLM("synthesis", time.Since(start), err)
	if err != nil {
		return models.Synthesis{}, fmt.Errorf("generate positions for %s: %w", partyName, err)
	}

	switch res := Parse(text, s.cfg.MaxPositions).(type) {
	case ParseSuccess:
		out := models.Synthesis{Summary: res.Summary, Positions: res.Positions}
		s.log.Debug().
			Str("party", partyName).
			Int("positions", len(out.Positions)).
			Int("quotes", out.QuoteCount()).
			Int("chunks", len(chunks)).
			Msg("synthesized positions")
		return out, nil
	case ParseFailure:
		return models.Synthesis{}, &ParseError{Reason: res.Reason}
	default:
		return models.Synthesis{}, &ParseError{Reason: fmt.Sprintf("unexpected parse result %T", res)}
	}
}
