// Package search coordinates a query end to end: cleaning, the cache,
// the guardrail and the per-party retrieval and synthesis fan-out.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"zweefhulp/internal/database"
	"zweefhulp/internal/embedding"
	"zweefhulp/internal/guardrail"
	"zweefhulp/internal/metrics"
	"zweefhulp/internal/models"
	"zweefhulp/internal/slug"
	"zweefhulp/internal/synthesis"
)

// ErrEmptyQuery is returned for a query that is empty after cleaning.
var ErrEmptyQuery = errors.New("empty query")

// RejectedError is returned when the guardrail refuses a query. Message is
// safe to show to the user.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "query rejected: " + e.Message
}

// VectorStore finds the chunks of one program closest to a query vector.
type VectorStore interface {
	TopK(ctx context.Context, programID string, vec []float32, k int) ([]models.ScoredChunk, error)
}

// ResultCache stores synthesized answers per (query, party).
type ResultCache interface {
	Lookup(ctx context.Context, query, partyID string) (*models.CachedAnswer, error)
	LookupAll(ctx context.Context, query string) (*models.CompleteAnswer, bool, error)
	LookupAllBySlug(ctx context.Context, slug string) (*models.CompleteAnswer, bool, error)
	Store(ctx context.Context, query, partyID, summary string, positions []models.Position) (database.StoreOutcome, error)
}

// PartyRepository lists the parties to answer for.
type PartyRepository interface {
	ListParties(ctx context.Context) ([]models.PartyWithProgram, error)
}

// Classifier screens queries before any synthesis work.
type Classifier interface {
	Classify(ctx context.Context, query string) bool
	RejectionMessage() string
}

// Synthesizer turns retrieved chunks into positions for one party.
type Synthesizer interface {
	Synthesize(ctx context.Context, query, partyName string, chunks []models.ScoredChunk) (models.Synthesis, error)
}

var (
	_ Classifier  = (*guardrail.Guardrail)(nil)
	_ Synthesizer = (*synthesis.Synthesizer)(nil)
	_ ResultCache = (database.Repository)(nil)
)

// Config tunes the orchestrator.
type Config struct {
	TopK           int
	MaxQueryLength int
	PartyTimeout   time.Duration
	MaxConcurrent  int
	// ResynthesizeAll ignores per-party cache entries when the cache is
	// incomplete and runs every party again.
	ResynthesizeAll bool
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Parties     PartyRepository
	Vectors     VectorStore
	Cache       ResultCache
	Embedder    embedding.Embedder
	Guardrail   Classifier
	Synthesizer Synthesizer
}

// Orchestrator answers queries for every known party.
type Orchestrator struct {
	deps    Deps
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config, log zerolog.Logger, m *metrics.Metrics) *Orchestrator {
	if cfg.TopK <= 0 {
		cfg.TopK = 30
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = guardrail.DefaultMaxQueryLength
	}
	if cfg.PartyTimeout <= 0 {
		cfg.PartyTimeout = 60 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg, log: log, metrics: m}
}

// Search answers raw for every party. A complete cache hit returns without
// any model call. Per-party failures degrade that party to an empty entry;
// only infrastructure failures are returned as errors.
func (o *Orchestrator) Search(ctx context.Context, raw string) (*models.SearchResponse, error) {
	start := time.Now()

	query := guardrail.CleanQuery(raw, o.cfg.MaxQueryLength)
	if query == "" {
		o.metrics.RecordSearch(metrics.OutcomeInvalid, time.Since(start))
		return nil, ErrEmptyQuery
	}
	log := o.log.With().Str("query", query).Logger()

	complete, ok, err := o.deps.Cache.LookupAll(ctx, query)
	if err != nil {
		o.metrics.RecordSearch(metrics.OutcomeError, time.Since(start))
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	if ok {
		o.metrics.RecordSearch(metrics.OutcomeCached, time.Since(start))
		log.Info().Bool("cached", true).Int("parties", len(complete.Parties)).
			Dur("duration", time.Since(start)).Msg("search completed")
		return fromComplete(complete, true), nil
	}

	if !o.deps.Guardrail.Classify(ctx, query) {
		o.metrics.RecordSearch(metrics.OutcomeRejected, time.Since(start))
		log.Info().Msg("query rejected by guardrail")
		return nil, &RejectedError{Message: o.deps.Guardrail.RejectionMessage()}
	}

	parties, err := o.deps.Parties.ListParties(ctx)
	if err != nil {
		o.metrics.RecordSearch(metrics.OutcomeError, time.Since(start))
		return nil, fmt.Errorf("list parties: %w", err)
	}

	results := o.fanOut(ctx, query, parties)

	o.metrics.RecordSearch(metrics.OutcomeFresh, time.Since(start))
	log.Info().Bool("cached", false).Int("parties", len(results)).
		Dur("duration", time.Since(start)).Msg("search completed")

	return &models.SearchResponse{Parties: results, Query: query, Slug: slug.Slugify(query)}, nil
}

// SearchBySlug serves a completely cached answer for slug, falling back to
// a search for the reconstructed query text.
func (o *Orchestrator) SearchBySlug(ctx context.Context, s string) (*models.SearchResponse, error) {
	s = slug.Slugify(s)
	if s == "" {
		return nil, ErrEmptyQuery
	}
	complete, ok, err := o.deps.Cache.LookupAllBySlug(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("slug lookup: %w", err)
	}
	if ok {
		o.metrics.RecordSearch(metrics.OutcomeCached, 0)
		return fromComplete(complete, true), nil
	}
	return o.Search(ctx, slug.Deslugify(s))
}

// fanOut runs every party concurrently. Tasks run detached from the
// caller's cancellation so finished work still reaches the cache. All of
// them share one deadline set here, so tasks waiting for a slot do not
// extend the request past the party timeout.
func (o *Orchestrator) fanOut(ctx context.Context, query string, parties []models.PartyWithProgram) []models.PartyResult {
	fanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PartyTimeout)
	defer cancel()

	embed := sync.OnceValues(func() ([]float32, error) {
		start := time.Now()
		vec, err := o.deps.Embedder.Embed(fanCtx, query)
		o.metrics.RecordLLM("embedding", time.Since(start), err)
		return vec, err
	})

	results := make([]models.PartyResult, len(parties))
	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrent)
	for i, p := range parties {
		g.Go(func() error {
			results[i] = o.runParty(fanCtx, query, p, embed)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Party < results[j].Party
	})
	return results
}

// runParty retrieves, synthesizes and stores one party's answer. It never
// fails: errors leave the party with an empty entry and nothing cached.
func (o *Orchestrator) runParty(ctx context.Context, query string, p models.PartyWithProgram,
	embed func() ([]float32, error)) models.PartyResult {

	log := o.log.With().Str("query", query).Str("party", p.Party.Name).Logger()
	empty := models.NewPartyResult(p.Party, "", nil)

	if p.Program == nil {
		o.metrics.RecordParty(metrics.PartyNoProgram)
		log.Warn().Msg("party has no program")
		return empty
	}

	if err := ctx.Err(); err != nil {
		o.recordFailure(log, err, "search deadline passed before party started")
		return empty
	}

	if !o.cfg.ResynthesizeAll {
		cached, err := o.deps.Cache.Lookup(ctx, query, p.Party.ID)
		switch {
		case err == nil:
			o.metrics.RecordParty(metrics.PartyCacheHit)
			return models.NewPartyResult(p.Party, cached.Summary, cached.Positions)
		case !errors.Is(err, database.ErrNotFound):
			log.Warn().Err(err).Msg("party cache lookup failed")
		}
	}

	vec, err := embed()
	if err != nil {
		o.recordFailure(log, err, "query embedding failed")
		return empty
	}

	chunks, err := o.deps.Vectors.TopK(ctx, p.Program.ID, vec, o.cfg.TopK)
	if err != nil {
		o.recordFailure(log, err, "vector search failed")
		return empty
	}

	if len(chunks) == 0 {
		// Not cached: the program may not be indexed yet.
		o.metrics.RecordParty(metrics.PartyEmpty)
		log.Info().Msg("no chunks retrieved")
		return empty
	}

	syn, err := o.deps.Synthesizer.Synthesize(ctx, query, p.Party.Name, chunks)
	if err != nil {
		o.recordFailure(log, err, "synthesis failed")
		return empty
	}
	if syn.Positions == nil {
		syn.Positions = []models.Position{}
	}
	o.metrics.RecordParty(metrics.PartyOK)

	outcome, err := o.deps.Cache.Store(ctx, query, p.Party.ID, syn.Summary, syn.Positions)
	if err != nil {
		o.metrics.CacheStoresTotal.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("cache write failed")
		return models.NewPartyResult(p.Party, syn.Summary, syn.Positions)
	}
	o.metrics.CacheStoresTotal.WithLabelValues(outcome.String()).Inc()

	if outcome == database.AlreadyExists {
		// The first committed answer wins
		log.Debug().Msg("answer already cached by another request")
		if cached, err := o.deps.Cache.Lookup(ctx, query, p.Party.ID); err == nil {
			return models.NewPartyResult(p.Party, cached.Summary, cached.Positions)
		}
	}
	return models.NewPartyResult(p.Party, syn.Summary, syn.Positions)
}

func (o *Orchestrator) recordFailure(log zerolog.Logger, err error, msg string) {
	var parseErr *synthesis.ParseError
	status := metrics.PartyProviderError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = metrics.PartyTimeout
	case errors.As(err, &parseErr):
		status = metrics.PartyParseError
	}
	o.metrics.RecordParty(status)
	log.Warn().Err(err).Str("status", status).Msg(msg)
}

func fromComplete(c *models.CompleteAnswer, cached bool) *models.SearchResponse {
	return &models.SearchResponse{
		Parties: c.Parties,
		Query:   c.Query,
		Slug:    slug.Slugify(c.Query),
		Cached:  cached,
	}
}
