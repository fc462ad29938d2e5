package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"zweefhulp/internal/config"
	"zweefhulp/internal/database"
	"zweefhulp/internal/embedding"
	"zweefhulp/internal/guardrail"
	"zweefhulp/internal/llm"
	"zweefhulp/internal/logger"
	"zweefhulp/internal/metrics"
	"zweefhulp/internal/search"
	"zweefhulp/internal/synthesis"
)

// app holds the collaborators shared by the subcommands.
type app struct {
	cfg      *config.AppConfig
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	repo     database.Repository
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	repo, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.Initialize(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	log.Debug().Str("driver", cfg.Database.Driver).Msg("database ready")

	return &app{
		cfg:      cfg,
		log:      log,
		registry: reg,
		metrics:  metrics.New(reg),
		repo:     repo,
	}, nil
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing database")
	}
}

// orchestrator wires providers, guardrail and synthesizer into a search
// orchestrator over the app's repository.
func (a *app) orchestrator() (*search.Orchestrator, error) {
	cfg := a.cfg

	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	gen, err := llm.New(cfg.Generation.ProviderConfig)
	if err != nil {
		return nil, fmt.Errorf("create generation client: %w", err)
	}
	guardGen, err := llm.New(cfg.Guardrail)
	if err != nil {
		return nil, fmt.Errorf("create guardrail client: %w", err)
	}

	guard := guardrail.New(
		llm.NewRateLimited(guardGen, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		cfg.Search.GuardrailMaxTokens,
		logger.Component(a.log, "guardrail"),
		a.metrics,
	)
	synth := synthesis.New(
		llm.NewRateLimited(gen, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		synthesis.Config{
			Temperature:  cfg.Generation.SamplingTemperature(),
			MaxTokens:    cfg.Generation.MaxTokens,
			MaxPositions: cfg.Search.MaxPositions,
		},
		logger.Component(a.log, "synthesis"),
		a.metrics,
	)

	a.log.Info().
		Str("embedding_model", emb.ModelName()).
		Str("generation_model", gen.ModelName()).
		Str("guardrail_model", guardGen.ModelName()).
		Msg("providers configured")

	return search.New(search.Deps{
		Parties:     a.repo,
		Vectors:     a.repo,
		Cache:       a.repo,
		Embedder:    emb,
		Guardrail:   guard,
		Synthesizer: synth,
	}, search.Config{
		TopK:            cfg.Search.TopK,
		MaxQueryLength:  cfg.Search.MaxQueryLength,
		PartyTimeout:    cfg.Search.PartyTimeout(),
		MaxConcurrent:   cfg.Search.MaxConcurrent,
		ResynthesizeAll: cfg.Search.ResynthesizeAll,
	}, logger.Component(a.log, "search"), a.metrics), nil
}
