// Package metrics provides Prometheus metrics for zweefhulp
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Search outcomes
const (
	OutcomeCached   = "cached"
	OutcomeFresh    = "fresh"
	OutcomeRejected = "rejected"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Party synthesis statuses
const (
	PartyOK            = "ok"
	PartyCacheHit      = "cache_hit"
	PartyEmpty         = "empty"
	PartyNoProgram     = "no_program"
	PartyProviderError = "provider_error"
	PartyParseError    = "parse_error"
	PartyTimeout       = "timeout"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	SearchesTotal       *prometheus.CounterVec
	SearchDuration      prometheus.Histogram
	PartySynthesesTotal *prometheus.CounterVec
	CacheStoresTotal    *prometheus.CounterVec
	GuardrailTotal      *prometheus.CounterVec
	LLMRequestDuration  *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
}

// New creates all metrics and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zweefhulp_searches_total",
				Help: "Total number of searches by outcome",
			},
			[]string{"outcome"},
		),
		SearchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "zweefhulp_search_duration_seconds",
				Help:    "Duration of searches in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		PartySynthesesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zweefhulp_party_syntheses_total",
				Help: "Total number of per-party tasks by status",
			},
			[]string{"status"},
		),
		CacheStoresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zweefhulp_cache_stores_total",
				Help: "Total number of cache writes by outcome",
			},
			[]string{"outcome"},
		),
		GuardrailTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zweefhulp_guardrail_decisions_total",
				Help: "Total number of guardrail classifications",
			},
			[]string{"decision"},
		),
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zweefhulp_llm_request_duration_seconds",
				Help:    "Duration of model provider calls in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation", "status"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zweefhulp_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "code"},
		),
	}
}

// NewNop returns metrics registered on a throwaway registry
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// RecordSearch records a finished search
func (m *Metrics) RecordSearch(outcome string, duration time.Duration) {
	m.SearchesTotal.WithLabelValues(outcome).Inc()
	m.SearchDuration.Observe(duration.Seconds())
}

// RecordParty records the status of one per-party task
func (m *Metrics) RecordParty(status string) {
	m.PartySynthesesTotal.WithLabelValues(status).Inc()
}

// RecordLLM records a model provider call
func (m *Metrics) RecordLLM(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.LLMRequestDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}
