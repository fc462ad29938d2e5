// Package server exposes the search orchestrator over HTTP JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"zweefhulp/internal/metrics"
	"zweefhulp/internal/models"
	"zweefhulp/internal/search"
)

const (
	descEmptyQuery = "Vul een onderwerp in om te zoeken."
	descInternal   = "Er ging iets mis bij het zoeken. Probeer het later opnieuw."
)

// Searcher answers queries.
type Searcher interface {
	Search(ctx context.Context, raw string) (*models.SearchResponse, error)
	SearchBySlug(ctx context.Context, slug string) (*models.SearchResponse, error)
}

// Store is the storage surface the server reads directly.
type Store interface {
	Ping(ctx context.Context) error
	PageStats(ctx context.Context) ([]models.PageStat, error)
}

var _ Searcher = (*search.Orchestrator)(nil)

// Config holds HTTP settings.
type Config struct {
	CORSAllowOrigin string
}

// Server handles HTTP requests.
type Server struct {
	searcher Searcher
	store    Store
	gatherer prometheus.Gatherer
	cfg      Config
	log      zerolog.Logger
	metrics  *metrics.Metrics
	mux      *http.ServeMux
}

// New creates a Server. A nil gatherer disables /metrics.
func New(searcher Searcher, store Store, gatherer prometheus.Gatherer, cfg Config,
	log zerolog.Logger, m *metrics.Metrics) *Server {

	if cfg.CORSAllowOrigin == "" {
		cfg.CORSAllowOrigin = "*"
	}
	if m == nil {
		m = metrics.NewNop()
	}
	s := &Server{
		searcher: searcher,
		store:    store,
		gatherer: gatherer,
		cfg:      cfg,
		log:      log,
		metrics:  m,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/search/{slug}", s.handleSearchBySlug)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSAllowOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)

	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	s.metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	s.log.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", rec.status).
		Int("bytes", rec.bytes).
		Dur("duration", time.Since(start)).
		Msg("request")
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	resp, err := s.searcher.Search(r.Context(), r.URL.Query().Get("q"))
	s.respond(w, resp, err)
}

func (s *Server) handleSearchBySlug(w http.ResponseWriter, r *http.Request) {
	resp, err := s.searcher.SearchBySlug(r.Context(), r.PathValue("slug"))
	s.respond(w, resp, err)
}

func (s *Server) respond(w http.ResponseWriter, resp *models.SearchResponse, err error) {
	var rejected *search.RejectedError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, search.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "Query parameter is required", descEmptyQuery)
	case errors.As(err, &rejected):
		writeError(w, http.StatusBadRequest, "Query rejected", rejected.Message)
	default:
		s.log.Error().Err(err).Msg("search failed")
		writeError(w, http.StatusInternalServerError, "Internal server error", descInternal)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.PageStats(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("page stats failed")
		writeError(w, http.StatusInternalServerError, "Internal server error", descInternal)
		return
	}
	total := 0
	for _, st := range stats {
		total += st.Pages
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"programs":    stats,
		"total_pages": total,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "zweefhulp",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn().Err(err).Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"description"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, description string) {
	writeJSON(w, status, errorBody{Error: msg, Description: description})
}
