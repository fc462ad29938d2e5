package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zweefhulp/internal/logger"
	"zweefhulp/internal/metrics"
	"zweefhulp/internal/models"
	"zweefhulp/internal/search"
)

type fakeSearcher struct {
	lastQuery string
	lastSlug  string
	err       error
}

func (f *fakeSearcher) Search(_ context.Context, raw string) (*models.SearchResponse, error) {
	f.lastQuery = raw
	if f.err != nil {
		return nil, f.err
	}
	return response(strings.TrimSpace(raw)), nil
}

func (f *fakeSearcher) SearchBySlug(_ context.Context, slug string) (*models.SearchResponse, error) {
	f.lastSlug = slug
	if f.err != nil {
		return nil, f.err
	}
	return response(strings.ReplaceAll(slug, "-", " ")), nil
}

func response(query string) *models.SearchResponse {
	party := models.Party{ID: "p1", Name: "Volt", ShortName: "Volt", Website: "https://www.voltnederland.org"}
	return &models.SearchResponse{
		Query: query,
		Slug:  strings.ReplaceAll(query, " ", "-"),
		Parties: []models.PartyResult{
			models.NewPartyResult(party, "Volt wil Europese samenwerking.", []models.Position{{
				Title:    "Europees klimaatbeleid",
				Subtitle: "Samen met andere landen.",
				Ordinal:  1,
				Quotes:   []models.Quote{{Text: "Klimaat stopt niet bij de grens.", Page: 12, Ordinal: 1}},
			}}),
			models.NewPartyResult(models.Party{ID: "p2", Name: "SP"}, "", nil),
		},
	}
}

type fakeStore struct {
	pingErr  error
	stats    []models.PageStat
	statsErr error
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) PageStats(context.Context) ([]models.PageStat, error) {
	return f.stats, f.statsErr
}

func newTestServer(s Searcher, st Store) (*Server, *metrics.Metrics) {
	m := metrics.NewNop()
	return New(s, st, prometheus.NewRegistry(), Config{}, logger.Nop(), m), m
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSearchResponseShape(t *testing.T) {
	searcher := &fakeSearcher{}
	srv, _ := newTestServer(searcher, &fakeStore{})

	rec := do(t, srv, http.MethodGet, "/api/search?q=europees+klimaat")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "europees klimaat", searcher.lastQuery)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "europees klimaat", body["query"])

	parties := body["parties"].([]any)
	require.Len(t, parties, 2)
	volt := parties[0].(map[string]any)
	assert.Equal(t, "Volt", volt["party"])
	assert.Equal(t, "Volt", volt["short"])
	assert.EqualValues(t, 1, volt["count"])
	assert.Equal(t, "https://www.voltnederland.org", volt["website"])
	pos := volt["positions"].([]any)[0].(map[string]any)
	assert.Equal(t, "Europees klimaatbeleid", pos["title"])
	assert.NotContains(t, pos, "ordinal")
	quote := pos["quotes"].([]any)[0].(map[string]any)
	assert.Equal(t, map[string]any{"text": "Klimaat stopt niet bij de grens.", "page": 12.0}, quote)

	sp := parties[1].(map[string]any)
	assert.Equal(t, "SP", sp["short"])
	assert.Equal(t, "#", sp["website"])
	assert.EqualValues(t, 0, sp["count"])
	assert.Equal(t, []any{}, sp["positions"])
}

func TestSearchBySlug(t *testing.T) {
	searcher := &fakeSearcher{}
	srv, _ := newTestServer(searcher, &fakeStore{})

	rec := do(t, srv, http.MethodGet, "/api/search/normen-en-waarden")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "normen-en-waarden", searcher.lastSlug)
	assert.Contains(t, rec.Body.String(), `"query":"normen en waarden"`)
}

func TestSearchErrors(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		status      int
		msg         string
		description string
	}{
		{"empty", search.ErrEmptyQuery, http.StatusBadRequest, "Query parameter is required", descEmptyQuery},
		{"rejected", &search.RejectedError{Message: "Probeer een beleidsonderwerp."}, http.StatusBadRequest,
			"Query rejected", "Probeer een beleidsonderwerp."},
		{"internal", fmt.Errorf("cache lookup: %w", errors.New("connection refused")), http.StatusInternalServerError,
			"Internal server error", descInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(&fakeSearcher{err: tc.err}, &fakeStore{})
			rec := do(t, srv, http.MethodGet, "/api/search?q=x")
			require.Equal(t, tc.status, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.msg, body.Error)
			assert.Equal(t, tc.description, body.Description)
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}

func TestStats(t *testing.T) {
	store := &fakeStore{stats: []models.PageStat{
		{Party: "CDA", FileName: "cda.pdf", Pages: 80},
		{Party: "SP", FileName: "sp.pdf", Pages: 40},
	}}
	srv, _ := newTestServer(&fakeSearcher{}, store)

	rec := do(t, srv, http.MethodGet, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Programs   []models.PageStat `json:"programs"`
		TotalPages int               `json:"total_pages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Programs, 2)
	assert.Equal(t, 120, body.TotalPages)

	store.statsErr = errors.New("down")
	rec = do(t, srv, http.MethodGet, "/api/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	store := &fakeStore{}
	srv, _ := newTestServer(&fakeSearcher{}, store)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/ready").Code)

	store.pingErr = errors.New("no connection")
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/ready").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/health").Code)
}

func TestMethodsAndPreflight(t *testing.T) {
	srv, _ := newTestServer(&fakeSearcher{}, &fakeStore{})

	rec := do(t, srv, http.MethodOptions, "/api/search")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv, http.MethodPost, "/api/search").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/nope").Code)
}

func TestRequestMetrics(t *testing.T) {
	srv, m := newTestServer(&fakeSearcher{}, &fakeStore{})
	do(t, srv, http.MethodGet, "/api/search?q=wonen")
	do(t, srv, http.MethodGet, "/api/search?q=zorg")
	do(t, srv, http.MethodGet, "/api/search/wonen")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET /api/search", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET /api/search/{slug}", "200")))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RecordSearch(metrics.OutcomeFresh, 0)
	srv := New(&fakeSearcher{}, &fakeStore{}, reg, Config{CORSAllowOrigin: "https://zweefhulp.nl"}, logger.Nop(), m)

	rec := do(t, srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "zweefhulp_searches_total")
	assert.Equal(t, "https://zweefhulp.nl", rec.Header().Get("Access-Control-Allow-Origin"))
}
