package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zweefhulp/internal/database"
	"zweefhulp/internal/logger"
	"zweefhulp/internal/models"
	"zweefhulp/internal/party"
	"zweefhulp/internal/search"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		slugReverse = false
	})
	require.NoError(t, rootCmd.Execute())
	return buf.String()
}

func TestSlugCommand(t *testing.T) {
	assert.Equal(t, "normen-en-waarden\n", execute(t, "slug", "Normen", "en", "waarden"))
	assert.Equal(t, "Klimaat Verandering\n", execute(t, "slug", "-r", "klimaat-verandering"))
}

func TestSeedCatalogIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, err := database.NewSQLite(filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Initialize(ctx))

	catalog := party.Default()
	n, err := seedCatalog(ctx, repo, catalog, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, catalog.Len(), n)

	_, err = seedCatalog(ctx, repo, catalog, logger.Nop())
	require.NoError(t, err)

	parties, err := repo.ListParties(ctx)
	require.NoError(t, err)
	require.Len(t, parties, catalog.Len())
	for _, p := range parties {
		require.NotNil(t, p.Program, p.Party.Name)
		e, ok := catalog.ByFileName(p.Program.FileName)
		require.True(t, ok)
		assert.Equal(t, e.Name, p.Party.Name)
	}
}

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query: "stikstof",
		Parties: []models.PartyResult{
			models.NewPartyResult(models.Party{Name: "BBB", ShortName: "BBB", Website: "https://www.boerburgerbeweging.nl"},
				"BBB wil geen gedwongen uitkoop.", []models.Position{{
					Title:    "Geen gedwongen uitkoop",
					Subtitle: "Boeren blijven op hun grond.",
					Quotes:   []models.Quote{{Text: "Wij zijn tegen gedwongen uitkoop.", Page: 7}},
				}}),
			models.NewPartyResult(models.Party{Name: "SP", ShortName: "SP"}, "", nil),
		},
	}
}

func TestFormatResponse(t *testing.T) {
	out := formatResponse(sampleResponse())
	assert.Contains(t, out, "stikstof  (/stikstof)")
	assert.Contains(t, out, "BBB (1 citaten) https://www.boerburgerbeweging.nl")
	assert.Contains(t, out, "1. Geen gedwongen uitkoop")
	assert.Contains(t, out, `- "Wij zijn tegen gedwongen uitkoop." (p. 7)`)
	assert.Contains(t, out, "Geen standpunten gevonden: SP")
	assert.NotContains(t, out, "uit cache")
}

type scriptedSearcher struct {
	queries []string
}

func (s *scriptedSearcher) Search(_ context.Context, raw string) (*models.SearchResponse, error) {
	s.queries = append(s.queries, raw)
	if raw == "hack" {
		return nil, &search.RejectedError{Message: "Probeer een beleidsonderwerp."}
	}
	return sampleResponse(), nil
}

func TestRunInteractive(t *testing.T) {
	s := &scriptedSearcher{}
	in := strings.NewReader("stikstof\n\nhack\nexit\nnooit\n")
	out := new(bytes.Buffer)

	require.NoError(t, runInteractive(context.Background(), in, out, s))
	assert.Equal(t, []string{"stikstof", "hack"}, s.queries)
	assert.Contains(t, out.String(), "Geen gedwongen uitkoop")
	assert.Contains(t, out.String(), "Probeer een beleidsonderwerp.")
}

func TestDescribeSearchError(t *testing.T) {
	assert.EqualError(t, describeSearchError(search.ErrEmptyQuery), "geef een zoekterm op")
	assert.EqualError(t, describeSearchError(&search.RejectedError{Message: "Nee."}), "Nee.")
	assert.ErrorIs(t, describeSearchError(context.DeadlineExceeded), context.DeadlineExceeded)
}
