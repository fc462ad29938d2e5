// Package database persists parties, programs, document chunks and the
// per-(query, party) answer cache. Postgres with pgvector is the production
// backend; SQLite serves local runs and tests.
package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"zweefhulp/internal/config"
	"zweefhulp/internal/models"
)

// chunkBatchSize bounds the chunk rows sent per batch round trip.
const chunkBatchSize = 200

// ErrNotFound is returned when a lookup has no matching row.
var ErrNotFound = errors.New("not found")

// StoreOutcome reports what a cache write did.
type StoreOutcome int

const (
	// Inserted means the answer was written.
	Inserted StoreOutcome = iota
	// AlreadyExists means another writer stored the same (query, party)
	// first; the existing row was kept and nothing was written.
	AlreadyExists
)

func (o StoreOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	default:
		return fmt.Sprintf("StoreOutcome(%d)", int(o))
	}
}

// Repository is the full storage surface used by the binaries.
type Repository interface {
	Initialize(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	ListParties(ctx context.Context) ([]models.PartyWithProgram, error)
	UpsertParty(ctx context.Context, party models.Party) (string, error)
	UpsertProgram(ctx context.Context, program models.Program) (string, error)
	// ReplaceProgramChunks swaps the chunks of a program in one transaction
	// and returns how many were removed.
	ReplaceProgramChunks(ctx context.Context, programID string, chunks []models.DocumentChunk) (int64, error)
	PageStats(ctx context.Context) ([]models.PageStat, error)

	TopK(ctx context.Context, programID string, vec []float32, k int) ([]models.ScoredChunk, error)

	Lookup(ctx context.Context, query, partyID string) (*models.CachedAnswer, error)
	LookupAll(ctx context.Context, query string) (*models.CompleteAnswer, bool, error)
	LookupAllBySlug(ctx context.Context, slug string) (*models.CompleteAnswer, bool, error)
	Store(ctx context.Context, query, partyID, summary string, positions []models.Position) (StoreOutcome, error)
}

var (
	_ Repository = (*Postgres)(nil)
	_ Repository = (*SQLite)(nil)
)

// Open connects to the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Repository, error) {
	switch cfg.Driver {
	case "postgres", "":
		return NewPostgres(ctx, cfg.URL, cfg.VectorDims)
	case "sqlite":
		return NewSQLite(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// positionRow is one row of the results/positions/quotes join. Quote
// columns are empty for positions without quotes.
type positionRow struct {
	ResultID     string
	PositionID   string
	Title        string
	Subtitle     string
	PosOrdinal   int
	QuoteText    *string
	QuotePage    *int
	QuoteOrdinal *int
}

// attachPositions folds join rows, ordered by result, position ordinal and
// quote ordinal, into the answers they belong to.
func attachPositions(answers map[string]*models.CachedAnswer, rows []positionRow) {
	var (
		current   *models.Position
		currentID string
		owner     *models.CachedAnswer
	)
	flush := func() {
		if current != nil && owner != nil {
			owner.Positions = append(owner.Positions, *current)
		}
		current = nil
	}
	for _, r := range rows {
		if r.PositionID != currentID {
			flush()
			currentID = r.PositionID
			owner = answers[r.ResultID]
			current = &models.Position{
				Title:    r.Title,
				Subtitle: r.Subtitle,
				Ordinal:  r.PosOrdinal,
				Quotes:   []models.Quote{},
			}
		}
		if r.QuoteText != nil && r.QuotePage != nil {
			q := models.Quote{Text: *r.QuoteText, Page: *r.QuotePage}
			if r.QuoteOrdinal != nil {
				q.Ordinal = *r.QuoteOrdinal
			}
			current.Quotes = append(current.Quotes, q)
		}
	}
	flush()
	for _, a := range answers {
		if a.Positions == nil {
			a.Positions = []models.Position{}
		}
	}
}

// completeAnswer assembles the aggregate for query if every party has a
// cached answer. An empty party set is never complete.
func completeAnswer(query string, parties []models.PartyWithProgram, byParty map[string]*models.CachedAnswer) (*models.CompleteAnswer, bool) {
	if len(parties) == 0 {
		return nil, false
	}
	result := &models.CompleteAnswer{Query: query, Parties: make([]models.PartyResult, 0, len(parties))}
	for _, p := range parties {
		answer, ok := byParty[p.Party.ID]
		if !ok {
			return nil, false
		}
		result.Parties = append(result.Parties, models.NewPartyResult(p.Party, answer.Summary, answer.Positions))
	}
	sort.SliceStable(result.Parties, func(i, j int) bool {
		return result.Parties[i].Party < result.Parties[j].Party
	})
	return result, true
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
