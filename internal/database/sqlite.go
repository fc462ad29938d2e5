package database

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"zweefhulp/internal/models"
	"zweefhulp/internal/slug"
	"zweefhulp/internal/vector"
)

// SQLite is a single-file store. Similarity search is a brute-force scan
// over the program's chunks.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database file at path.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Writers serialize on one connection
	db.SetMaxOpenConns(1)

	return &SQLite{db: db}, nil
}

// Initialize creates the schema.
func (s *SQLite) Initialize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS parties (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			short_name TEXT NOT NULL DEFAULT '',
			website TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS programs (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL UNIQUE,
			year INTEGER NOT NULL,
			party_id TEXT NOT NULL REFERENCES parties(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS programs_party_idx ON programs (party_id);
		CREATE TABLE IF NOT EXISTS document_chunks (
			id TEXT PRIMARY KEY,
			program_id TEXT NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
			page_number INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS document_chunks_program_idx ON document_chunks (program_id);
		CREATE TABLE IF NOT EXISTS search_results (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			slug TEXT NOT NULL,
			party_id TEXT NOT NULL REFERENCES parties(id) ON DELETE CASCADE,
			summary TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (query, party_id)
		);
		CREATE INDEX IF NOT EXISTS search_results_slug_idx ON search_results (slug);
		CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			search_result_id TEXT NOT NULL REFERENCES search_results(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			subtitle TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			UNIQUE (search_result_id, ordinal)
		);
		CREATE TABLE IF NOT EXISTS quotes (
			id TEXT PRIMARY KEY,
			position_id TEXT NOT NULL REFERENCES positions(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			page INTEGER NOT NULL,
			ordinal INTEGER NOT NULL,
			UNIQUE (position_id, ordinal)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ListParties returns every party with its most recent program, ordered by name.
func (s *SQLite) ListParties(ctx context.Context) ([]models.PartyWithProgram, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pa.id, pa.name, pa.short_name, pa.website, pr.id, pr.file_name, pr.year
		FROM parties pa
		LEFT JOIN programs pr ON pr.id = (
			SELECT id FROM programs WHERE party_id = pa.id ORDER BY year DESC, file_name LIMIT 1
		)
		ORDER BY pa.name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying parties: %w", err)
	}
	defer rows.Close()

	var parties []models.PartyWithProgram
	for rows.Next() {
		var (
			p                   models.PartyWithProgram
			programID, fileName *string
			year                *int
		)
		if err := rows.Scan(&p.Party.ID, &p.Party.Name, &p.Party.ShortName, &p.Party.Website,
			&programID, &fileName, &year); err != nil {
			return nil, fmt.Errorf("scanning party: %w", err)
		}
		if programID != nil {
			p.Program = &models.Program{ID: *programID, FileName: *fileName, Year: *year, PartyID: p.Party.ID}
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

// UpsertParty inserts a party or updates it by name and returns its id.
func (s *SQLite) UpsertParty(ctx context.Context, party models.Party) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO parties (id, name, short_name, website)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET short_name = excluded.short_name, website = excluded.website
		RETURNING id
	`, uuid.NewString(), party.Name, party.ShortName, party.Website).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upserting party %s: %w", party.Name, err)
	}
	return id, nil
}

// UpsertProgram inserts a program or updates it by file name and returns its id.
func (s *SQLite) UpsertProgram(ctx context.Context, program models.Program) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO programs (id, file_name, year, party_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_name) DO UPDATE SET year = excluded.year, party_id = excluded.party_id
		RETURNING id
	`, uuid.NewString(), program.FileName, program.Year, program.PartyID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upserting program %s: %w", program.FileName, err)
	}
	return id, nil
}

// ReplaceProgramChunks deletes the chunks of a program and inserts the new
// ones in a single transaction.
func (s *SQLite) ReplaceProgramChunks(ctx context.Context, programID string, chunks []models.DocumentChunk) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE program_id = ?`, programID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks (id, program_id, page_number, content, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, programID, c.PageNumber, c.Content, encodeEmbedding(c.Embedding)); err != nil {
			return 0, fmt.Errorf("inserting chunk: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing chunks: %w", err)
	}
	return removed, nil
}

// PageStats reports the highest ingested page number per program.
func (s *SQLite) PageStats(ctx context.Context) ([]models.PageStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pa.name, pr.file_name, COALESCE(MAX(c.page_number), 0)
		FROM programs pr
		JOIN parties pa ON pa.id = pr.party_id
		LEFT JOIN document_chunks c ON c.program_id = pr.id
		GROUP BY pa.name, pr.file_name
		ORDER BY pa.name, pr.file_name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying page stats: %w", err)
	}
	defer rows.Close()

	var stats []models.PageStat
	for rows.Next() {
		var st models.PageStat
		if err := rows.Scan(&st.Party, &st.FileName, &st.Pages); err != nil {
			return nil, fmt.Errorf("scanning page stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

type storedChunk struct {
	id        string
	content   string
	page      int
	embedding []float32
}

// TopK scores every chunk of the program against vec.
func (s *SQLite) TopK(ctx context.Context, programID string, vec []float32, k int) ([]models.ScoredChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, page_number, embedding FROM document_chunks WHERE program_id = ?
	`, programID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var candidates []storedChunk
	for rows.Next() {
		var (
			c    storedChunk
			blob []byte
		)
		if err := rows.Scan(&c.id, &c.content, &c.page, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.embedding = decodeEmbedding(blob)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	ranked := vector.TopK(vec, candidates, func(c storedChunk) []float32 { return c.embedding }, k)
	out := make([]models.ScoredChunk, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, models.ScoredChunk{
			ChunkID:    r.Item.id,
			Content:    r.Item.content,
			PageNumber: r.Item.page,
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

// Lookup returns the cached answer for one (query, party) pair.
func (s *SQLite) Lookup(ctx context.Context, query, partyID string) (*models.CachedAnswer, error) {
	answers, err := s.loadAnswers(ctx, `WHERE r.query = ? AND r.party_id = ?`, query, partyID)
	if err != nil {
		return nil, err
	}
	for _, a := range answers {
		return a, nil
	}
	return nil, ErrNotFound
}

// LookupAll returns the answer for every party if all of them are cached.
func (s *SQLite) LookupAll(ctx context.Context, query string) (*models.CompleteAnswer, bool, error) {
	parties, err := s.ListParties(ctx)
	if err != nil {
		return nil, false, err
	}
	answers, err := s.loadAnswers(ctx, `WHERE r.query = ?`, query)
	if err != nil {
		return nil, false, err
	}
	if len(answers) < len(parties) {
		return nil, false, nil
	}
	byParty := make(map[string]*models.CachedAnswer, len(answers))
	for _, a := range answers {
		byParty[a.PartyID] = a
	}
	complete, ok := completeAnswer(query, parties, byParty)
	return complete, ok, nil
}

// LookupAllBySlug resolves a slug to a completely cached query, oldest first.
func (s *SQLite) LookupAllBySlug(ctx context.Context, sl string) (*models.CompleteAnswer, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT query FROM search_results WHERE slug = ?
		GROUP BY query ORDER BY MIN(created_at)
	`, sl)
	if err != nil {
		return nil, false, fmt.Errorf("querying slug: %w", err)
	}
	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			rows.Close()
			return nil, false, fmt.Errorf("scanning slug query: %w", err)
		}
		queries = append(queries, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterating slug queries: %w", err)
	}

	for _, q := range queries {
		complete, ok, err := s.LookupAll(ctx, q)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return complete, true, nil
		}
	}
	return nil, false, nil
}

// Store writes an answer unless one already exists for (query, party).
func (s *SQLite) Store(ctx context.Context, query, partyID, summary string, positions []models.Position) (StoreOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	resultID := uuid.NewString()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO search_results (id, query, slug, party_id, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(query, party_id) DO NOTHING
	`, resultID, query, slug.Slugify(query), partyID, summary, nowUTC())
	if err != nil {
		return 0, fmt.Errorf("inserting search result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return AlreadyExists, nil
	}

	// Ordinals follow slice order
	for i, p := range positions {
		positionID := uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO positions (id, search_result_id, title, subtitle, ordinal) VALUES (?, ?, ?, ?, ?)
		`, positionID, resultID, p.Title, p.Subtitle, i+1); err != nil {
			return 0, fmt.Errorf("inserting position: %w", err)
		}
		for j, q := range p.Quotes {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO quotes (id, position_id, text, page, ordinal) VALUES (?, ?, ?, ?, ?)
			`, uuid.NewString(), positionID, q.Text, q.Page, j+1); err != nil {
				return 0, fmt.Errorf("inserting quote: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing search result: %w", err)
	}
	return Inserted, nil
}

// loadAnswers reads results matching where, a filter on the search_results
// alias r, with their positions and quotes. Each result set is closed
// before the next query runs: the pool holds a single connection.
func (s *SQLite) loadAnswers(ctx context.Context, where string, args ...any) (map[string]*models.CachedAnswer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.query, r.slug, r.party_id, r.summary, r.created_at
		FROM search_results r `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying search results: %w", err)
	}
	answers := map[string]*models.CachedAnswer{}
	for rows.Next() {
		var a models.CachedAnswer
		if err := rows.Scan(&a.ID, &a.Query, &a.Slug, &a.PartyID, &a.Summary, &a.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		answers[a.ID] = &a
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	if len(answers) == 0 {
		return answers, nil
	}

	prow, err := s.db.QueryContext(ctx, `
		SELECT p.search_result_id, p.id, p.title, p.subtitle, p.ordinal, q.text, q.page, q.ordinal
		FROM positions p
		JOIN search_results r ON r.id = p.search_result_id
		LEFT JOIN quotes q ON q.position_id = p.id
		`+where+`
		ORDER BY p.search_result_id, p.ordinal, q.ordinal
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying positions: %w", err)
	}
	defer prow.Close()

	var joined []positionRow
	for prow.Next() {
		var r positionRow
		if err := prow.Scan(&r.ResultID, &r.PositionID, &r.Title, &r.Subtitle, &r.PosOrdinal,
			&r.QuoteText, &r.QuotePage, &r.QuoteOrdinal); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		joined = append(joined, r)
	}
	if err := prow.Err(); err != nil {
		return nil, fmt.Errorf("iterating positions: %w", err)
	}

	attachPositions(answers, joined)
	return answers, nil
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
