package database

import (
	"context"
	"fmt"

	"zweefhulp/internal/models"
	"zweefhulp/internal/slug"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Postgres is the pgvector-backed store
type Postgres struct {
	Pool *pgxpool.Pool
	dims int
}

// NewPostgres creates a new database connection. The vector extension is
// created before the pool so every pooled connection can register the
// vector type.
func NewPostgres(ctx context.Context, connStr string, dims int) (*Postgres, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	_, err = conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	conn.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector extension: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{Pool: pool, dims: dims}, nil
}

// Initialize sets up the database tables and indices
func (db *Postgres) Initialize(ctx context.Context) error {
	vectorType := "vector"
	if db.dims > 0 {
		vectorType = fmt.Sprintf("vector(%d)", db.dims)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS parties (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			short_name TEXT NOT NULL DEFAULT '',
			website TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS programs (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL UNIQUE,
			year INTEGER NOT NULL,
			party_id TEXT NOT NULL REFERENCES parties(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS programs_party_idx ON programs (party_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id TEXT PRIMARY KEY,
			program_id TEXT NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
			page_number INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding %s NOT NULL
		)`, vectorType),
		`CREATE INDEX IF NOT EXISTS document_chunks_program_idx ON document_chunks (program_id)`,
		`CREATE TABLE IF NOT EXISTS search_results (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			slug TEXT NOT NULL,
			party_id TEXT NOT NULL REFERENCES parties(id) ON DELETE CASCADE,
			summary TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (query, party_id)
		)`,
		`CREATE INDEX IF NOT EXISTS search_results_slug_idx ON search_results (slug)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			search_result_id TEXT NOT NULL REFERENCES search_results(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			subtitle TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			UNIQUE (search_result_id, ordinal)
		)`,
		`CREATE TABLE IF NOT EXISTS quotes (
			id TEXT PRIMARY KEY,
			position_id TEXT NOT NULL REFERENCES positions(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			page INTEGER NOT NULL,
			ordinal INTEGER NOT NULL,
			UNIQUE (position_id, ordinal)
		)`,
	}
	if db.dims > 0 {
		// Approximate search needs a fixed dimension
		statements = append(statements, `CREATE INDEX IF NOT EXISTS document_chunks_embedding_idx
			ON document_chunks USING hnsw (embedding vector_cosine_ops)`)
	}

	for _, stmt := range statements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Ping checks the connection
func (db *Postgres) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// ListParties returns every party with its most recent program, ordered by name
func (db *Postgres) ListParties(ctx context.Context) ([]models.PartyWithProgram, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT pa.id, pa.name, pa.short_name, pa.website, pr.id, pr.file_name, pr.year
		FROM parties pa
		LEFT JOIN programs pr ON pr.id = (
			SELECT id FROM programs WHERE party_id = pa.id ORDER BY year DESC, file_name LIMIT 1
		)
		ORDER BY pa.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query parties: %w", err)
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
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		if programID != nil {
			p.Program = &models.Program{ID: *programID, FileName: *fileName, Year: *year, PartyID: p.Party.ID}
		}
		parties = append(parties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return parties, nil
}

// UpsertParty inserts a party or updates it by name and returns its id
func (db *Postgres) UpsertParty(ctx context.Context, party models.Party) (string, error) {
	var id string
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO parties (id, name, short_name, website)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET short_name = EXCLUDED.short_name, website = EXCLUDED.website
		RETURNING id
	`, uuid.NewString(), party.Name, party.ShortName, party.Website).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert party %s: %w", party.Name, err)
	}
	return id, nil
}

// UpsertProgram inserts a program or updates it by file name and returns its id
func (db *Postgres) UpsertProgram(ctx context.Context, program models.Program) (string, error) {
	var id string
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO programs (id, file_name, year, party_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (file_name) DO UPDATE SET year = EXCLUDED.year, party_id = EXCLUDED.party_id
		RETURNING id
	`, uuid.NewString(), program.FileName, program.Year, program.PartyID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert program %s: %w", program.FileName, err)
	}
	return id, nil
}

// ReplaceProgramChunks deletes the chunks of a program and inserts the new
// ones in a single transaction
func (db *Postgres) ReplaceProgramChunks(ctx context.Context, programID string, chunks []models.DocumentChunk) (int64, error) {
	var removed int64
	err := pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE program_id = $1`, programID)
		if err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		removed = tag.RowsAffected()

		for lo := 0; lo < len(chunks); lo += chunkBatchSize {
			batch := &pgx.Batch{}
			for _, c := range chunks[lo:min(lo+chunkBatchSize, len(chunks))] {
				id := c.ID
				if id == "" {
					id = uuid.NewString()
				}
				batch.Queue(`
					INSERT INTO document_chunks (id, program_id, page_number, content, embedding)
					VALUES ($1, $2, $3, $4, $5)
				`, id, programID, c.PageNumber, c.Content, pgvector.NewVector(c.Embedding))
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("failed to insert chunks: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// PageStats reports the highest ingested page number per program
func (db *Postgres) PageStats(ctx context.Context) ([]models.PageStat, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT pa.name, pr.file_name, COALESCE(MAX(c.page_number), 0)
		FROM programs pr
		JOIN parties pa ON pa.id = pr.party_id
		LEFT JOIN document_chunks c ON c.program_id = pr.id
		GROUP BY pa.name, pr.file_name
		ORDER BY pa.name, pr.file_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query page stats: %w", err)
	}
	defer rows.Close()

	var stats []models.PageStat
	for rows.Next() {
		var s models.PageStat
		if err := rows.Scan(&s.Party, &s.FileName, &s.Pages); err != nil {
			return nil, fmt.Errorf("failed to scan page stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// hnswSettings returns the transaction settings for a TopK scan over the
// HNSW index. The index covers every program and the program filter is
// applied after the scan, so it keeps scanning until k rows match. Needs
// pgvector 0.8 or later.
func hnswSettings(dims, k int) []string {
	if dims <= 0 {
		return nil
	}
	return []string{
		`SET LOCAL hnsw.iterative_scan = strict_order`,
		fmt.Sprintf(`SET LOCAL hnsw.ef_search = %d`, min(max(k, 40), 1000)),
	}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TopK finds the k chunks of a program closest to vec by cosine distance
func (db *Postgres) TopK(ctx context.Context, programID string, vec []float32, k int) ([]models.ScoredChunk, error) {
	settings := hnswSettings(db.dims, k)
	if len(settings) == 0 {
		return topK(ctx, db.Pool, programID, vec, k)
	}

	var chunks []models.ScoredChunk
	err := pgx.BeginTxFunc(ctx, db.Pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		for _, stmt := range settings {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to configure index scan: %w", err)
			}
		}
		var err error
		chunks, err = topK(ctx, tx, programID, vec, k)
		return err
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func topK(ctx context.Context, q querier, programID string, vec []float32, k int) ([]models.ScoredChunk, error) {
	rows, err := q.Query(ctx, `
		SELECT id, content, page_number, 1 - (embedding <=> $2) AS similarity
		FROM document_chunks
		WHERE program_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`, programID, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar chunks: %w", err)
	}
	defer rows.Close()

	chunks := []models.ScoredChunk{}
	for rows.Next() {
		var c models.ScoredChunk
		if err := rows.Scan(&c.ChunkID, &c.Content, &c.PageNumber, &c.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return chunks, nil
}

// Lookup returns the cached answer for one (query, party) pair
func (db *Postgres) Lookup(ctx context.Context, query, partyID string) (*models.CachedAnswer, error) {
	answers, err := db.loadAnswers(ctx, `WHERE query = $1 AND party_id = $2`, query, partyID)
	if err != nil {
		return nil, err
	}
	for _, a := range answers {
		return a, nil
	}
	return nil, ErrNotFound
}

// LookupAll returns the answer for every party if all of them are cached
func (db *Postgres) LookupAll(ctx context.Context, query string) (*models.CompleteAnswer, bool, error) {
	parties, err := db.ListParties(ctx)
	if err != nil {
		return nil, false, err
	}
	answers, err := db.loadAnswers(ctx, `WHERE query = $1`, query)
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

// LookupAllBySlug resolves a slug to a completely cached query, oldest first
func (db *Postgres) LookupAllBySlug(ctx context.Context, s string) (*models.CompleteAnswer, bool, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT query FROM search_results WHERE slug = $1
		GROUP BY query ORDER BY MIN(created_at)
	`, s)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query slug: %w", err)
	}
	queries, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, false, fmt.Errorf("failed to scan slug queries: %w", err)
	}

	for _, q := range queries {
		complete, ok, err := db.LookupAll(ctx, q)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return complete, true, nil
		}
	}
	return nil, false, nil
}

// Store writes an answer unless one already exists for (query, party)
func (db *Postgres) Store(ctx context.Context, query, partyID, summary string, positions []models.Position) (StoreOutcome, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	resultID := uuid.NewString()
	tag, err := tx.Exec(ctx, `
		INSERT INTO search_results (id, query, slug, party_id, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (query, party_id) DO NOTHING
	`, resultID, query, slug.Slugify(query), partyID, summary, nowUTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert search result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return AlreadyExists, nil
	}

	batch := &pgx.Batch{}
	// Ordinals follow slice order
	for i, p := range positions {
		positionID := uuid.NewString()
		batch.Queue(`
			INSERT INTO positions (id, search_result_id, title, subtitle, ordinal)
			VALUES ($1, $2, $3, $4, $5)
		`, positionID, resultID, p.Title, p.Subtitle, i+1)
		for j, q := range p.Quotes {
			batch.Queue(`
				INSERT INTO quotes (id, position_id, text, page, ordinal)
				VALUES ($1, $2, $3, $4, $5)
			`, uuid.NewString(), positionID, q.Text, q.Page, j+1)
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("failed to insert positions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit search result: %w", err)
	}
	return Inserted, nil
}

// loadAnswers reads search results matching where, with their positions
// and quotes, keyed by result id.
func (db *Postgres) loadAnswers(ctx context.Context, where string, args ...any) (map[string]*models.CachedAnswer, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, query, slug, party_id, summary, created_at FROM search_results `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query search results: %w", err)
	}
	defer rows.Close()

	answers := map[string]*models.CachedAnswer{}
	var ids []string
	for rows.Next() {
		var a models.CachedAnswer
		if err := rows.Scan(&a.ID, &a.Query, &a.Slug, &a.PartyID, &a.Summary, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		answers[a.ID] = &a
		ids = append(ids, a.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	if len(ids) == 0 {
		return answers, nil
	}

	prow, err := db.Pool.Query(ctx, `
		SELECT p.search_result_id, p.id, p.title, p.subtitle, p.ordinal, q.text, q.page, q.ordinal
		FROM positions p
		LEFT JOIN quotes q ON q.position_id = p.id
		WHERE p.search_result_id = ANY($1)
		ORDER BY p.search_result_id, p.ordinal, q.ordinal
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer prow.Close()

	var joined []positionRow
	for prow.Next() {
		var r positionRow
		if err := prow.Scan(&r.ResultID, &r.PositionID, &r.Title, &r.Subtitle, &r.PosOrdinal,
			&r.QuoteText, &r.QuotePage, &r.QuoteOrdinal); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		joined = append(joined, r)
	}
	if err := prow.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	attachPositions(answers, joined)
	return answers, nil
}

// Close closes the database connection
func (db *Postgres) Close() error {
	db.Pool.Close()
	return nil
}
