// indexer loads election program PDFs into the vector store: one program
// per catalog party, split into page-tagged chunks and embedded with the
// same model the search path uses.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"zweefhulp/internal/config"
	"zweefhulp/internal/database"
	"zweefhulp/internal/embedding"
	"zweefhulp/internal/logger"
	"zweefhulp/internal/models"
	"zweefhulp/internal/party"
	"zweefhulp/internal/processor"
)

type options struct {
	configPath    string
	catalogPath   string
	dir           string
	only          string
	file          string
	chunkSize     int
	chunkOverlap  int
	maxConcurrent int
}

// store is the slice of the repository the indexer writes to.
type store interface {
	UpsertParty(ctx context.Context, p models.Party) (string, error)
	UpsertProgram(ctx context.Context, p models.Program) (string, error)
	ReplaceProgramChunks(ctx context.Context, programID string, chunks []models.DocumentChunk) (int64, error)
}

type indexer struct {
	store         store
	embedder      embedding.Embedder
	pdf           *processor.PDFProcessor
	maxConcurrent int
	log           zerolog.Logger
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "zweefhulp.yaml", "Path to the YAML config file")
	flag.StringVar(&opts.catalogPath, "catalog", "", "Party catalog YAML (defaults to the built-in catalog)")
	flag.StringVar(&opts.dir, "dir", "", "Directory with program PDFs (defaults to program_dir from config)")
	flag.StringVar(&opts.only, "party", "", "Only index this party (name or short name)")
	flag.StringVar(&opts.file, "file", "", "Only index this PDF; its file name selects the party")
	flag.IntVar(&opts.chunkSize, "chunk-size", processor.DefaultChunkSize, "Character size for text chunks")
	flag.IntVar(&opts.chunkOverlap, "chunk-overlap", processor.DefaultChunkOverlap, "Character overlap between chunks")
	flag.IntVar(&opts.maxConcurrent, "max-concurrent", max(1, runtime.NumCPU()/2), "Maximum concurrent embedding requests")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "indexer: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.Component(logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty}), "indexer")

	dir := opts.dir
	if dir == "" {
		dir = cfg.ProgramDir
	}
	if dir == "" && opts.file == "" {
		return errors.New("no program directory: pass -dir or set program_dir")
	}

	catalog, err := party.Load(opts.catalogPath)
	if err != nil {
		return err
	}
	jobs, err := selectJobs(catalog, dir, opts.only, opts.file)
	if err != nil {
		return err
	}

	repo, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()
	if err := repo.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	log.Info().
		Str("model", emb.ModelName()).
		Str("dir", dir).
		Int("programs", len(jobs)).
		Int("max_concurrent", opts.maxConcurrent).
		Msg("indexing programs")

	ix := &indexer{
		store:         repo,
		embedder:      emb,
		pdf:           processor.NewPDFProcessor(opts.chunkSize, opts.chunkOverlap),
		maxConcurrent: opts.maxConcurrent,
		log:           log,
	}

	start := time.Now()
	var failed, total int
	for _, j := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := ix.indexProgram(ctx, j.entry, j.path)
		if err != nil {
			failed++
			log.Error().Err(err).Str("party", j.entry.Name).Msg("program not indexed")
			continue
		}
		total += n
	}

	log.Info().
		Int("chunks", total).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("indexing finished")
	if failed > 0 {
		return fmt.Errorf("%d of %d programs failed", failed, len(jobs))
	}
	return nil
}

type job struct {
	entry party.Entry
	path  string
}

// selectJobs lists the programs to index. A file is resolved to its party
// by file name; otherwise every catalog party, or only the named one, is
// read from dir.
func selectJobs(catalog *party.Catalog, dir, only, file string) ([]job, error) {
	if file != "" {
		e, ok := catalog.ByFileName(filepath.Base(file))
		if !ok {
			return nil, fmt.Errorf("no catalog party has program %q", filepath.Base(file))
		}
		return []job{{entry: e, path: file}}, nil
	}

	entries := catalog.All()
	if only != "" {
		e, ok := catalog.ByName(only)
		if !ok {
			return nil, fmt.Errorf("party %q is not in the catalog", only)
		}
		entries = []party.Entry{e}
	}
	jobs := make([]job, len(entries))
	for i, e := range entries {
		jobs[i] = job{entry: e, path: filepath.Join(dir, e.Program.FileName)}
	}
	return jobs, nil
}

// indexProgram replaces the chunks of one party's program with a fresh
// extraction of path.
func (ix *indexer) indexProgram(ctx context.Context, e party.Entry, path string) (int, error) {
	if e.Program.FileName == "" {
		return 0, errors.New("no program file in catalog")
	}
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("program file: %w", err)
	}

	partyID, err := ix.store.UpsertParty(ctx, e.Party())
	if err != nil {
		return 0, err
	}
	programID, err := ix.store.UpsertProgram(ctx, models.Program{
		FileName: e.Program.FileName,
		Year:     e.Program.Year,
		PartyID:  partyID,
	})
	if err != nil {
		return 0, err
	}

	start := time.Now()
	chunks, err := ix.pdf.ProcessPDF(ctx, path)
	if err != nil {
		return 0, err
	}
	ix.log.Info().
		Str("party", e.Name).
		Int("chunks", len(chunks)).
		Dur("duration", time.Since(start)).
		Msg("extracted program text")

	return ix.storeChunks(ctx, programID, e.Name, chunks)
}

// storeChunks embeds chunks and swaps them in for the program's previous
// chunks in one transaction. Nothing is deleted when embedding fails.
func (ix *indexer) storeChunks(ctx context.Context, programID, partyName string, chunks []processor.Chunk) (int, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	start := time.Now()
	step := max(1, len(texts)/10)
	vectors, err := embedding.EmbedBatchWithProgress(ctx, ix.embedder, texts, ix.maxConcurrent,
		func(processed, total int) {
			if processed%step != 0 && processed != total {
				return
			}
			elapsed := time.Since(start)
			remaining := elapsed*time.Duration(total)/time.Duration(processed) - elapsed
			ix.log.Info().
				Str("party", partyName).
				Int("processed", processed).
				Int("total", total).
				Dur("remaining", remaining.Round(time.Second)).
				Msg("embedding progress")
		})
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	rows := make([]models.DocumentChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = models.DocumentChunk{
			ProgramID:  programID,
			PageNumber: c.PageNumber,
			Content:    c.Content,
			Embedding:  vectors[i],
		}
	}
	replaceStart := time.Now()
	removed, err := ix.store.ReplaceProgramChunks(ctx, programID, rows)
	logger.LogDbOperation(ix.log, "replace_chunks", time.Since(replaceStart), len(rows), err)
	if err != nil {
		return 0, fmt.Errorf("replace chunks: %w", err)
	}

	ix.log.Info().
		Str("party", partyName).
		Int64("replaced", removed).
		Int("stored", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("program indexed")
	return len(rows), nil
}
