package search

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"zweefhulp/internal/database"
	"zweefhulp/internal/models"
	"zweefhulp/internal/slug"
)

// memoryStore is an in-memory party repository, vector store and cache.
type memoryStore struct {
	mu      sync.Mutex
	parties []models.PartyWithProgram
	chunks  map[string][]models.ScoredChunk // by program id
	answers map[[2]string]*models.CachedAnswer

	lookupAllErr error
	topKCalls    atomic.Int32
	storeCalls   atomic.Int32
}

func newMemoryStore(names ...string) *memoryStore {
	s := &memoryStore{
		chunks:  map[string][]models.ScoredChunk{},
		answers: map[[2]string]*models.CachedAnswer{},
	}
	for _, n := range names {
		s.parties = append(s.parties, models.PartyWithProgram{
			Party:   models.Party{ID: "party-" + n, Name: n, ShortName: n, Website: "https://" + n + ".nl"},
			Program: &models.Program{ID: "program-" + n, FileName: n + ".pdf", Year: 2025, PartyID: "party-" + n},
		})
		s.chunks["program-"+n] = []models.ScoredChunk{
			{ChunkID: n + "-1", Content: n + " wil minder stikstof", PageNumber: 4, Similarity: 0.9},
		}
	}
	sort.Slice(s.parties, func(i, j int) bool { return s.parties[i].Party.Name < s.parties[j].Party.Name })
	return s
}

func (s *memoryStore) ListParties(context.Context) ([]models.PartyWithProgram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PartyWithProgram(nil), s.parties...), nil
}

func (s *memoryStore) TopK(_ context.Context, programID string, _ []float32, k int) ([]models.ScoredChunk, error) {
	s.topKCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.chunks[programID]
	if len(c) > k {
		c = c[:k]
	}
	return append([]models.ScoredChunk{}, c...), nil
}

func (s *memoryStore) Lookup(_ context.Context, query, partyID string) (*models.CachedAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[[2]string{query, partyID}]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memoryStore) LookupAll(_ context.Context, query string) (*models.CompleteAnswer, bool, error) {
	if s.lookupAllErr != nil {
		return nil, false, s.lookupAllErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.parties) == 0 {
		return nil, false, nil
	}
	out := &models.CompleteAnswer{Query: query}
	for _, p := range s.parties {
		a, ok := s.answers[[2]string{query, p.Party.ID}]
		if !ok {
			return nil, false, nil
		}
		out.Parties = append(out.Parties, models.NewPartyResult(p.Party, a.Summary, a.Positions))
	}
	return out, true, nil
}

func (s *memoryStore) LookupAllBySlug(ctx context.Context, sl string) (*models.CompleteAnswer, bool, error) {
	s.mu.Lock()
	var queries []string
	for k, a := range s.answers {
		if a.Slug == sl {
			queries = append(queries, k[0])
		}
	}
	s.mu.Unlock()
	for _, q := range queries {
		if c, ok, err := s.LookupAll(ctx, q); err != nil || ok {
			return c, ok, err
		}
	}
	return nil, false, nil
}

func (s *memoryStore) Store(_ context.Context, query, partyID, summary string, positions []models.Position) (database.StoreOutcome, error) {
	s.storeCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{query, partyID}
	if _, ok := s.answers[key]; ok {
		return database.AlreadyExists, nil
	}
	s.answers[key] = &models.CachedAnswer{
		Query: query, Slug: slug.Slugify(query), PartyID: partyID, Summary: summary, Positions: positions,
	}
	return database.Inserted, nil
}

func (s *memoryStore) cached(query, party string) bool {
	_, err := s.Lookup(context.Background(), query, "party-"+party)
	return err == nil
}

type fakeEmbedder struct {
	calls atomic.Int32
	err   error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake" }

type fakeGuardrail struct {
	valid bool
	calls atomic.Int32
}

func (f *fakeGuardrail) Classify(context.Context, string) bool {
	f.calls.Add(1)
	return f.valid
}

func (f *fakeGuardrail) RejectionMessage() string { return "Probeer een beleidsonderwerp." }

// fakeSynthesizer answers with one position per party unless behaviour
// overrides it for a party name.
type fakeSynthesizer struct {
	mu        sync.Mutex
	calls     map[string]int
	behaviour map[string]func(ctx context.Context) (models.Synthesis, error)
}

func newFakeSynthesizer() *fakeSynthesizer {
	return &fakeSynthesizer{
		calls:     map[string]int{},
		behaviour: map[string]func(ctx context.Context) (models.Synthesis, error){},
	}
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, query, partyName string, chunks []models.ScoredChunk) (models.Synthesis, error) {
	f.mu.Lock()
	f.calls[partyName]++
	fn := f.behaviour[partyName]
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	if len(chunks) == 0 {
		return models.Synthesis{}, nil
	}
	return models.Synthesis{
		Summary: partyName + " over " + query,
		Positions: []models.Position{{
			Title:    partyName + " standpunt",
			Subtitle: "Toelichting.",
			Ordinal:  1,
			Quotes:   []models.Quote{{Text: chunks[0].Content, Page: chunks[0].PageNumber, Ordinal: 1}},
		}},
	}, nil
}

func (f *fakeSynthesizer) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeSynthesizer) callsFor(party string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[party]
}

func blockUntilDone(ctx context.Context) (models.Synthesis, error) {
	<-ctx.Done()
	return models.Synthesis{}, ctx.Err()
}

var errProvider = errors.New("provider unavailable")
