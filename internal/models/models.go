package models

import "time"

// Party is a political party taking part in the election
type Party struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Website   string `json:"website"`
}

// Program is the active election program document of a party
type Program struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	Year     int    `json:"year"`
	PartyID  string `json:"party_id"`
}

// PartyWithProgram pairs a party with its active program. Program is nil
// when the party has not been ingested yet.
type PartyWithProgram struct {
	Party   Party
	Program *Program
}

// DocumentChunk is a slice of a program's text together with its embedding
type DocumentChunk struct {
	ID         string    `json:"id"`
	ProgramID  string    `json:"program_id"`
	PageNumber int       `json:"page_number"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
}

// ScoredChunk is a chunk returned by a similarity search
type ScoredChunk struct {
	ChunkID    string  `json:"chunk_id"`
	Content    string  `json:"content"`
	PageNumber int     `json:"page_number"`
	Similarity float64 `json:"similarity"`
}

// Quote is a verbatim citation from a program
type Quote struct {
	Text    string `json:"text"`
	Page    int    `json:"page"`
	Ordinal int    `json:"-"`
}

// Position is one distinct stance of a party, backed by quotes
type Position struct {
	Title    string  `json:"title"`
	Subtitle string  `json:"subtitle"`
	Ordinal  int     `json:"-"`
	Quotes   []Quote `json:"quotes"`
}

// Synthesis is the validated outcome of synthesizing one party's positions
type Synthesis struct {
	Summary   string
	Positions []Position
}

// QuoteCount returns the number of quotes across all positions
func (s Synthesis) QuoteCount() int {
	return CountQuotes(s.Positions)
}

// CountQuotes sums the quotes of the given positions
func CountQuotes(positions []Position) int {
	count := 0
	for _, p := range positions {
		count += len(p.Quotes)
	}
	return count
}

// CachedAnswer is a stored answer for one (query, party) pair
type CachedAnswer struct {
	ID        string
	Query     string
	Slug      string
	PartyID   string
	Summary   string
	Positions []Position
	CreatedAt time.Time
}

// CompleteAnswer holds a cached answer for every known party, ordered by
// party name.
type CompleteAnswer struct {
	Query   string
	Parties []PartyResult
}

// PartyResult is one party's entry in a search response
type PartyResult struct {
	PartyID   string     `json:"-"`
	Party     string     `json:"party"`
	Short     string     `json:"short"`
	Count     int        `json:"count"`
	Website   string     `json:"website"`
	Summary   string     `json:"summary"`
	Positions []Position `json:"positions"`
}

// NewPartyResult builds a response entry for a party. A nil positions slice
// is normalised to an empty one so it encodes as [].
func NewPartyResult(party Party, summary string, positions []Position) PartyResult {
	if positions == nil {
		positions = []Position{}
	}
	short := party.ShortName
	if short == "" {
		short = party.Name
	}
	website := party.Website
	if website == "" {
		website = "#"
	}
	return PartyResult{
		PartyID:   party.ID,
		Party:     party.Name,
		Short:     short,
		Count:     CountQuotes(positions),
		Website:   website,
		Summary:   summary,
		Positions: positions,
	}
}

// SearchResponse is the aggregated answer to a query
type SearchResponse struct {
	Parties []PartyResult `json:"parties"`
	Query   string        `json:"query"`
	Slug    string        `json:"slug"`
	Cached  bool          `json:"-"`
}

// PageStat reports the number of pages ingested for a program
type PageStat struct {
	Party    string `json:"party"`
	FileName string `json:"file_name"`
	Pages    int    `json:"pages"`
}
