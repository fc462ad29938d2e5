package synthesis

import (
	"regexp"
	"strconv"
	"strings"

	"zweefhulp/internal/models"
)

// ParseResult is either ParseSuccess or ParseFailure.
type ParseResult interface {
	parseResult()
}

// ParseSuccess holds validated, deduplicated positions numbered from 1.
type ParseSuccess struct {
	Summary   string
	Positions []models.Position
}

// ParseFailure means the output had no recognizable structure.
type ParseFailure struct {
	Reason string
}

func (ParseSuccess) parseResult() {}
func (ParseFailure) parseResult() {}

var (
	headingRe = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*#*$`)
	// - "text" (page 12), also accepting pagina/p./blz. and curly quotes
	quoteRe     = regexp.MustCompile(`(?i)^[-*•]\s+["“„](.+)["”]\s*[(\[]\s*(?:page|pagina|blz\.?|p\.)\s*(\d+)\s*[)\]]\.?$`)
	bulletRe    = regexp.MustCompile(`^[-*•]\s+`)
	numberingRe = regexp.MustCompile(`(?i)^(?:\d+[.)]|standpunt\s+\d+:?)\s*`)
)

type section struct {
	title string
	lines []string
}

// Parse extracts the summary and positions from model output. Sections
// without a title, a subtitle or at least one quote are dropped. Quotes are
// deduplicated across all positions on lowercased trimmed text and page;
// positions left empty are removed and at most maxPositions are kept.
func Parse(text string, maxPositions int) ParseResult {
	if maxPositions <= 0 {
		maxPositions = DefaultMaxPositions
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return ParseFailure{Reason: "empty output"}
	}

	var (
		preamble    []string
		summary     []string
		sections    []section
		current     = -1
		haveSummary bool
		inSummary   bool
		sawHeading  bool
	)
	for _, line := range strings.Split(stripCodeFence(text), "\n") {
		trimmed := strings.TrimSpace(line)
		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			sawHeading = true
			title := cleanTitle(m[1])
			if isSummaryHeading(title) && !haveSummary {
				haveSummary, inSummary, current = true, true, -1
				continue
			}
			inSummary = false
			sections = append(sections, section{title: title})
			current = len(sections) - 1
			continue
		}
		switch {
		case inSummary:
			summary = append(summary, trimmed)
		case current >= 0:
			sections[current].lines = append(sections[current].lines, trimmed)
		default:
			preamble = append(preamble, trimmed)
		}
	}

	if !sawHeading {
		return ParseFailure{Reason: "no headings found"}
	}
	if !haveSummary {
		summary = preamble
	}

	var positions []models.Position
	for _, s := range sections {
		if p, ok := parseSection(s); ok {
			positions = append(positions, p)
		}
	}

	return ParseSuccess{
		Summary:   joinParagraphs(summary),
		Positions: Number(Dedupe(positions), maxPositions),
	}
}

// parseSection splits a section body into subtitle and quotes. The subtitle
// is the first contiguous run of non-quote lines.
func parseSection(s section) (models.Position, bool) {
	if s.title == "" {
		return models.Position{}, false
	}

	var (
		subtitle []string
		quotes   []models.Quote
		started  bool
		done     bool
	)
	for _, line := range s.lines {
		if q, ok := parseQuote(line); ok {
			quotes = append(quotes, q)
			if started {
				done = true
			}
			continue
		}
		if line == "" || bulletRe.MatchString(line) {
			if started {
				done = true
			}
			continue
		}
		if done {
			continue
		}
		started = true
		subtitle = append(subtitle, strings.Trim(line, "*_ "))
	}

	sub := strings.TrimSpace(strings.Join(subtitle, " "))
	if sub == "" || len(quotes) == 0 {
		return models.Position{}, false
	}
	return models.Position{Title: s.title, Subtitle: sub, Quotes: quotes}, true
}

func parseQuote(line string) (models.Quote, bool) {
	m := quoteRe.FindStringSubmatch(line)
	if m == nil {
		return models.Quote{}, false
	}
	text := strings.TrimSpace(m[1])
	page, err := strconv.Atoi(m[2])
	if text == "" || err != nil {
		return models.Quote{}, false
	}
	return models.Quote{Text: text, Page: page}, true
}

// Dedupe drops every quote whose (lowercased trimmed text, page) pair was
// already seen in an earlier position or earlier in the same position, then
// removes positions without quotes.
func Dedupe(positions []models.Position) []models.Position {
	type key struct {
		text string
		page int
	}
	seen := map[key]bool{}

	out := make([]models.Position, 0, len(positions))
	for _, p := range positions {
		kept := make([]models.Quote, 0, len(p.Quotes))
		for _, q := range p.Quotes {
			k := key{text: strings.ToLower(strings.TrimSpace(q.Text)), page: q.Page}
			if seen[k] {
				continue
			}
			seen[k] = true
			kept = append(kept, q)
		}
		if len(kept) == 0 {
			continue
		}
		p.Quotes = kept
		out = append(out, p)
	}
	return out
}

// Number keeps the first limit positions and sets ordinals 1..N on positions
// and on the quotes within each position.
func Number(positions []models.Position, limit int) []models.Position {
	if limit > 0 && len(positions) > limit {
		positions = positions[:limit]
	}
	out := make([]models.Position, len(positions))
	for i, p := range positions {
		quotes := make([]models.Quote, len(p.Quotes))
		for j, q := range p.Quotes {
			q.Ordinal = j + 1
			quotes[j] = q
		}
		p.Ordinal = i + 1
		p.Quotes = quotes
		out[i] = p
	}
	return out
}

// isSummaryHeading matches "Samenvatting" and headings that start with it,
// such as "Samenvatting van de VVD".
func isSummaryHeading(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	for _, word := range []string{"samenvatting", "summary"} {
		rest, ok := strings.CutPrefix(t, word)
		if ok && (rest == "" || rest[0] == ' ' || rest[0] == ':') {
			return true
		}
	}
	return false
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(strings.Trim(s, "*_ "))
	s = numberingRe.ReplaceAllString(s, "")
	return strings.TrimSpace(strings.Trim(s, "*_ "))
}

// joinParagraphs keeps paragraph breaks and joins wrapped lines.
func joinParagraphs(lines []string) string {
	var (
		paras   []string
		current []string
	)
	for _, l := range lines {
		if l == "" {
			if len(current) > 0 {
				paras = append(paras, strings.Join(current, " "))
				current = nil
			}
			continue
		}
		current = append(current, l)
	}
	if len(current) > 0 {
		paras = append(paras, strings.Join(current, " "))
	}
	return strings.Join(paras, "\n\n")
}

func stripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return text
	}
	t = strings.TrimPrefix(t, "```")
	if i := strings.Index(t, "\n"); i >= 0 {
		t = t[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(t), "```")
}
