// Package processor extracts program text from PDF files and cuts it into
// page-tagged chunks for embedding.
package processor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var (
	spaceRunRe   = regexp.MustCompile(`[ \t\f\r\v\x{00a0}]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	hyphenWrapRe = regexp.MustCompile(`(\p{L})-\n(\p{Ll})`)
)

// Page is the plain text of one PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Chunk is a piece of a page ready for embedding.
type Chunk struct {
	PageNumber int
	Content    string
}

// PDFProcessor handles PDF processing
type PDFProcessor struct {
	splitter *Splitter
}

// NewPDFProcessor creates a new PDF processor
func NewPDFProcessor(chunkSize, chunkOverlap int) *PDFProcessor {
	return &PDFProcessor{splitter: NewSplitter(chunkSize, chunkOverlap)}
}

// ExtractPages reads the text of every page. Pages without text are
// returned with empty Text so numbering stays aligned with the document.
func (p *PDFProcessor) ExtractPages(ctx context.Context, filePath string) (pages []Page, err error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	// The reader panics on some malformed content streams.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("failed to read %s: %v", filePath, rec)
		}
	}()

	total := r.NumPage()
	pages = make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text of page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

// ProcessPDF extracts and chunks a PDF file.
func (p *PDFProcessor) ProcessPDF(ctx context.Context, filePath string) ([]Chunk, error) {
	pages, err := p.ExtractPages(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	return p.ChunkPages(pages), nil
}

// ChunkPages splits each page on its own so every chunk carries exactly
// one page number.
func (p *PDFProcessor) ChunkPages(pages []Page) []Chunk {
	var chunks []Chunk
	for _, page := range pages {
		text := normalizeText(page.Text)
		if text == "" {
			continue
		}
		for _, content := range p.splitter.Split(text) {
			chunks = append(chunks, Chunk{PageNumber: page.Number, Content: content})
		}
	}
	return chunks
}

// normalizeText collapses horizontal whitespace, keeps paragraph breaks
// and rejoins words hyphenated across line ends.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spaceRunRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	text = hyphenWrapRe.ReplaceAllString(text, "$1$2")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
