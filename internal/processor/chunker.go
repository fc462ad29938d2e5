package processor

import (
	"strings"
	"unicode/utf8"
)

// defaultSeparators are tried in order: paragraphs, lines, words and
// finally single characters.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text into chunks of at most Size runes, preferring the
// coarsest separator that still fits. Consecutive chunks share up to
// Overlap runes of context.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

// NewSplitter creates a Splitter. Overlap is clamped below size.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	return &Splitter{Size: size, Overlap: overlap, Separators: defaultSeparators}
}

// Split returns the chunks of text. Chunks are trimmed; empty chunks are
// dropped.
func (s *Splitter) Split(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = defaultSeparators
	}
	return s.split(text, seps)
}

func (s *Splitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var rest []string
	for i, candidate := range seps {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var out, fits []string
	for _, piece := range splitOn(text, sep) {
		if runeLen(piece) < s.Size {
			fits = append(fits, piece)
			continue
		}
		if len(fits) > 0 {
			out = append(out, s.merge(fits, sep)...)
			fits = nil
		}
		if len(rest) == 0 {
			out = appendTrimmed(out, piece)
		} else {
			out = append(out, s.split(piece, rest)...)
		}
	}
	if len(fits) > 0 {
		out = append(out, s.merge(fits, sep)...)
	}
	return out
}

// merge packs small pieces into chunks, carrying a tail of the previous
// chunk forward as overlap.
func (s *Splitter) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	var (
		out     []string
		current []string
		total   int
	)
	joinedLen := func(extra int) int {
		if len(current) > 0 {
			return total + extra + sepLen
		}
		return total + extra
	}

	for _, p := range pieces {
		n := runeLen(p)
		if joinedLen(n) > s.Size && len(current) > 0 {
			out = appendTrimmed(out, strings.Join(current, sep))
			for len(current) > 0 && (total > s.Overlap || joinedLen(n) > s.Size) {
				total -= runeLen(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		total = joinedLen(n)
		current = append(current, p)
	}
	if len(current) > 0 {
		out = appendTrimmed(out, strings.Join(current, sep))
	}
	return out
}

func splitOn(text, sep string) []string {
	if sep == "" {
		rs := []rune(text)
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = string(r)
		}
		return out
	}
	return strings.Split(text, sep)
}

func appendTrimmed(out []string, chunk string) []string {
	if chunk = strings.TrimSpace(chunk); chunk != "" {
		out = append(out, chunk)
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
