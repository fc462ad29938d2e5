// Package slug maps free-text queries to URL-safe path segments.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	separatorRe  = regexp.MustCompile(`[\s_]+`)
	disallowedRe = regexp.MustCompile(`[^a-z0-9-]`)
	hyphenRunRe  = regexp.MustCompile(`-+`)
)

// Slugify converts a query to a lowercase, diacritic-free, hyphen separated
// slug. "Israël" becomes "israel", "normen en waarden" becomes
// "normen-en-waarden". Slugify is idempotent.
func Slugify(query string) string {
	s := strings.TrimSpace(strings.ToLower(query))
	s = stripMarks(s)
	s = separatorRe.ReplaceAllString(s, "-")
	s = disallowedRe.ReplaceAllString(s, "")
	s = hyphenRunRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Deslugify is a lossy inverse of Slugify: every word is capitalised and
// hyphens become spaces. It is only a fallback for when the original query
// can not be recovered from the cache.
func Deslugify(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
