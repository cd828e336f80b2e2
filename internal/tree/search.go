package tree

import (
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

var english = stopwords.MustGet("en")

// SearchTerms splits a free-text query into search terms. Punctuation is
// trimmed from both ends of each word, words shorter than three characters
// and English stopwords are dropped, and duplicates are removed.
func SearchTerms(query string) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(query) {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		})
		if len([]rune(trimmed)) < 3 {
			continue
		}
		lower := strings.ToLower(trimmed)
		if english.Contains(lower) || seen[lower] {
			continue
		}
		seen[lower] = true
		terms = append(terms, trimmed)
	}
	return terms
}
