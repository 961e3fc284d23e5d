package search

import "strings"

// Stop words ignored when checking for verbatim matches
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "how": true, "what": true, "which": true,
}

// significantWords lowercases text, trims punctuation, and drops stop words.
func significantWords(text string) []string {
	fields := strings.Fields(text)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(strings.Trim(f, ".,!?;:'\"-()[]{}`"))
		if w != "" && !stopWords[w] {
			words = append(words, w)
		}
	}
	return words
}

// containsAllQueryWords reports whether every significant query word occurs
// in content. A query without significant words never matches.
func containsAllQueryWords(content, query string) bool {
	queryWords := significantWords(query)
	if len(queryWords) == 0 {
		return false
	}
	present := make(map[string]struct{})
	for _, w := range significantWords(content) {
		present[w] = struct{}{}
	}
	for _, w := range queryWords {
		if _, ok := present[w]; !ok {
			return false
		}
	}
	return true
}
