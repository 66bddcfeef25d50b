package matching

import (
	"strings"
	"unicode"
)

// Normalize lower-cases a name, replaces punctuation with spaces, and
// collapses runs of whitespace, returning the canonical comparison form.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}

	return strings.TrimSpace(b.String())
}

// Tokenize returns the normalized token set of a name, preserving first
// occurrence order.
func Tokenize(name string) []string {
	normalized := Normalize(name)
	if normalized == "" {
		return nil
	}

	seen := make(map[string]bool)
	var tokens []string
	for _, tok := range strings.Fields(normalized) {
		if !seen[tok] {
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// tokenOverlap computes the ratio of query tokens present in the candidate
// token set.
func tokenOverlap(query, candidate []string) float64 {
	if len(query) == 0 {
		return 0
	}

	set := make(map[string]bool, len(candidate))
	for _, tok := range candidate {
		set[tok] = true
	}

	shared := 0
	for _, tok := range query {
		if set[tok] {
			shared++
		}
	}
	return float64(shared) / float64(len(query))
}
