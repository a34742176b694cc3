package scoring

import "strings"

// Matching is plain substring containment on normalized text. There are no
// word boundaries, so "loud" also hits "cloud".

// ContainsAny reports whether text contains any non-empty term
func ContainsAny(text string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// FirstIndex returns the smallest byte offset at which any term occurs, or -1
func FirstIndex(text string, terms []string) int {
	first := -1
	for _, t := range terms {
		if t == "" {
			continue
		}
		if i := strings.Index(text, t); i >= 0 && (first < 0 || i < first) {
			first = i
		}
	}
	return first
}

// MatchedTerms returns the terms found in text, in term order
func MatchedTerms(text string, terms []string) []string {
	var out []string
	for _, t := range terms {
		if t != "" && strings.Contains(text, t) {
			out = append(out, t)
		}
	}
	return out
}
