package scoring

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	unitReplacer = strings.NewReplacer("℃", "도", "ℓ", "l", "㎖", "ml", "㏈", "db", "dＢ", "db")

	// letters (Hangul syllables and jamo included), digits, whitespace and a
	// small punctuation set survive
	disallowedRe = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?\-()\[\]:;'"%&@/\\]+`)
	repeatRe     = regexp.MustCompile(`(ㅋ|ㅎ|!|\?){3,}`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// Normalize lower-cases text, folds unit symbols, drops stray symbols,
// shortens laughter and punctuation runs and collapses whitespace.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	s := strings.ToLower(text)
	s = unitReplacer.Replace(s)
	s = disallowedRe.ReplaceAllString(s, " ")
	s = repeatRe.ReplaceAllStringFunc(s, func(run string) string {
		r, _ := utf8.DecodeLastRuneInString(run)
		return string([]rune{r, r})
	})
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SplitTerms splits a delimited term list on "|", "," or ";" and normalizes
// each term. Empty and duplicate terms are dropped.
func SplitTerms(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '|' || r == ',' || r == ';'
	})
	return NormalizeTerms(fields)
}

// NormalizeTerms normalizes a term list, keeping order and dropping
// empty or repeated entries.
func NormalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		n := Normalize(t)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
