package evidence

import (
	"reviewlens/internal/model"
	"reviewlens/internal/scoring"
	"strings"
	"unicode"
)

// DefaultExcerptMaxLen caps excerpts, counted in characters
const DefaultExcerptMaxLen = 160

// Excerpt joins the sentences of text that mention the factor and clips the
// result. Without such a sentence it falls back to the first sentence, then
// to a prefix of the text.
func Excerpt(text string, f *model.Factor, maxLen int) string {
	if text == "" {
		return ""
	}
	if maxLen <= 0 {
		maxLen = DefaultExcerptMaxLen
	}

	sentences := splitSentences(text)
	var selected []string
	for _, s := range sentences {
		norm := scoring.Normalize(s)
		if scoring.ContainsAny(norm, f.AnchorTerms) || scoring.ContainsAny(norm, f.ContextTerms) {
			selected = append(selected, s)
		}
	}
	if len(selected) > 0 {
		return clip(strings.Join(selected, " "), maxLen)
	}
	if len(sentences) > 0 {
		return clip(sentences[0], maxLen)
	}
	return clip(text, maxLen)
}

// splitSentences breaks after sentence punctuation followed by whitespace
// and at newlines. Returned sentences are trimmed and non-empty.
func splitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			flush()
			continue
		}
		cur.WriteRune(r)
		if isTerminator(r) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			flush()
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
			}
		}
	}
	flush()
	return out
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func clip(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
