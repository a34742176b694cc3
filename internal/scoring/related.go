package scoring

import (
	"regexp"
	"reviewlens/internal/model"
	"strings"
	"unicode/utf8"
)

const relatedMaxLen = 200

var relatedSplitRe = regexp.MustCompile(`[.!?\n]+`)

// RelatedReviews collects the reviews that mention a factor, highest
// scored first, with the matching sentences and their neighbours.
// A sentence matches when it holds an anchor term and, if the factor has
// context terms, a context term too.
func RelatedReviews(c *Corpus, factorKey string, limit int) (*model.RelatedReviews, bool) {
	j, ok := c.Column(factorKey)
	if !ok {
		return nil, false
	}
	f := &c.Factors[j]
	out := &model.RelatedReviews{
		FactorKey:   f.Key,
		DisplayName: f.Label(),
		Reviews:     []model.RelatedReview{},
	}

	for _, i := range c.TopReviews(j, c.Len()) {
		sentences, terms := matchSentences(c.Reviews[i].Text, f)
		if len(sentences) == 0 {
			continue
		}
		out.Count++
		if limit > 0 && len(out.Reviews) >= limit {
			continue
		}
		out.Reviews = append(out.Reviews, model.RelatedReview{
			ReviewID:     c.Reviews[i].ID,
			Rating:       ClampRating(c.Reviews[i].Rating),
			Score:        c.At(i, j),
			Sentences:    sentences,
			MatchedTerms: terms,
		})
	}
	return out, true
}

func matchSentences(text string, f *model.Factor) ([]string, []string) {
	var sentences []string
	for _, s := range relatedSplitRe.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}

	var hits []int
	termSet := map[string]struct{}{}
	var terms []string
	for idx, s := range sentences {
		norm := Normalize(s)
		anchors := MatchedTerms(norm, f.AnchorTerms)
		if len(anchors) == 0 {
			continue
		}
		if len(f.ContextTerms) > 0 && !ContainsAny(norm, f.ContextTerms) {
			continue
		}
		hits = append(hits, idx)
		for _, t := range anchors {
			if _, dup := termSet[t]; !dup {
				termSet[t] = struct{}{}
				terms = append(terms, t)
			}
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	// each hit pulls in its previous and next sentence while the budget lasts
	taken := map[int]bool{}
	budget := relatedMaxLen
	for _, h := range hits {
		for _, idx := range []int{h, h - 1, h + 1} {
			if idx < 0 || idx >= len(sentences) || taken[idx] {
				continue
			}
			n := utf8.RuneCountInString(sentences[idx])
			if idx != h && n > budget {
				continue
			}
			taken[idx] = true
			budget -= n
		}
		if budget <= 0 {
			break
		}
	}

	out := make([]string, 0, len(taken))
	for idx := range sentences {
		if taken[idx] {
			out = append(out, sentences[idx])
		}
	}
	return out, terms
}
