package scoring

import (
	"reviewlens/internal/model"
	"sort"
)

// Corpus is a review corpus scored against every factor of a category.
// Scores live in a dense row-major matrix: one row per review, one column
// per factor, in taxonomy order. A Corpus is read-only once built.
type Corpus struct {
	Reviews []model.Review
	Norm    []string
	Factors []model.Factor

	// FactorCounts is the number of reviews with a positive score per factor key
	FactorCounts map[string]int

	scores   []float64
	negation []bool
	columns  map[string]int
}

// ScoreCorpus normalizes every review once and scores it against every factor
func ScoreCorpus(reviews []model.Review, factors []model.Factor) *Corpus {
	nf := len(factors)
	c := &Corpus{
		Reviews:      reviews,
		Norm:         make([]string, len(reviews)),
		Factors:      factors,
		FactorCounts: make(map[string]int, nf),
		scores:       make([]float64, len(reviews)*nf),
		negation:     make([]bool, len(reviews)*nf),
		columns:      make(map[string]int, nf),
	}
	for j := range factors {
		c.columns[factors[j].Key] = j
		c.FactorCounts[factors[j].Key] = 0
	}

	for i := range reviews {
		norm := Normalize(reviews[i].Text)
		c.Norm[i] = norm
		mult := RatingMultiplier(reviews[i].Rating)
		for j := range factors {
			m := Score(norm, &factors[j])
			s := m.Weighted(&factors[j]) * mult
			c.scores[i*nf+j] = s
			c.negation[i*nf+j] = m.HasNegation
			if s > 0 {
				c.FactorCounts[factors[j].Key]++
			}
		}
	}
	return c
}

// Len returns the number of reviews
func (c *Corpus) Len() int {
	return len(c.Reviews)
}

// Column returns the matrix column of a factor key
func (c *Corpus) Column(factorKey string) (int, bool) {
	j, ok := c.columns[factorKey]
	return j, ok
}

// At returns the score of review i for factor column j
func (c *Corpus) At(i, j int) float64 {
	return c.scores[i*len(c.Factors)+j]
}

// HasNegation reports whether review i hit a negation term of factor column j
func (c *Corpus) HasNegation(i, j int) bool {
	return c.negation[i*len(c.Factors)+j]
}

// TopReviews returns up to n review indices with a positive score in
// column j, highest first. Ties keep corpus order.
func (c *Corpus) TopReviews(j, n int) []int {
	if n <= 0 || j < 0 || j >= len(c.Factors) {
		return nil
	}
	idx := make([]int, 0, len(c.Reviews))
	for i := range c.Reviews {
		if c.At(i, j) > 0 {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return c.At(idx[a], j) > c.At(idx[b], j)
	})
	if len(idx) > n {
		idx = idx[:n]
	}
	return idx
}

// TopFactors ranks the factors of review i, keeping at most k with a
// positive score.
func (c *Corpus) TopFactors(i, k int) []model.FactorScore {
	out := make([]model.FactorScore, 0, len(c.Factors))
	for j := range c.Factors {
		if s := c.At(i, j); s > 0 {
			out = append(out, model.FactorScore{FactorKey: c.Factors[j].Key, Score: s})
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}
