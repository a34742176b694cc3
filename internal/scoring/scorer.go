package scoring

import (
	"math"
	"reviewlens/internal/model"
)

const (
	AnchorPoints  = 1.0
	ContextPoints = 0.3

	DefaultRating = 3

	ScoringFormula          = "base_score × factor_weight × rating_multiplier"
	RatingMultiplierFormula = "1.0 + max(0, 5 - rating) × 0.2"
)

// Match is the result of scoring one normalized text against one factor
type Match struct {
	Score       float64
	Reasons     []string
	Anchor      bool
	Context     bool
	HasNegation bool
}

// Weighted returns the raw score scaled by the factor weight
func (m Match) Weighted(f *model.Factor) float64 {
	return m.Score * f.EffectiveWeight()
}

// Score scores normalized text against a factor. Anchor and context hits
// add up; a negation hit is reported but never lowers the score.
func Score(normText string, f *model.Factor) Match {
	var m Match
	if ContainsAny(normText, f.AnchorTerms) {
		m.Anchor = true
		m.Score += AnchorPoints
		m.Reasons = append(m.Reasons, "anchor")
	}
	if ContainsAny(normText, f.ContextTerms) {
		m.Context = true
		m.Score += ContextPoints
		m.Reasons = append(m.Reasons, "context")
	}
	if ContainsAny(normText, f.NegationTerms) {
		m.HasNegation = true
		m.Reasons = append(m.Reasons, "negation")
	}
	return m
}

// ScoreText normalizes raw text before scoring it
func ScoreText(text string, f *model.Factor) Match {
	return Score(Normalize(text), f)
}

// ClampRating returns the rating in 1..5; nil becomes DefaultRating
func ClampRating(rating *int) int {
	if rating == nil {
		return DefaultRating
	}
	r := *rating
	if r < 1 {
		return 1
	}
	if r > 5 {
		return 5
	}
	return r
}

// RatingMultiplier boosts low-rated reviews: 1 star gives 1.8, 5 stars 1.0
func RatingMultiplier(rating *int) float64 {
	r := ClampRating(rating)
	return 1.0 + math.Max(0, float64(5-r))*0.2
}
