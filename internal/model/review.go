package model

// Review is one collected product review
type Review struct {
	ID        string `json:"reviewId" bson:"reviewId"`
	Category  string `json:"category,omitempty" bson:"category"`
	ProductID string `json:"productId,omitempty" bson:"productId,omitempty"`
	Rating    *int   `json:"rating" bson:"rating"`
	Text      string `json:"text" bson:"text"`
	CreatedAt string `json:"createdAt,omitempty" bson:"createdAt,omitempty"`
}

// Label is the heuristic sentiment label of an evidence excerpt
type Label string

const (
	LabelPositive Label = "POS"
	LabelNegative Label = "NEG"
	LabelMixed    Label = "MIX"
	LabelNeutral  Label = "NEU"
)

// Evidence is a review excerpt supporting a ranked factor
type Evidence struct {
	ReviewID  string   `json:"reviewId" bson:"reviewId"`
	Rating    int      `json:"rating" bson:"rating"`
	Excerpt   string   `json:"excerpt" bson:"excerpt"`
	Reasons   []string `json:"reasons" bson:"reasons"`
	FactorKey string   `json:"factorKey" bson:"factorKey"`
	Score     float64  `json:"score" bson:"score"`
	Label     Label    `json:"label" bson:"label"`
}

// RelatedReview is a review matched to a factor with the sentences that matched
type RelatedReview struct {
	ReviewID     string   `json:"reviewId"`
	Rating       int      `json:"rating"`
	Score        float64  `json:"score"`
	Sentences    []string `json:"sentences"`
	MatchedTerms []string `json:"matchedTerms"`
}

// RelatedReviews lists the corpus reviews that mention a factor
type RelatedReviews struct {
	FactorKey   string          `json:"factorKey"`
	DisplayName string          `json:"displayName"`
	Count       int             `json:"count"`
	Reviews     []RelatedReview `json:"reviews"`
}
