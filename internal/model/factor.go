package model

import "math"

// Factor is one regret factor of a category taxonomy
type Factor struct {
	ID            int      `json:"factorId" bson:"factorId" yaml:"factor_id"`
	Key           string   `json:"factorKey" bson:"factorKey" yaml:"factor_key"`
	Category      string   `json:"category" bson:"category" yaml:"category"`
	DisplayName   string   `json:"displayName,omitempty" bson:"displayName,omitempty" yaml:"display_name"`
	AnchorTerms   []string `json:"anchorTerms" bson:"anchorTerms" yaml:"anchor_terms"`
	ContextTerms  []string `json:"contextTerms" bson:"contextTerms" yaml:"context_terms"`
	NegationTerms []string `json:"negationTerms" bson:"negationTerms" yaml:"negation_terms"`
	Weight        float64  `json:"weight" bson:"weight" yaml:"weight"`
}

// EffectiveWeight returns the weight, or 1.0 when it is missing or malformed
func (f *Factor) EffectiveWeight() float64 {
	if f.Weight <= 0 || math.IsNaN(f.Weight) || math.IsInf(f.Weight, 0) {
		return 1.0
	}
	return f.Weight
}

// Label returns the display name, falling back to the key
func (f *Factor) Label() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.Key
}

// FactorScore pairs a factor key with a score
type FactorScore struct {
	FactorKey string  `json:"factorKey" bson:"factorKey"`
	Score     float64 `json:"score" bson:"score"`
}

// TopFactor is a ranked factor with its display name
type TopFactor struct {
	FactorID    int     `json:"factorId" bson:"factorId"`
	FactorKey   string  `json:"factorKey" bson:"factorKey"`
	DisplayName string  `json:"displayName" bson:"displayName"`
	Score       float64 `json:"score" bson:"score"`
}

// FactorDefinition is the taxonomy row as reported in an analysis
type FactorDefinition struct {
	FactorKey     string   `json:"factorKey" bson:"factorKey"`
	DisplayName   string   `json:"displayName" bson:"displayName"`
	Weight        float64  `json:"weight" bson:"weight"`
	AnchorTerms   []string `json:"anchorTerms" bson:"anchorTerms"`
	ContextTerms  []string `json:"contextTerms" bson:"contextTerms"`
	NegationTerms []string `json:"negationTerms" bson:"negationTerms"`
}
