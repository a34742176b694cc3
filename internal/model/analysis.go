package model

import "time"

type SummarySource string

const (
	SummaryFromLLM      SummarySource = "llm"
	SummaryFromFallback SummarySource = "fallback"
)

// Convergence reports the stability tracking at analysis time
type Convergence struct {
	Method        string   `json:"method" bson:"method"`
	StabilityHits int      `json:"stabilityHits" bson:"stabilityHits"`
	PrevTopK      []string `json:"prevTopK" bson:"prevTopK"`
	Jaccard       float64  `json:"jaccard" bson:"jaccard"`
}

// CalculationInfo explains how the analysis numbers were produced
type CalculationInfo struct {
	TurnCount               int                `json:"turnCount" bson:"turnCount"`
	Convergence             Convergence        `json:"convergence" bson:"convergence"`
	ScoringFormula          string             `json:"scoringFormula" bson:"scoringFormula"`
	RatingMultiplierFormula string             `json:"ratingMultiplierFormula" bson:"ratingMultiplierFormula"`
	CumulativeScores        map[string]float64 `json:"cumulativeScores" bson:"cumulativeScores"`
	FactorDefinitions       []FactorDefinition `json:"factorDefinitions" bson:"factorDefinitions"`
}

// Analysis is the evidence-backed result of a dialogue
type Analysis struct {
	Category        string          `json:"category" bson:"category"`
	TopFactors      []TopFactor     `json:"topFactors" bson:"topFactors"`
	Evidence        []Evidence      `json:"evidence" bson:"evidence"`
	CalculationInfo CalculationInfo `json:"calculationInfo" bson:"calculationInfo"`
	Summary         string          `json:"llmSummary" bson:"llmSummary"`
	SummarySource   SummarySource   `json:"summarySource" bson:"summarySource"`
	SafetyRules     []string        `json:"safetyRules" bson:"safetyRules"`
	History         []DialogueTurn  `json:"dialogueHistory" bson:"dialogueHistory"`
}

// BotTurn is the reply to a single dialogue call
type BotTurn struct {
	QuestionText  *string       `json:"questionText"`
	QuestionID    *int          `json:"questionId"`
	AnswerType    AnswerType    `json:"answerType,omitempty"`
	Choices       []string      `json:"choices,omitempty"`
	TopFactors    []FactorScore `json:"topFactors"`
	IsFinal       bool          `json:"isFinal"`
	AnalysisReady bool          `json:"analysisReady"`
	TurnCount     int           `json:"turnCount"`
	StabilityHits int           `json:"stabilityHits"`
	Analysis      *Analysis     `json:"analysis"`
}

// Report is a finalized analysis stored for later retrieval
type Report struct {
	SessionID   string    `json:"sessionId" bson:"sessionId"`
	Category    string    `json:"category" bson:"category"`
	ProductID   string    `json:"productId,omitempty" bson:"productId,omitempty"`
	ProductName string    `json:"productName,omitempty" bson:"productName,omitempty"`
	Analysis    Analysis  `json:"analysis" bson:"analysis"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}
