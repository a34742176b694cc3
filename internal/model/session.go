package model

import "time"

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionFinalized SessionStatus = "finalized"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type DialogueTurn struct {
	Role    Role   `json:"role" bson:"role"`
	Message string `json:"message" bson:"message"`
}

// SessionState is the serializable state of one dialogue session.
// Scores and top-k are keyed by factor key.
type SessionState struct {
	Status           SessionStatus      `json:"status" bson:"status"`
	TurnCount        int                `json:"turnCount" bson:"turnCount"`
	CumulativeScores map[string]float64 `json:"cumulativeScores" bson:"cumulativeScores"`
	PrevTopK         []string           `json:"prevTopK" bson:"prevTopK"`
	StabilityHits    int                `json:"stabilityHits" bson:"stabilityHits"`
	LastJaccard      float64            `json:"lastJaccard" bson:"lastJaccard"`
	AskedQuestions   []string           `json:"askedQuestions" bson:"askedQuestions"`
	History          []DialogueTurn     `json:"history" bson:"history"`
}

// SessionRecord is what gets cached and persisted for a session
type SessionRecord struct {
	ID          string       `json:"id" bson:"_id"`
	Category    string       `json:"category" bson:"category"`
	ProductID   string       `json:"productId,omitempty" bson:"productId,omitempty"`
	ProductName string       `json:"productName,omitempty" bson:"productName,omitempty"`
	State       SessionState `json:"state" bson:"state"`
	CreatedAt   time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt" bson:"updatedAt"`
}
