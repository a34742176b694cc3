package model

import "strings"

// AnswerType defines how a question expects to be answered
type AnswerType string

const (
	AnswerNoChoice       AnswerType = "no_choice"
	AnswerSingleChoice   AnswerType = "single_choice"
	AnswerMultipleChoice AnswerType = "multiple_choice"
)

// Question is a taxonomy question bound to one factor
type Question struct {
	ID             int        `json:"questionId" bson:"questionId" yaml:"question_id"`
	FactorID       int        `json:"factorId" bson:"factorId" yaml:"factor_id"`
	FactorKey      string     `json:"factorKey" bson:"factorKey" yaml:"factor_key"`
	Category       string     `json:"category,omitempty" bson:"category" yaml:"category"`
	Text           string     `json:"questionText" bson:"questionText" yaml:"question_text"`
	AnswerType     AnswerType `json:"answerType" bson:"answerType" yaml:"answer_type"`
	Choices        []string   `json:"choices,omitempty" bson:"choices,omitempty" yaml:"choices"`
	NextFactorHint string     `json:"nextFactorHint,omitempty" bson:"nextFactorHint,omitempty" yaml:"next_factor_hint"`
}

// ParseAnswerType maps a raw value to an AnswerType, defaulting to no_choice
func ParseAnswerType(raw string) AnswerType {
	switch AnswerType(strings.TrimSpace(strings.ToLower(raw))) {
	case AnswerSingleChoice:
		return AnswerSingleChoice
	case AnswerMultipleChoice:
		return AnswerMultipleChoice
	default:
		return AnswerNoChoice
	}
}

// ParseChoices splits a "|"-delimited choice string. Questions without
// choices never carry any.
func ParseChoices(answerType AnswerType, raw string) []string {
	if answerType == AnswerNoChoice || strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, c := range strings.Split(raw, "|") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
