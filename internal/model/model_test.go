package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFactor_EffectiveWeight(t *testing.T) {
	tests := []struct {
		weight float64
		want   float64
	}{
		{1.5, 1.5},
		{0, 1.0},
		{-2, 1.0},
		{math.NaN(), 1.0},
		{math.Inf(1), 1.0},
	}
	for _, tt := range tests {
		f := Factor{Weight: tt.weight}
		assert.Equal(t, tt.want, f.EffectiveWeight(), "weight %v", tt.weight)
	}
}

func TestFactor_Label(t *testing.T) {
	assert.Equal(t, "Noise", (&Factor{Key: "noise", DisplayName: "Noise"}).Label())
	assert.Equal(t, "noise", (&Factor{Key: "noise"}).Label())
}

func TestParseAnswerType(t *testing.T) {
	assert.Equal(t, AnswerSingleChoice, ParseAnswerType(" Single_Choice "))
	assert.Equal(t, AnswerMultipleChoice, ParseAnswerType("multiple_choice"))
	assert.Equal(t, AnswerNoChoice, ParseAnswerType(""))
	assert.Equal(t, AnswerNoChoice, ParseAnswerType("free_text"))
}

func TestParseChoices(t *testing.T) {
	assert.Equal(t, []string{"daily", "weekly"}, ParseChoices(AnswerSingleChoice, " daily | | weekly "))
	assert.Nil(t, ParseChoices(AnswerNoChoice, "daily|weekly"))
	assert.Nil(t, ParseChoices(AnswerMultipleChoice, "  "))
}

func TestCategoryLabel(t *testing.T) {
	assert.Equal(t, "heated humidifier", CategoryLabel("appliance_heated_humidifier"))
	assert.Equal(t, "something_new", CategoryLabel("something_new"))
}
