package dialogue

import (
	"context"
	"fmt"
	"reviewlens/internal/model"
	"strings"
)

// SummaryRequest is everything a summarizer may use to write prose
type SummaryRequest struct {
	Category      string
	CategoryLabel string
	ProductLabel  string
	TopFactors    []model.TopFactor
	Evidence      []model.Evidence
	TurnCount     int
	History       []model.DialogueTurn
	SafetyRules   []string
}

// Summarizer turns an evidence set into a recommendation. It may fail; the
// session then uses FallbackSummary.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}

// SummarizerFunc adapts a function to Summarizer
type SummarizerFunc func(ctx context.Context, req SummaryRequest) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, req SummaryRequest) (string, error) {
	return f(ctx, req)
}

// FallbackSummary builds the deterministic English summary from the top
// factor keys
func FallbackSummary(top []model.TopFactor) string {
	return FallbackSummaryFor(LocaleEnglish, top)
}

// FallbackSummaryFor is FallbackSummary in a locale
func FallbackSummaryFor(l Locale, top []model.TopFactor) string {
	b := bookFor(l)
	keys := make([]string, 0, 3)
	for _, f := range top {
		if len(keys) == 3 {
			break
		}
		keys = append(keys, f.FactorKey)
	}
	if len(keys) == 0 {
		return b.emptySummary
	}
	return fmt.Sprintf(b.summary, strings.Join(keys, ", "))
}

// SafetyRules constrain any generated summary
var SafetyRules = []string{
	"Do not claim that any review is fake",
	"Quote evidence reviews briefly",
	"Give no medical or legal advice",
}
