package dialogue

import (
	"context"
	"errors"
	"math"
	"reviewlens/internal/model"
	"reviewlens/internal/observability"
	"reviewlens/internal/scoring"
	"strings"
	"time"
)

const convergenceMethod = "top3_jaccard"

// analysisLocked samples evidence for the ranked factors and asks the
// summarizer for prose. It never fails: summarizer errors fall back to the
// template summary.
func (s *Session) analysisLocked(ctx context.Context, top []rankedFactor) *model.Analysis {
	corpus := s.scoredCorpus()

	byKey := make(map[string]*model.Factor, len(s.factors))
	for i := range s.factors {
		byKey[s.factors[i].Key] = &s.factors[i]
	}
	ranked := s.factorScores(top)
	ev := s.sampler.Sample(corpus, byKey, ranked)
	s.metrics.EvidenceCount(ctx, s.category, len(ev))

	topFactors := make([]model.TopFactor, len(top))
	for i, r := range top {
		f := &s.factors[r.idx]
		topFactors[i] = model.TopFactor{
			FactorID:    f.ID,
			FactorKey:   f.Key,
			DisplayName: f.Label(),
			Score:       r.score,
		}
	}

	history := append([]model.DialogueTurn(nil), s.history...)
	summary, source := s.summarize(ctx, SummaryRequest{
		Category:      s.category,
		CategoryLabel: model.CategoryLabel(s.category),
		ProductLabel:  s.productLabel(),
		TopFactors:    topFactors,
		Evidence:      ev,
		TurnCount:     s.turnCount,
		History:       history,
		SafetyRules:   SafetyRules,
	})

	return &model.Analysis{
		Category:        s.category,
		TopFactors:      topFactors,
		Evidence:        ev,
		CalculationInfo: s.calculationInfo(),
		Summary:         summary,
		SummarySource:   source,
		SafetyRules:     append([]string(nil), SafetyRules...),
		History:         history,
	}
}

func (s *Session) summarize(ctx context.Context, req SummaryRequest) (string, model.SummarySource) {
	fallback := func() (string, model.SummarySource) {
		return FallbackSummaryFor(s.policy.Locale, req.TopFactors), model.SummaryFromFallback
	}
	if s.summarizer == nil {
		return fallback()
	}
	if s.policy.SummaryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.policy.SummaryTimeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.summarizer.Summarize(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		status := observability.LLMError
		if errors.Is(err, context.DeadlineExceeded) {
			status = observability.LLMTimeout
		}
		s.metrics.LLMCall(ctx, status, elapsed)
		s.metrics.LLMCall(ctx, observability.LLMFallback, 0)
		s.log.Warn("summary failed, using fallback", "error", err)
		return fallback()
	}
	if strings.TrimSpace(text) == "" {
		s.metrics.LLMCall(ctx, observability.LLMError, elapsed)
		s.metrics.LLMCall(ctx, observability.LLMFallback, 0)
		s.log.Warn("summary was empty, using fallback")
		return fallback()
	}
	s.metrics.LLMCall(ctx, observability.LLMSuccess, elapsed)
	return text, model.SummaryFromLLM
}

func (s *Session) calculationInfo() model.CalculationInfo {
	scores := make(map[string]float64, len(s.cumulative))
	for id, v := range s.cumulative {
		if i, ok := s.byID[id]; ok {
			scores[s.factors[i].Key] = math.Round(v*100) / 100
		}
	}

	defs := make([]model.FactorDefinition, len(s.factors))
	for i := range s.factors {
		f := &s.factors[i]
		defs[i] = model.FactorDefinition{
			FactorKey:     f.Key,
			DisplayName:   f.Label(),
			Weight:        f.EffectiveWeight(),
			AnchorTerms:   f.AnchorTerms,
			ContextTerms:  f.ContextTerms,
			NegationTerms: f.NegationTerms,
		}
	}

	return model.CalculationInfo{
		TurnCount: s.turnCount,
		Convergence: model.Convergence{
			Method:        convergenceMethod,
			StabilityHits: s.stabilityHits,
			PrevTopK:      s.idKeys(s.prevTopK),
			Jaccard:       s.lastJaccard,
		},
		ScoringFormula:          scoring.ScoringFormula,
		RatingMultiplierFormula: scoring.RatingMultiplierFormula,
		CumulativeScores:        scores,
		FactorDefinitions:       defs,
	}
}

func (s *Session) productLabel() string {
	if s.productName != "" {
		return s.productName
	}
	return "this product"
}
