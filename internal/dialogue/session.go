package dialogue

import (
	"context"
	"errors"
	"reviewlens/internal/evidence"
	"reviewlens/internal/logger"
	"reviewlens/internal/model"
	"reviewlens/internal/observability"
	"reviewlens/internal/scoring"
	"sort"
	"sync"
	"time"
)

var ErrSessionFinalized = errors.New("session is already finalized")

// Config describes a session: its taxonomy, corpus and collaborators
type Config struct {
	ID          string
	Category    string
	ProductName string
	Factors     []model.Factor
	Questions   []model.Question
	Reviews     []model.Review
	Policy      Policy
	Evidence    evidence.Options
	Summarizer  Summarizer
	Logger      *logger.Logger
	Metrics     *observability.Metrics

	// FallbackQuestions overrides the built-in list for the category
	FallbackQuestions []string
}

// Session is one buyer dialogue. All methods are safe for concurrent use;
// calls are applied one at a time in arrival order.
type Session struct {
	mu sync.Mutex

	id          string
	category    string
	productName string
	factors     []model.Factor
	byKey       map[string]int
	byID        map[int]int
	questions   []model.Question
	reviews     []model.Review
	fallback    []string
	policy      Policy
	sampler     *evidence.Sampler
	summarizer  Summarizer
	log         *logger.Logger
	metrics     *observability.Metrics

	status        model.SessionStatus
	turnCount     int
	cumulative    map[int]float64
	prevTopK      []int
	stabilityHits int
	lastJaccard   float64
	asked         map[string]struct{}
	askedOrder    []string
	history       []model.DialogueTurn

	// corpus is scored on first use and never changes afterwards
	corpus *scoring.Corpus
}

// rankedFactor is a factor index into Session.factors with its score
type rankedFactor struct {
	idx   int
	score float64
}

// New creates an active session
func New(cfg Config) *Session {
	log := logger.OrNop(cfg.Logger).With("session", cfg.ID, "category", cfg.Category)

	s := &Session{
		id:          cfg.ID,
		category:    cfg.Category,
		productName: cfg.ProductName,
		factors:     append([]model.Factor(nil), cfg.Factors...),
		byKey:       make(map[string]int, len(cfg.Factors)),
		byID:        make(map[int]int, len(cfg.Factors)),
		reviews:     cfg.Reviews,
		policy:      cfg.Policy.withDefaults(),
		sampler:     evidence.NewSampler(cfg.Evidence, log),
		summarizer:  cfg.Summarizer,
		log:         log,
		metrics:     cfg.Metrics,
		status:      model.SessionActive,
		cumulative:  make(map[int]float64),
		asked:       make(map[string]struct{}),
	}
	for i := range s.factors {
		s.byKey[s.factors[i].Key] = i
		s.byID[s.factors[i].ID] = i
	}

	// keep only questions of this category's factors, lowest id first
	for _, q := range cfg.Questions {
		if _, ok := s.byID[q.FactorID]; ok && q.Text != "" {
			s.questions = append(s.questions, q)
		}
	}
	sort.SliceStable(s.questions, func(a, b int) bool { return s.questions[a].ID < s.questions[b].ID })

	s.fallback = cfg.FallbackQuestions
	if len(s.fallback) == 0 {
		s.fallback = FallbackQuestionsFor(s.policy.Locale, cfg.Category)
	}
	return s
}

func (s *Session) ID() string          { return s.id }
func (s *Session) Category() string    { return s.category }
func (s *Session) ProductName() string { return s.productName }

func (s *Session) Status() model.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Step processes one user message. selectedFactor, when set, asks for a
// question about that factor instead of the focus policy's choice.
func (s *Session) Step(ctx context.Context, message, selectedFactor string) (*model.BotTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == model.SessionFinalized {
		return nil, ErrSessionFinalized
	}

	s.turnCount++
	s.history = append(s.history, model.DialogueTurn{Role: model.RoleUser, Message: message})
	s.accumulate(message)

	top := s.topFactors()
	s.updateStability(top)
	s.log.Debug("turn scored",
		"turn", s.turnCount, "top", s.keysOf(top), "jaccard", s.lastJaccard, "stability_hits", s.stabilityHits)

	if s.shouldAutoFinalize() {
		s.log.Info("session converged", "turn", s.turnCount, "stability_hits", s.stabilityHits)
		return s.finalizeLocked(ctx, top), nil
	}

	q := s.nextQuestion(top, selectedFactor)
	s.history = append(s.history, model.DialogueTurn{Role: model.RoleAssistant, Message: q.text})

	text := q.text
	turn := &model.BotTurn{
		QuestionText:  &text,
		QuestionID:    q.id,
		AnswerType:    q.answerType,
		Choices:       q.choices,
		TopFactors:    s.factorScores(top),
		TurnCount:     s.turnCount,
		StabilityHits: s.stabilityHits,
		AnalysisReady: s.turnCount >= s.policy.MinAnalysisTurns,
	}
	if turn.AnalysisReady && s.policy.AttachAnalysis {
		turn.Analysis = s.analysisLocked(ctx, top)
	}
	return turn, nil
}

// Finalize ends the dialogue and returns the final analysis. Calling it
// again recomputes the same analysis.
func (s *Session) Finalize(ctx context.Context) *model.BotTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizeLocked(ctx, s.topFactors())
}

func (s *Session) finalizeLocked(ctx context.Context, top []rankedFactor) *model.BotTurn {
	s.status = model.SessionFinalized
	return &model.BotTurn{
		TopFactors:    s.factorScores(top),
		IsFinal:       true,
		AnalysisReady: true,
		TurnCount:     s.turnCount,
		StabilityHits: s.stabilityHits,
		Analysis:      s.analysisLocked(ctx, top),
	}
}

// accumulate adds each factor's weighted hit score for the message
func (s *Session) accumulate(message string) {
	norm := scoring.Normalize(message)
	for i := range s.factors {
		f := &s.factors[i]
		if w := scoring.Score(norm, f).Weighted(f); w > 0 {
			s.cumulative[f.ID] += w
		}
	}
}

// topFactors ranks factors by cumulative score. Before any factor scores,
// the heaviest factors stand in with their weight as score. Ties keep
// taxonomy order.
func (s *Session) topFactors() []rankedFactor {
	var ranked []rankedFactor
	for i := range s.factors {
		if sc := s.cumulative[s.factors[i].ID]; sc > 0 {
			ranked = append(ranked, rankedFactor{idx: i, score: sc})
		}
	}
	if len(ranked) == 0 {
		for i := range s.factors {
			ranked = append(ranked, rankedFactor{idx: i, score: s.factors[i].EffectiveWeight()})
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })
	if len(ranked) > s.policy.TopK {
		ranked = ranked[:s.policy.TopK]
	}
	return ranked
}

func (s *Session) updateStability(top []rankedFactor) {
	now := make([]int, len(top))
	for i, r := range top {
		now[i] = s.factors[r.idx].ID
	}

	sim := 0.0
	if len(s.prevTopK) > 0 {
		sim = Jaccard(s.idKeys(now), s.idKeys(s.prevTopK))
	}
	if sim >= s.policy.JaccardThreshold {
		s.stabilityHits++
	} else {
		s.stabilityHits = 1
	}
	s.lastJaccard = sim
	s.prevTopK = now
}

func (s *Session) shouldAutoFinalize() bool {
	if s.policy.Convergence != ConvergeAuto {
		return false
	}
	if s.turnCount >= s.policy.MaxTurns {
		return true
	}
	return s.turnCount >= s.policy.AutoMinTurns && s.stabilityHits >= s.policy.AutoMinStabilityHits
}

func (s *Session) factorScores(top []rankedFactor) []model.FactorScore {
	out := make([]model.FactorScore, len(top))
	for i, r := range top {
		out[i] = model.FactorScore{FactorKey: s.factors[r.idx].Key, Score: r.score}
	}
	return out
}

func (s *Session) keysOf(top []rankedFactor) []string {
	out := make([]string, len(top))
	for i, r := range top {
		out[i] = s.factors[r.idx].Key
	}
	return out
}

func (s *Session) idKeys(ids []int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if i, ok := s.byID[id]; ok {
			out = append(out, s.factors[i].Key)
		}
	}
	return out
}

// scoredCorpus scores the review corpus on first use
func (s *Session) scoredCorpus() *scoring.Corpus {
	if s.corpus == nil {
		start := time.Now()
		s.corpus = scoring.ScoreCorpus(s.reviews, s.factors)
		s.metrics.ScoringDuration(context.Background(), s.category, time.Since(start))
		s.log.Info("corpus scored", "reviews", s.corpus.Len(), "factor_counts", s.corpus.FactorCounts)
	}
	return s.corpus
}

// Related lists corpus reviews mentioning a factor
func (s *Session) Related(factorKey string, limit int) (*model.RelatedReviews, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scoring.RelatedReviews(s.scoredCorpus(), factorKey, limit)
}
