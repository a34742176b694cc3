package service

import (
	"context"
	"errors"
	"reviewlens/internal/dialogue"
	"reviewlens/internal/model"
	"reviewlens/internal/observability"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const testCategory = "appliance_heated_humidifier"

func ratingPtr(v int) *int { return &v }

type testDeps struct {
	factors      *fakeFactorRepo
	questions    *fakeQuestionRepo
	reviews      *fakeReviewRepo
	reports      *fakeReportRepo
	sessionCache *fakeSessionCache
	sessionRepo  *fakeSessionRepo
	taxCache     *fakeTaxonomyCache
	broadcaster  *fakeBroadcaster
	auth         *AuthService
}

func newDeps() *testDeps {
	return &testDeps{
		factors: &fakeFactorRepo{byCat: map[string][]model.Factor{
			testCategory: {
				{ID: 1, Key: "noise", DisplayName: "Noise", Category: testCategory, AnchorTerms: []string{"loud", "noisy"}, ContextTerms: []string{"night"}, Weight: 1.0},
				{ID: 2, Key: "cleaning", DisplayName: "Cleaning hassle", Category: testCategory, AnchorTerms: []string{"clean"}, Weight: 1.2},
			},
			"furniture_chair": {{ID: 9, Key: "back_pain", Category: "furniture_chair", AnchorTerms: []string{"back"}}},
		}},
		questions: &fakeQuestionRepo{byCat: map[string][]model.Question{
			testCategory: {
				{ID: 101, FactorID: 1, FactorKey: "noise", Text: "Do you sleep in the same room?"},
				{ID: 201, FactorID: 2, FactorKey: "cleaning", Text: "How often would you clean it?"},
				{ID: 901, FactorID: 77, Text: "Stale question"},
			},
		}},
		reviews: &fakeReviewRepo{reviews: []model.Review{
			{ID: "r1", Category: testCategory, ProductID: "p1", Rating: ratingPtr(1), Text: "Way too loud at night."},
			{ID: "r2", Category: testCategory, Rating: ratingPtr(2), Text: "Hard to clean."},
			{ID: "r3", Category: testCategory, Rating: ratingPtr(2), Text: "Hard to  CLEAN."},
		}},
		reports:      &fakeReportRepo{},
		sessionCache: &fakeSessionCache{},
		sessionRepo:  &fakeSessionRepo{},
		taxCache:     &fakeTaxonomyCache{},
		broadcaster:  &fakeBroadcaster{},
		auth:         NewAuthService("test-secret", "admin", "pw"),
	}
}

func (d *testDeps) chat(opts ChatOptions) *ChatService {
	tax := NewTaxonomyService(d.factors, d.questions, d.taxCache, nil)
	corpus := NewCorpusService(d.reviews, 100, nil)
	svc := NewChatService(tax, corpus, NewReportService(d.reports), d.auth, d.sessionCache, d.sessionRepo, opts, nil)
	svc.SetBroadcaster(d.broadcaster)
	return svc
}

func TestTaxonomyService_Get(t *testing.T) {
	d := newDeps()
	svc := NewTaxonomyService(d.factors, d.questions, d.taxCache, nil)
	ctx := context.Background()

	tax, err := svc.Get(ctx, testCategory)
	require.NoError(t, err)
	assert.Len(t, tax.Factors, 2)
	require.Len(t, tax.Questions, 2)
	assert.Equal(t, 101, tax.Questions[0].ID)

	_, err = svc.Get(ctx, testCategory)
	require.NoError(t, err)
	assert.Equal(t, 1, d.factors.calls, "second read is served from cache")
}

func TestTaxonomyService_GetError(t *testing.T) {
	d := newDeps()
	d.factors.err = errors.New("mongo down")
	svc := NewTaxonomyService(d.factors, d.questions, nil, nil)

	_, err := svc.Get(context.Background(), testCategory)
	assert.ErrorContains(t, err, "mongo down")
}

func TestTaxonomyService_Categories(t *testing.T) {
	d := newDeps()
	svc := NewTaxonomyService(d.factors, d.questions, nil, nil)

	cats, err := svc.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Category{
		{Key: testCategory, Label: "heated humidifier"},
		{Key: "furniture_chair", Label: "chair"},
	}, cats)
}

func TestTaxonomyService_Replace(t *testing.T) {
	d := newDeps()
	svc := NewTaxonomyService(d.factors, d.questions, d.taxCache, nil)
	ctx := context.Background()
	_, err := svc.Get(ctx, testCategory)
	require.NoError(t, err)

	err = svc.Replace(ctx, &model.Taxonomy{
		Category:  testCategory,
		Factors:   []model.Factor{{ID: 5, Key: "smell"}},
		Questions: []model.Question{{ID: 50, FactorID: 5, Text: "Sensitive to smells?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{testCategory}, d.taxCache.invalidated)

	tax, err := svc.Get(ctx, testCategory)
	require.NoError(t, err)
	require.Len(t, tax.Factors, 1)
	assert.Equal(t, "smell", tax.Factors[0].Key)
}

func TestTaxonomyService_ReplaceRestoresOnQuestionFailure(t *testing.T) {
	d := newDeps()
	d.questions.replaceErr = errors.New("write conflict")
	svc := NewTaxonomyService(d.factors, d.questions, d.taxCache, nil)
	ctx := context.Background()
	_, err := svc.Get(ctx, testCategory)
	require.NoError(t, err)

	err = svc.Replace(ctx, &model.Taxonomy{
		Category:  testCategory,
		Factors:   []model.Factor{{ID: 5, Key: "smell"}},
		Questions: []model.Question{{ID: 50, FactorID: 5, Text: "Sensitive to smells?"}},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "write conflict")
	assert.Equal(t, []string{testCategory}, d.taxCache.invalidated)

	tax, err := svc.Get(ctx, testCategory)
	require.NoError(t, err)
	require.Len(t, tax.Factors, 2)
	assert.Equal(t, "noise", tax.Factors[0].Key)
	require.Len(t, tax.Questions, 2)
	assert.Equal(t, 101, tax.Questions[0].ID)
}

func TestValidateTaxonomy(t *testing.T) {
	tests := []struct {
		name string
		tax  *model.Taxonomy
	}{
		{"nil", nil},
		{"no category", &model.Taxonomy{}},
		{"factor without key", &model.Taxonomy{Category: "c", Factors: []model.Factor{{ID: 1}}}},
		{"duplicate factor id", &model.Taxonomy{Category: "c", Factors: []model.Factor{{ID: 1, Key: "a"}, {ID: 1, Key: "b"}}}},
		{"duplicate factor key", &model.Taxonomy{Category: "c", Factors: []model.Factor{{ID: 1, Key: "a"}, {ID: 2, Key: "a"}}}},
		{"orphan question", &model.Taxonomy{Category: "c", Factors: []model.Factor{{ID: 1, Key: "a"}}, Questions: []model.Question{{ID: 1, FactorID: 2, Text: "q"}}}},
		{"duplicate question", &model.Taxonomy{Category: "c", Factors: []model.Factor{{ID: 1, Key: "a"}}, Questions: []model.Question{{ID: 1, FactorID: 1, Text: "q"}, {ID: 1, FactorID: 1, Text: "r"}}}},
		{"question without id", &model.Taxonomy{Category: "c", Factors: []model.Factor{{ID: 1, Key: "a"}}, Questions: []model.Question{{FactorID: 1, Text: "q"}}}},
		{"question without text", &model.Taxonomy{Category: "c", Factors: []model.Factor{{ID: 1, Key: "a"}}, Questions: []model.Question{{ID: 1, FactorID: 1, Text: "  "}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateTaxonomy(tt.tax), ErrInvalidTaxonomy)
		})
	}
	assert.NoError(t, ValidateTaxonomy(&model.Taxonomy{Category: "c"}))
}

func TestCorpusService_Load(t *testing.T) {
	d := newDeps()
	svc := NewCorpusService(d.reviews, 0, nil)
	ctx := context.Background()

	product, err := svc.Load(ctx, testCategory, "p1")
	require.NoError(t, err)
	require.Len(t, product, 1)
	assert.Equal(t, "r1", product[0].ID)

	category, err := svc.Load(ctx, testCategory, "unknown-product")
	require.NoError(t, err)
	assert.Len(t, category, 2, "r3 duplicates r2 after normalization")
}

func TestCorpusService_Import(t *testing.T) {
	d := newDeps()
	d.reviews.reviews = nil
	svc := NewCorpusService(d.reviews, 0, nil)

	res, err := svc.Import(context.Background(), "furniture_desk", []model.Review{
		{Text: "Wobbly legs"},
		{Text: "WOBBLY   legs"},
		{ID: "keep", Text: "Solid"},
	})
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Total: 3, Duplicates: 1, Stored: 2}, res)

	require.Len(t, d.reviews.reviews, 2)
	assert.True(t, strings.HasPrefix(d.reviews.reviews[0].ID, "h"))
	assert.Len(t, d.reviews.reviews[0].ID, 17)
	assert.Equal(t, "furniture_desk", d.reviews.reviews[1].Category)
}

func TestAuthService(t *testing.T) {
	auth := NewAuthService("secret", "", "pw")

	_, err := auth.Login("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	resp, err := auth.Login("admin", "pw")
	require.NoError(t, err)
	claims, err := auth.ValidateAdminToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.AdminID, claims.AdminID)

	token, err := auth.GenerateSessionToken("s1", testCategory)
	require.NoError(t, err)
	sc, err := auth.ValidateSessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, "s1", sc.SessionID)
	assert.Equal(t, testCategory, sc.Category)

	_, err = auth.ValidateAdminToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "session tokens are not admin tokens")
	_, err = auth.ValidateSessionToken(resp.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewAuthService("other-secret", "", "pw")
	_, err = other.ValidateSessionToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = auth.ValidateSessionToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_LoginDisabledWithoutPassword(t *testing.T) {
	auth := NewAuthService("secret", "admin", "")
	_, err := auth.Login("admin", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSummaryService(t *testing.T) {
	req := dialogue.SummaryRequest{
		Category:      testCategory,
		CategoryLabel: "heated humidifier",
		ProductLabel:  "Mist 3000",
		TopFactors:    []model.TopFactor{{FactorKey: "noise_sleep", DisplayName: "Noise while sleeping", Score: 1.3}},
		Evidence:      []model.Evidence{{ReviewID: "r1", Rating: 1, Excerpt: "Way too loud at night.", FactorKey: "noise_sleep", Label: model.LabelNegative}},
		TurnCount:     2,
		History:       []model.DialogueTurn{{Role: model.RoleUser, Message: "is it loud?"}},
		SafetyRules:   dialogue.SafetyRules,
	}

	t.Run("disabled", func(t *testing.T) {
		svc := &SummaryService{}
		_, err := svc.Summarize(context.Background(), req)
		assert.ErrorIs(t, err, ErrAIDisabled)
	})

	t.Run("replaces factor keys", func(t *testing.T) {
		var prompt string
		svc := &SummaryService{generate: func(_ context.Context, p string) (string, error) {
			prompt = p
			return "  Watch out for noise_sleep.  ", nil
		}}

		text, err := svc.Summarize(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "Watch out for Noise while sleeping.", text)

		assert.Contains(t, prompt, "Mist 3000 (heated humidifier)")
		assert.Contains(t, prompt, "1. Noise while sleeping (score 1.30)")
		assert.Contains(t, prompt, "[NEG, 1 stars, noise_sleep] Way too loud at night.")
		assert.Contains(t, prompt, "user: is it loud?")
		for _, rule := range dialogue.SafetyRules {
			assert.Contains(t, prompt, rule)
		}
	})

	t.Run("propagates errors", func(t *testing.T) {
		svc := &SummaryService{generate: func(context.Context, string) (string, error) {
			return "", errors.New("quota")
		}}
		_, err := svc.Summarize(context.Background(), req)
		assert.Error(t, err)
	})
}

func TestChatService_StartAndStep(t *testing.T) {
	d := newDeps()
	svc := d.chat(ChatOptions{Policy: dialogue.DefaultPolicy()})
	ctx := context.Background()

	start, err := svc.Start(ctx, StartRequest{Category: " " + testCategory + " ", ProductName: "Mist 3000"})
	require.NoError(t, err)
	assert.NotEmpty(t, start.SessionID)
	assert.Equal(t, 2, start.FactorCount)
	assert.Equal(t, 2, start.ReviewCount)
	assert.Contains(t, start.Message, "Mist 3000")
	claims, err := d.auth.ValidateSessionToken(start.Token)
	require.NoError(t, err)
	assert.Equal(t, start.SessionID, claims.SessionID)

	turn, err := svc.Step(ctx, start.SessionID, "so noisy at night", "")
	require.NoError(t, err)
	assert.Equal(t, "Do you sleep in the same room?", *turn.QuestionText)

	rec := d.sessionCache.load(start.SessionID)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.State.TurnCount)
	assert.InDelta(t, 1.3, rec.State.CumulativeScores["noise"], 1e-9)
	assert.NotNil(t, d.sessionRepo.load(start.SessionID))
	assert.Contains(t, d.broadcaster.calls, broadcastCall{start.SessionID, "bot_turn"})
}

func TestChatService_Errors(t *testing.T) {
	d := newDeps()
	svc := d.chat(ChatOptions{})
	ctx := context.Background()

	_, err := svc.Start(ctx, StartRequest{Category: "  "})
	assert.ErrorIs(t, err, ErrEmptyCategory)

	_, err = svc.Step(ctx, "missing", "hello", "")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	start, err := svc.Start(ctx, StartRequest{Category: testCategory})
	require.NoError(t, err)
	_, err = svc.Step(ctx, start.SessionID, "   ", "")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.Related(ctx, start.SessionID, "battery", 3)
	assert.ErrorIs(t, err, ErrFactorNotFound)
}

func TestChatService_UnknownCategoryStillStarts(t *testing.T) {
	d := newDeps()
	svc := d.chat(ChatOptions{})
	ctx := context.Background()

	start, err := svc.Start(ctx, StartRequest{Category: "garden_hose"})
	require.NoError(t, err)
	assert.Zero(t, start.FactorCount)

	turn, err := svc.Step(ctx, start.SessionID, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, dialogue.FallbackQuestions("garden_hose")[0], *turn.QuestionText)
}

func TestChatService_FinalizeStoresReport(t *testing.T) {
	d := newDeps()
	svc := d.chat(ChatOptions{})
	reports := NewReportService(d.reports)
	ctx := context.Background()

	start, err := svc.Start(ctx, StartRequest{Category: testCategory, ProductID: "p1"})
	require.NoError(t, err)
	_, err = svc.Step(ctx, start.SessionID, "it is loud", "")
	require.NoError(t, err)

	final, err := svc.Finalize(ctx, start.SessionID)
	require.NoError(t, err)
	assert.True(t, final.IsFinal)

	report, err := reports.Get(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "p1", report.ProductID)
	assert.Equal(t, final.Analysis.Summary, report.Analysis.Summary)
	assert.Contains(t, d.broadcaster.calls, broadcastCall{start.SessionID, "session_finalized"})

	_, err = svc.Step(ctx, start.SessionID, "more", "")
	assert.ErrorIs(t, err, dialogue.ErrSessionFinalized)

	_, err = reports.Get(ctx, "other")
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestChatService_AutoFinalizeStoresReport(t *testing.T) {
	d := newDeps()
	policy := dialogue.DefaultPolicy()
	policy.Convergence = dialogue.ConvergeAuto
	svc := d.chat(ChatOptions{Policy: policy})
	ctx := context.Background()

	start, err := svc.Start(ctx, StartRequest{Category: testCategory})
	require.NoError(t, err)
	var turn *model.BotTurn
	for i := 0; i < 3; i++ {
		turn, err = svc.Step(ctx, start.SessionID, "loud", "")
		require.NoError(t, err)
	}
	assert.True(t, turn.IsFinal)
	assert.NotNil(t, d.reports.reports[start.SessionID])
}

func TestChatService_RestoresFromCache(t *testing.T) {
	d := newDeps()
	ctx := context.Background()
	first := d.chat(ChatOptions{})

	start, err := first.Start(ctx, StartRequest{Category: testCategory})
	require.NoError(t, err)
	_, err = first.Step(ctx, start.SessionID, "noisy and hard to clean", "")
	require.NoError(t, err)

	// a fresh process with the same stores
	second := d.chat(ChatOptions{})
	turn, err := second.Step(ctx, start.SessionID, "noisy and hard to clean", "")
	require.NoError(t, err)
	assert.Equal(t, 2, turn.TurnCount)
	assert.Equal(t, "How often would you clean it?", *turn.QuestionText)
}

func TestChatService_RestoresFromRepoWhenCacheMisses(t *testing.T) {
	d := newDeps()
	ctx := context.Background()
	first := d.chat(ChatOptions{})

	start, err := first.Start(ctx, StartRequest{Category: testCategory})
	require.NoError(t, err)
	_, err = first.Step(ctx, start.SessionID, "loud", "")
	require.NoError(t, err)
	d.sessionCache.remove(start.SessionID)

	second := d.chat(ChatOptions{})
	rec, err := second.State(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.State.TurnCount)
	assert.WithinDuration(t, time.Now(), rec.UpdatedAt, time.Minute)
}

func TestChatService_Related(t *testing.T) {
	d := newDeps()
	svc := d.chat(ChatOptions{})
	ctx := context.Background()

	start, err := svc.Start(ctx, StartRequest{Category: testCategory})
	require.NoError(t, err)

	related, err := svc.Related(ctx, start.SessionID, "noise", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, related.Count)
	assert.Equal(t, "r1", related.Reviews[0].ReviewID)
}

func TestChatService_Delete(t *testing.T) {
	d := newDeps()
	svc := d.chat(ChatOptions{})
	ctx := context.Background()

	start, err := svc.Start(ctx, StartRequest{Category: testCategory})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, start.SessionID))
	assert.Equal(t, []string{start.SessionID}, d.broadcaster.disconnected)
	assert.Nil(t, d.sessionCache.load(start.SessionID))
	assert.Nil(t, d.sessionRepo.load(start.SessionID))

	_, err = svc.State(ctx, start.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, start.SessionID), ErrSessionNotFound)
}

func TestChatService_PersistKeepsTurnOrder(t *testing.T) {
	d := newDeps()
	gate := &gatedSessionCache{gateTurn: 1, entered: make(chan struct{}), release: make(chan struct{})}
	tax := NewTaxonomyService(d.factors, d.questions, d.taxCache, nil)
	svc := NewChatService(tax, NewCorpusService(d.reviews, 100, nil), NewReportService(d.reports), d.auth, gate, d.sessionRepo, ChatOptions{}, nil)
	ctx := context.Background()

	start, err := svc.Start(ctx, StartRequest{Category: testCategory})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.Step(ctx, start.SessionID, "loud", "")
		assert.NoError(t, err)
	}()
	<-gate.entered
	go func() {
		defer wg.Done()
		_, err := svc.Step(ctx, start.SessionID, "hard to clean", "")
		assert.NoError(t, err)
	}()
	// the second turn must wait for the held write instead of overtaking it
	time.Sleep(20 * time.Millisecond)
	close(gate.release)
	wg.Wait()

	rec := gate.load(start.SessionID)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.State.TurnCount)
	assert.Len(t, rec.State.AskedQuestions, 2)
	assert.Equal(t, 2, d.sessionRepo.load(start.SessionID).State.TurnCount)
}

func TestChatService_EvictsFinalizedSessions(t *testing.T) {
	d := newDeps()
	svc := d.chat(ChatOptions{})
	ctx := context.Background()

	start, err := svc.Start(ctx, StartRequest{Category: testCategory})
	require.NoError(t, err)
	_, err = svc.Step(ctx, start.SessionID, "loud", "")
	require.NoError(t, err)
	assert.Equal(t, 1, svc.ActiveSessions())

	_, err = svc.Finalize(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Zero(t, svc.ActiveSessions())

	rec, err := svc.State(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionFinalized, rec.State.Status)
	assert.Equal(t, 1, rec.State.TurnCount)

	_, err = svc.Step(ctx, start.SessionID, "more", "")
	assert.ErrorIs(t, err, dialogue.ErrSessionFinalized)
	again, err := svc.Finalize(ctx, start.SessionID)
	require.NoError(t, err)
	assert.True(t, again.IsFinal)
}

func TestChatService_EvictIdle(t *testing.T) {
	d := newDeps()
	svc := d.chat(ChatOptions{IdleTTL: time.Minute})
	ctx := context.Background()

	start, err := svc.Start(ctx, StartRequest{Category: testCategory})
	require.NoError(t, err)
	_, err = svc.Step(ctx, start.SessionID, "noisy and hard to clean", "")
	require.NoError(t, err)

	assert.Zero(t, svc.EvictIdle(time.Now()))
	assert.Equal(t, 1, svc.EvictIdle(time.Now().Add(2*time.Minute)))
	assert.Zero(t, svc.ActiveSessions())

	turn, err := svc.Step(ctx, start.SessionID, "noisy and hard to clean", "")
	require.NoError(t, err)
	assert.Equal(t, 2, turn.TurnCount)
	assert.Equal(t, "How often would you clean it?", *turn.QuestionText)
	assert.Equal(t, 1, svc.ActiveSessions())
}

func TestChatService_WithoutStoresKeepsSessions(t *testing.T) {
	d := newDeps()
	tax := NewTaxonomyService(d.factors, d.questions, nil, nil)
	svc := NewChatService(tax, NewCorpusService(d.reviews, 100, nil), nil, d.auth, nil, nil, ChatOptions{IdleTTL: time.Minute}, nil)
	ctx := context.Background()

	start, err := svc.Start(ctx, StartRequest{Category: testCategory})
	require.NoError(t, err)
	_, err = svc.Finalize(ctx, start.SessionID)
	require.NoError(t, err)

	assert.Zero(t, svc.EvictIdle(time.Now().Add(time.Hour)))
	assert.Equal(t, 1, svc.ActiveSessions())
	_, err = svc.State(ctx, start.SessionID)
	assert.NoError(t, err)
}

func TestChatService_RunEvictorStops(t *testing.T) {
	d := newDeps()
	svc := d.chat(ChatOptions{IdleTTL: time.Nanosecond})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := svc.Start(context.Background(), StartRequest{Category: testCategory})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		svc.RunEvictor(ctx, time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return svc.ActiveSessions() == 0 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func metricTotal(t *testing.T, reader *sdkmetric.ManualReader, name, key, value string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.Emit() == value {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestChatService_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	metrics, err := observability.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	d := newDeps()
	svc := d.chat(ChatOptions{
		Metrics: metrics,
		Summarizer: dialogue.SummarizerFunc(func(context.Context, dialogue.SummaryRequest) (string, error) {
			return "", errors.New("quota")
		}),
	})
	ctx := context.Background()

	start, err := svc.Start(ctx, StartRequest{Category: testCategory})
	require.NoError(t, err)
	_, err = svc.Step(ctx, start.SessionID, "loud", "")
	require.NoError(t, err)
	_, err = svc.Finalize(ctx, start.SessionID)
	require.NoError(t, err)
	// a repeated finalize is not another completion
	_, err = svc.Finalize(ctx, start.SessionID)
	require.NoError(t, err)

	assert.Equal(t, int64(1), metricTotal(t, reader, "dialogue_sessions_total", "category", testCategory))
	assert.Equal(t, int64(1), metricTotal(t, reader, "dialogue_turns_total", "is_final", "false"))
	assert.Equal(t, int64(1), metricTotal(t, reader, "dialogue_completions_total", "reason", observability.CompletedExplicit))
	assert.Equal(t, int64(2), metricTotal(t, reader, "llm_calls_total", "status", observability.LLMError))
	assert.Equal(t, int64(2), metricTotal(t, reader, "llm_calls_total", "status", observability.LLMFallback))
}
