package service

import (
	"context"
	"reviewlens/internal/model"
	"sync"
)

type fakeFactorRepo struct {
	mu    sync.Mutex
	byCat map[string][]model.Factor
	calls int
	err   error
}

func (r *fakeFactorRepo) GetByCategory(_ context.Context, category string) ([]model.Factor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return append([]model.Factor(nil), r.byCat[category]...), nil
}

func (r *fakeFactorRepo) ReplaceCategory(_ context.Context, category string, factors []model.Factor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byCat == nil {
		r.byCat = map[string][]model.Factor{}
	}
	r.byCat[category] = factors
	return nil
}

func (r *fakeFactorRepo) Categories(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for k := range r.byCat {
		out = append(out, k)
	}
	return out, nil
}

type fakeQuestionRepo struct {
	mu         sync.Mutex
	byCat      map[string][]model.Question
	replaceErr error
	replaces   int
}

func (r *fakeQuestionRepo) GetByCategory(_ context.Context, category string) ([]model.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Question(nil), r.byCat[category]...), nil
}

func (r *fakeQuestionRepo) ReplaceCategory(_ context.Context, category string, questions []model.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaces++
	// only the first write fails, the restore goes through
	if r.replaceErr != nil && r.replaces == 1 {
		return r.replaceErr
	}
	if r.byCat == nil {
		r.byCat = map[string][]model.Question{}
	}
	r.byCat[category] = questions
	return nil
}

type fakeReviewRepo struct {
	mu      sync.Mutex
	reviews []model.Review
}

func (r *fakeReviewRepo) GetByCategory(_ context.Context, category string, limit int) ([]model.Review, error) {
	return r.filter(func(rv model.Review) bool { return rv.Category == category }, limit), nil
}

func (r *fakeReviewRepo) GetByProduct(_ context.Context, category, productID string, limit int) ([]model.Review, error) {
	return r.filter(func(rv model.Review) bool { return rv.Category == category && rv.ProductID == productID }, limit), nil
}

func (r *fakeReviewRepo) filter(keep func(model.Review) bool, limit int) []model.Review {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Review
	for _, rv := range r.reviews {
		if keep(rv) {
			out = append(out, rv)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (r *fakeReviewRepo) Upsert(_ context.Context, category string, reviews []model.Review) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rv := range reviews {
		rv.Category = category
		r.reviews = append(r.reviews, rv)
	}
	return len(reviews), nil
}

type fakeReportRepo struct {
	mu      sync.Mutex
	reports map[string]*model.Report
}

func (r *fakeReportRepo) Save(_ context.Context, report *model.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reports == nil {
		r.reports = map[string]*model.Report{}
	}
	r.reports[report.SessionID] = report
	return nil
}

func (r *fakeReportRepo) GetBySession(_ context.Context, sessionID string) (*model.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reports[sessionID], nil
}

type fakeSessionStore struct {
	mu      sync.Mutex
	records map[string]model.SessionRecord
	saves   int
}

func (s *fakeSessionStore) put(rec *model.SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		s.records = map[string]model.SessionRecord{}
	}
	s.records[rec.ID] = *rec
	s.saves++
}

func (s *fakeSessionStore) load(id string) *model.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil
	}
	return &rec
}

func (s *fakeSessionStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

// fakeSessionCache satisfies cache.SessionCache
type fakeSessionCache struct{ fakeSessionStore }

func (c *fakeSessionCache) Set(_ context.Context, rec *model.SessionRecord) error {
	c.put(rec)
	return nil
}

func (c *fakeSessionCache) Get(_ context.Context, id string) (*model.SessionRecord, error) {
	return c.load(id), nil
}

func (c *fakeSessionCache) Delete(_ context.Context, id string) error {
	c.remove(id)
	return nil
}

// fakeSessionRepo satisfies repository.SessionRepo
type fakeSessionRepo struct{ fakeSessionStore }

func (r *fakeSessionRepo) Save(_ context.Context, rec *model.SessionRecord) error {
	r.put(rec)
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id string) (*model.SessionRecord, error) {
	return r.load(id), nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, id string) error {
	r.remove(id)
	return nil
}

type fakeTaxonomyCache struct {
	mu          sync.Mutex
	items       map[string]model.Taxonomy
	invalidated []string
}

func (c *fakeTaxonomyCache) Get(_ context.Context, category string) (*model.Taxonomy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.items[category]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (c *fakeTaxonomyCache) Set(_ context.Context, t *model.Taxonomy) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = map[string]model.Taxonomy{}
	}
	c.items[t.Category] = *t
	return nil
}

func (c *fakeTaxonomyCache) Invalidate(_ context.Context, category string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, category)
	c.invalidated = append(c.invalidated, category)
	return nil
}

type broadcastCall struct {
	sessionID string
	msgType   string
}

type fakeBroadcaster struct {
	mu           sync.Mutex
	calls        []broadcastCall
	disconnected []string
}

func (b *fakeBroadcaster) BroadcastToSession(sessionID, msgType string, _ interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{sessionID, msgType})
}

func (b *fakeBroadcaster) DisconnectSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected = append(b.disconnected, sessionID)
}

// gatedSessionCache holds the first write of turn gateTurn until release
// is closed
type gatedSessionCache struct {
	fakeSessionCache
	gateTurn int
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func (c *gatedSessionCache) Set(ctx context.Context, rec *model.SessionRecord) error {
	if rec.State.TurnCount == c.gateTurn {
		held := false
		c.once.Do(func() { held = true })
		if held {
			close(c.entered)
			<-c.release
		}
	}
	return c.fakeSessionCache.Set(ctx, rec)
}
