package rest

import (
	"context"
	"reviewlens/internal/model"
	"sort"
	"sync"
)

type memFactors struct {
	mu    sync.Mutex
	byCat map[string][]model.Factor
}

func (r *memFactors) GetByCategory(_ context.Context, category string) ([]model.Factor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Factor(nil), r.byCat[category]...), nil
}

func (r *memFactors) ReplaceCategory(_ context.Context, category string, factors []model.Factor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCat[category] = factors
	return nil
}

func (r *memFactors) Categories(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for k := range r.byCat {
		out = append(out, k)
	}
	return out, nil
}

type memQuestions struct {
	mu    sync.Mutex
	byCat map[string][]model.Question
}

func (r *memQuestions) GetByCategory(_ context.Context, category string) ([]model.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Question(nil), r.byCat[category]...), nil
}

func (r *memQuestions) ReplaceCategory(_ context.Context, category string, questions []model.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCat[category] = questions
	return nil
}

type memReviews struct {
	mu      sync.Mutex
	reviews []model.Review
}

func (r *memReviews) GetByCategory(_ context.Context, category string, limit int) ([]model.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Review
	for _, rv := range r.reviews {
		if rv.Category == category && (limit <= 0 || len(out) < limit) {
			out = append(out, rv)
		}
	}
	return out, nil
}

func (r *memReviews) GetByProduct(ctx context.Context, category, productID string, limit int) ([]model.Review, error) {
	all, _ := r.GetByCategory(ctx, category, 0)
	var out []model.Review
	for _, rv := range all {
		if rv.ProductID == productID && (limit <= 0 || len(out) < limit) {
			out = append(out, rv)
		}
	}
	return out, nil
}

func (r *memReviews) Upsert(_ context.Context, category string, reviews []model.Review) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rv := range reviews {
		rv.Category = category
		r.reviews = append(r.reviews, rv)
	}
	sort.SliceStable(r.reviews, func(i, j int) bool { return r.reviews[i].ID < r.reviews[j].ID })
	return len(reviews), nil
}

type memReports struct {
	mu        sync.Mutex
	bySession map[string]*model.Report
}

func (r *memReports) Save(_ context.Context, report *model.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySession[report.SessionID] = report
	return nil
}

func (r *memReports) GetBySession(_ context.Context, sessionID string) (*model.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bySession[sessionID], nil
}
