package service

import (
	"context"
	"errors"
	"fmt"
	"reviewlens/internal/cache"
	"reviewlens/internal/logger"
	"reviewlens/internal/model"
	"reviewlens/internal/repository"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

var ErrInvalidTaxonomy = errors.New("invalid taxonomy")

// TaxonomyService serves category taxonomies from Mongo with a Redis cache
// in front
type TaxonomyService struct {
	factors   repository.FactorRepo
	questions repository.QuestionRepo
	cache     cache.TaxonomyCache
	log       *logger.Logger
}

// NewTaxonomyService creates a taxonomy service. cache may be nil.
func NewTaxonomyService(factors repository.FactorRepo, questions repository.QuestionRepo, c cache.TaxonomyCache, log *logger.Logger) *TaxonomyService {
	return &TaxonomyService{
		factors:   factors,
		questions: questions,
		cache:     c,
		log:       logger.OrNop(log),
	}
}

// Get returns the factors of a category and the questions bound to them.
// An unknown category yields an empty taxonomy.
func (s *TaxonomyService) Get(ctx context.Context, category string) (*model.Taxonomy, error) {
	if s.cache != nil {
		t, err := s.cache.Get(ctx, category)
		if err != nil {
			s.log.Warn("taxonomy cache read failed", "category", category, "error", err)
		} else if t != nil {
			return t, nil
		}
	}

	var (
		factors   []model.Factor
		questions []model.Question
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		factors, err = s.factors.GetByCategory(gctx, category)
		return err
	})
	g.Go(func() error {
		var err error
		questions, err = s.questions.GetByCategory(gctx, category)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load taxonomy %s: %w", category, err)
	}

	t := &model.Taxonomy{
		Category:  category,
		Factors:   factors,
		Questions: questionsOf(factors, questions),
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, t); err != nil {
			s.log.Warn("taxonomy cache write failed", "category", category, "error", err)
		}
	}
	return t, nil
}

// Categories lists every category that has a taxonomy, sorted by key
func (s *TaxonomyService) Categories(ctx context.Context) ([]model.Category, error) {
	keys, err := s.factors.Categories(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	out := make([]model.Category, len(keys))
	for i, k := range keys {
		out[i] = model.Category{Key: k, Label: model.CategoryLabel(k)}
	}
	return out, nil
}

// Replace validates and stores a category taxonomy, then drops the cached
// copy. When the question write fails the previous factors and questions
// are written back, so the category never mixes old and new.
func (s *TaxonomyService) Replace(ctx context.Context, t *model.Taxonomy) error {
	if err := ValidateTaxonomy(t); err != nil {
		return err
	}
	prevFactors, err := s.factors.GetByCategory(ctx, t.Category)
	if err != nil {
		return fmt.Errorf("load current factors: %w", err)
	}
	prevQuestions, err := s.questions.GetByCategory(ctx, t.Category)
	if err != nil {
		return fmt.Errorf("load current questions: %w", err)
	}
	defer s.invalidate(ctx, t.Category)

	if err := s.factors.ReplaceCategory(ctx, t.Category, t.Factors); err != nil {
		return fmt.Errorf("write factors: %w", err)
	}
	if err := s.questions.ReplaceCategory(ctx, t.Category, t.Questions); err != nil {
		s.log.Error("question write failed, restoring previous taxonomy", "category", t.Category, "error", err)
		if rerr := s.factors.ReplaceCategory(ctx, t.Category, prevFactors); rerr != nil {
			s.log.Error("factor restore failed", "category", t.Category, "error", rerr)
		}
		if rerr := s.questions.ReplaceCategory(ctx, t.Category, prevQuestions); rerr != nil {
			s.log.Error("question restore failed", "category", t.Category, "error", rerr)
		}
		return fmt.Errorf("write questions: %w", err)
	}
	s.log.Info("taxonomy replaced", "category", t.Category, "factors", len(t.Factors), "questions", len(t.Questions))
	return nil
}

func (s *TaxonomyService) invalidate(ctx context.Context, category string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, category); err != nil {
		s.log.Warn("taxonomy cache invalidate failed", "category", category, "error", err)
	}
}

// ValidateTaxonomy checks ids and keys are unique, every question has a
// positive id and text, and every question points at a factor of the same
// taxonomy
func ValidateTaxonomy(t *model.Taxonomy) error {
	if t == nil || strings.TrimSpace(t.Category) == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidTaxonomy)
	}
	ids := make(map[int]bool, len(t.Factors))
	keys := make(map[string]bool, len(t.Factors))
	for _, f := range t.Factors {
		if f.ID <= 0 || f.Key == "" {
			return fmt.Errorf("%w: factor needs a positive id and a key", ErrInvalidTaxonomy)
		}
		if ids[f.ID] || keys[f.Key] {
			return fmt.Errorf("%w: duplicate factor %d/%s", ErrInvalidTaxonomy, f.ID, f.Key)
		}
		ids[f.ID] = true
		keys[f.Key] = true
	}
	qids := make(map[int]bool, len(t.Questions))
	for _, q := range t.Questions {
		if q.ID <= 0 || strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("%w: question needs a positive id and text", ErrInvalidTaxonomy)
		}
		if !ids[q.FactorID] {
			return fmt.Errorf("%w: question %d references unknown factor %d", ErrInvalidTaxonomy, q.ID, q.FactorID)
		}
		if qids[q.ID] {
			return fmt.Errorf("%w: duplicate question %d", ErrInvalidTaxonomy, q.ID)
		}
		qids[q.ID] = true
	}
	return nil
}

// questionsOf keeps the questions whose factor belongs to factors
func questionsOf(factors []model.Factor, questions []model.Question) []model.Question {
	ids := make(map[int]bool, len(factors))
	for _, f := range factors {
		ids[f.ID] = true
	}
	out := make([]model.Question, 0, len(questions))
	for _, q := range questions {
		if ids[q.FactorID] {
			out = append(out, q)
		}
	}
	return out
}
