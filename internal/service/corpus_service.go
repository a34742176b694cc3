package service

import (
	"context"
	"fmt"
	"reviewlens/internal/loader"
	"reviewlens/internal/logger"
	"reviewlens/internal/model"
	"reviewlens/internal/repository"
)

// ImportResult reports what a review import did
type ImportResult struct {
	Total      int `json:"total"`
	Duplicates int `json:"duplicates"`
	Stored     int `json:"stored"`
}

// CorpusService loads and imports review corpora
type CorpusService struct {
	reviews repository.ReviewRepo
	limit   int
	log     *logger.Logger
}

func NewCorpusService(reviews repository.ReviewRepo, limit int, log *logger.Logger) *CorpusService {
	return &CorpusService{reviews: reviews, limit: limit, log: logger.OrNop(log)}
}

// Load returns the de-duplicated corpus for a session. A product without
// reviews of its own falls back to the whole category.
func (s *CorpusService) Load(ctx context.Context, category, productID string) ([]model.Review, error) {
	var (
		reviews []model.Review
		err     error
	)
	if productID != "" {
		reviews, err = s.reviews.GetByProduct(ctx, category, productID, s.limit)
		if err != nil {
			return nil, fmt.Errorf("load product reviews: %w", err)
		}
		if len(reviews) == 0 {
			s.log.Debug("no product reviews, using category corpus", "category", category, "product", productID)
		}
	}
	if len(reviews) == 0 {
		reviews, err = s.reviews.GetByCategory(ctx, category, s.limit)
		if err != nil {
			return nil, fmt.Errorf("load category reviews: %w", err)
		}
	}

	kept, removed := loader.Dedupe(reviews)
	if removed > 0 {
		s.log.Debug("dropped duplicate reviews", "category", category, "removed", removed)
	}
	return kept, nil
}

// Import de-duplicates and stores reviews for a category. Reviews without
// an id get one derived from their text.
func (s *CorpusService) Import(ctx context.Context, category string, reviews []model.Review) (*ImportResult, error) {
	for i := range reviews {
		if reviews[i].ID == "" {
			reviews[i].ID = "h" + loader.TextHash(reviews[i].Text)[:16]
		}
	}
	kept, removed := loader.Dedupe(reviews)
	stored, err := s.reviews.Upsert(ctx, category, kept)
	if err != nil {
		return nil, fmt.Errorf("store reviews: %w", err)
	}
	s.log.Info("reviews imported", "category", category, "total", len(reviews), "duplicates", removed, "stored", stored)
	return &ImportResult{Total: len(reviews), Duplicates: removed, Stored: stored}, nil
}
