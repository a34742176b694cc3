package repository

import (
	"context"
	"reviewlens/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ReviewRepo stores the review corpora
type ReviewRepo interface {
	GetByCategory(ctx context.Context, category string, limit int) ([]model.Review, error)
	GetByProduct(ctx context.Context, category, productID string, limit int) ([]model.Review, error)
	// Upsert stores reviews keyed by review id and reports how many were
	// inserted or changed.
	Upsert(ctx context.Context, category string, reviews []model.Review) (int, error)
}

type reviewRepo struct {
	collection *mongo.Collection
}

func NewReviewRepo(db *mongo.Database) ReviewRepo {
	return &reviewRepo{collection: db.Collection("reviews")}
}

func (r *reviewRepo) GetByCategory(ctx context.Context, category string, limit int) ([]model.Review, error) {
	return r.find(ctx, bson.M{"category": category}, limit)
}

func (r *reviewRepo) GetByProduct(ctx context.Context, category, productID string, limit int) ([]model.Review, error) {
	return r.find(ctx, bson.M{"category": category, "productId": productID}, limit)
}

func (r *reviewRepo) find(ctx context.Context, filter bson.M, limit int) ([]model.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "reviewId", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reviews []model.Review
	if err = cursor.All(ctx, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

func (r *reviewRepo) Upsert(ctx context.Context, category string, reviews []model.Review) (int, error) {
	if len(reviews) == 0 {
		return 0, nil
	}
	writes := make([]mongo.WriteModel, len(reviews))
	for i := range reviews {
		rv := reviews[i]
		rv.Category = category
		writes[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"category": category, "reviewId": rv.ID}).
			SetReplacement(rv).
			SetUpsert(true)
	}
	res, err := r.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, err
	}
	return int(res.UpsertedCount + res.ModifiedCount), nil
}
