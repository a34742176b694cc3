package repository

import (
	"context"
	"fmt"
	"reviewlens/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FactorRepo handles MongoDB operations for the factor taxonomy
type FactorRepo interface {
	GetByCategory(ctx context.Context, category string) ([]model.Factor, error)
	ReplaceCategory(ctx context.Context, category string, factors []model.Factor) error
	Categories(ctx context.Context) ([]string, error)
}

type factorRepo struct {
	collection *mongo.Collection
}

// NewFactorRepo creates a new factor repository
func NewFactorRepo(db *mongo.Database) FactorRepo {
	return &factorRepo{collection: db.Collection("factors")}
}

// GetByCategory returns the category's factors in taxonomy order
func (r *factorRepo) GetByCategory(ctx context.Context, category string) ([]model.Factor, error) {
	opts := options.Find().SetSort(bson.D{{Key: "factorId", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"category": category}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var factors []model.Factor
	if err = cursor.All(ctx, &factors); err != nil {
		return nil, err
	}
	return factors, nil
}

// ReplaceCategory swaps the whole taxonomy of one category
func (r *factorRepo) ReplaceCategory(ctx context.Context, category string, factors []model.Factor) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"category": category}); err != nil {
		return fmt.Errorf("clear factors: %w", err)
	}
	if len(factors) == 0 {
		return nil
	}
	docs := make([]interface{}, len(factors))
	for i := range factors {
		f := factors[i]
		f.Category = category
		docs[i] = f
	}
	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert factors: %w", err)
	}
	return nil
}

func (r *factorRepo) Categories(ctx context.Context) ([]string, error) {
	values, err := r.collection.Distinct(ctx, "category", bson.M{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
