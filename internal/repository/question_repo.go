package repository

import (
	"context"
	"fmt"
	"reviewlens/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type QuestionRepo interface {
	GetByCategory(ctx context.Context, category string) ([]model.Question, error)
	ReplaceCategory(ctx context.Context, category string, questions []model.Question) error
}

type questionRepo struct {
	collection *mongo.Collection
}

func NewQuestionRepo(db *mongo.Database) QuestionRepo {
	return &questionRepo{collection: db.Collection("questions")}
}

func (r *questionRepo) GetByCategory(ctx context.Context, category string) ([]model.Question, error) {
	opts := options.Find().SetSort(bson.D{{Key: "questionId", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"category": category}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var questions []model.Question
	if err = cursor.All(ctx, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *questionRepo) ReplaceCategory(ctx context.Context, category string, questions []model.Question) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"category": category}); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}
	if len(questions) == 0 {
		return nil
	}
	docs := make([]interface{}, len(questions))
	for i := range questions {
		q := questions[i]
		q.Category = category
		docs[i] = q
	}
	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}
	return nil
}
