// Package mongo loads quiz content from a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"live-quiz-service/internal/domain"
)

const collectionName = "quizzes"

// QuizLoader reads quiz documents keyed by their string _id.
type QuizLoader struct {
	Col *mongo.Collection
}

func NewQuizLoader(db *mongo.Database) *QuizLoader {
	return &QuizLoader{Col: db.Collection(collectionName)}
}

// Connect dials uri and verifies the server answers before returning.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := l.Col.FindOne(ctx, bson.M{"_id": quizID}).Decode(&quiz)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz %s: %w", quizID, err)
	}
	return quiz, nil
}

// SaveQuiz replaces or inserts the quiz document.
func (l *QuizLoader) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	_, err := l.Col.ReplaceOne(ctx, bson.M{"_id": quiz.ID}, quiz, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save quiz %s: %w", quiz.ID, err)
	}
	return nil
}
