package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage"
)

type summaryDoc struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"user_id"`
	SummaryText string    `bson:"summary_text"`
	WordLimit   int       `bson:"word_limit"`
	Language    string    `bson:"language"`
	CreatedAt   time.Time `bson:"created_at"`
}

type feedbackDoc struct {
	ID         string    `bson:"_id"`
	UserID     string    `bson:"user_id"`
	Experience string    `bson:"experience"`
	Feedback   string    `bson:"feedback"`
	Suggestion string    `bson:"suggestion"`
	CreatedAt  time.Time `bson:"created_at"`
}

func (s *Storage) userExists(ctx context.Context, userID string) (bool, error) {
	n, err := s.users.CountDocuments(ctx, bson.M{"_id": userID})
	return n > 0, err
}

// CreateSummary сохраняет конспект пользователя.
func (s *Storage) CreateSummary(ctx context.Context, sum models.Summary) (*models.Summary, error) {
	const op = "mongostore.CreateSummary"
	ok, err := s.userExists(ctx, sum.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	if sum.ID == "" {
		sum.ID = uuid.NewString()
	}
	sum.Date = time.Now().UTC().Truncate(time.Millisecond)
	doc := summaryDoc{
		ID:          sum.ID,
		UserID:      sum.UserID,
		SummaryText: sum.SummaryText,
		WordLimit:   sum.WordLimit,
		Language:    sum.Language,
		CreatedAt:   sum.Date,
	}
	if _, err := s.summaries.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sum, nil
}

// ListSummaries возвращает конспекты пользователя, новые первыми.
func (s *Storage) ListSummaries(ctx context.Context, userID string) ([]models.Summary, error) {
	const op = "mongostore.ListSummaries"
	cur, err := s.summaries.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var docs []summaryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result := make([]models.Summary, 0, len(docs))
	for _, d := range docs {
		result = append(result, models.Summary{
			ID:          d.ID,
			UserID:      d.UserID,
			SummaryText: d.SummaryText,
			WordLimit:   d.WordLimit,
			Language:    d.Language,
			Date:        d.CreatedAt.UTC(),
		})
	}
	return result, nil
}

// CreateFeedback сохраняет отзыв пользователя.
func (s *Storage) CreateFeedback(ctx context.Context, f models.Feedback) (*models.Feedback, error) {
	const op = "mongostore.CreateFeedback"
	ok, err := s.userExists(ctx, f.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.Date = time.Now().UTC().Truncate(time.Millisecond)
	doc := feedbackDoc{
		ID:         f.ID,
		UserID:     f.UserID,
		Experience: f.Experience,
		Feedback:   f.Feedback,
		Suggestion: f.Suggestion,
		CreatedAt:  f.Date,
	}
	if _, err := s.feedback.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &f, nil
}
