// Package feedback принимает отзывы пользователей.
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/policy-summarizer/internal/models"
)

// Repository хранилище отзывов.
type Repository interface {
	CreateFeedback(ctx context.Context, f models.Feedback) (*models.Feedback, error)
}

// Service сервис отзывов.
type Service struct {
	repo Repository
}

// New создаёт сервис.
func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// Submit сохраняет отзыв пользователя.
func (s *Service) Submit(ctx context.Context, userID, experience, text, suggestion string) (*models.Feedback, error) {
	const op = "feedback.Submit"
	saved, err := s.repo.CreateFeedback(ctx, models.Feedback{
		UserID:     userID,
		Experience: experience,
		Feedback:   text,
		Suggestion: suggestion,
		Date:       time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return saved, nil
}
