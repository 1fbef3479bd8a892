package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage"
)

// CreateSummary сохраняет конспект пользователя.
func (s *Storage) CreateSummary(ctx context.Context, sum models.Summary) (*models.Summary, error) {
	const op = "storage.CreateSummary"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if sum.ID == "" {
		sum.ID = uuid.NewString()
	}
	query := `INSERT INTO summaries (id, user_id, summary_text, word_limit, language)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING created_at`
	err := s.DB.QueryRowContext(ctx, query, sum.ID, sum.UserID, sum.SummaryText, sum.WordLimit, sum.Language).
		Scan(&sum.Date)
	if err != nil {
		if code := pgCode(err); code == pgForeignKey || code == pgInvalidTextFormat {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sum, nil
}

// ListSummaries возвращает конспекты пользователя, новые первыми.
func (s *Storage) ListSummaries(ctx context.Context, userID string) ([]models.Summary, error) {
	const op = "storage.ListSummaries"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, summary_text, word_limit, language, created_at
			  FROM summaries
			  WHERE user_id = $1
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]models.Summary, 0)
	for rows.Next() {
		var sum models.Summary
		if err := rows.Scan(&sum.ID, &sum.UserID, &sum.SummaryText, &sum.WordLimit, &sum.Language, &sum.Date); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sum)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CreateFeedback сохраняет отзыв пользователя.
func (s *Storage) CreateFeedback(ctx context.Context, f models.Feedback) (*models.Feedback, error) {
	const op = "storage.CreateFeedback"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	query := `INSERT INTO feedback (id, user_id, experience, feedback, suggestion)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING created_at`
	err := s.DB.QueryRowContext(ctx, query, f.ID, f.UserID, f.Experience, f.Feedback, f.Suggestion).Scan(&f.Date)
	if err != nil {
		if code := pgCode(err); code == pgForeignKey || code == pgInvalidTextFormat {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &f, nil
}
