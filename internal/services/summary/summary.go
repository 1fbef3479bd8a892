// Package summary хранит конспекты документов, сохранённые пользователями.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/policy-summarizer/internal/models"
)

// ErrEmptySummary возвращается для пустого текста конспекта.
var ErrEmptySummary = errors.New("summary text is empty")

// Repository хранилище конспектов.
type Repository interface {
	CreateSummary(ctx context.Context, s models.Summary) (*models.Summary, error)
	ListSummaries(ctx context.Context, userID string) ([]models.Summary, error)
}

// Input данные нового конспекта.
type Input struct {
	Text      string
	WordLimit int
	Language  string
}

// Service сервис конспектов.
type Service struct {
	repo Repository
	now  func() time.Time
}

// New создаёт сервис.
func New(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Add сохраняет конспект пользователя.
func (s *Service) Add(ctx context.Context, userID string, in Input) (*models.Summary, error) {
	const op = "summary.Add"
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptySummary)
	}
	saved, err := s.repo.CreateSummary(ctx, models.Summary{
		UserID:      userID,
		SummaryText: text,
		WordLimit:   in.WordLimit,
		Language:    in.Language,
		Date:        s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return saved, nil
}

// List возвращает конспекты пользователя, новые первыми.
func (s *Service) List(ctx context.Context, userID string) ([]models.Summary, error) {
	const op = "summary.List"
	list, err := s.repo.ListSummaries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if list == nil {
		list = []models.Summary{}
	}
	return list, nil
}
