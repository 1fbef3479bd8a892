package models

import "time"

// Summary сохранённый пользователем конспект документа.
type Summary struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user"`
	SummaryText string    `json:"summaryText"`
	WordLimit   int       `json:"wordLimit,omitempty"`
	Language    string    `json:"language,omitempty"`
	Date        time.Time `json:"date"`
}

// Feedback отзыв пользователя о сервисе.
type Feedback struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user"`
	Experience string    `json:"experience"`
	Feedback   string    `json:"feedback"`
	Suggestion string    `json:"suggestion,omitempty"`
	Date       time.Time `json:"date"`
}
