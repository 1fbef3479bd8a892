// Package mailer отправляет транзакционные письма через SMTP или Postmark.
package mailer

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInvalidMessage возвращается для письма без получателей или темы.
	ErrInvalidMessage = errors.New("invalid email message")
	// ErrSendFailed оборачивает ошибки провайдера доставки.
	ErrSendFailed = errors.New("failed to send email")
)

// Message письмо в виде простого текста.
type Message struct {
	To      []string
	Subject string
	Body    string
	Tag     string
}

// Validate проверяет обязательные поля письма.
func (m Message) Validate() error {
	if len(m.To) == 0 || strings.TrimSpace(m.Subject) == "" {
		return ErrInvalidMessage
	}
	for _, to := range m.To {
		if !strings.Contains(to, "@") {
			return ErrInvalidMessage
		}
	}
	return nil
}

// Mailer доставляет письма.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
