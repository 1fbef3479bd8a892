package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/mrz1836/postmark"
)

// PostmarkSender подмножество *postmark.Client, используемое при отправке.
type PostmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// PostmarkMailer отправляет письма через API Postmark.
type PostmarkMailer struct {
	client PostmarkSender
	from   string
}

// NewPostmarkMailer создаёт отправителя с клиентом Postmark по токенам.
func NewPostmarkMailer(serverToken, accountToken, from string) (*PostmarkMailer, error) {
	const op = "mailer.NewPostmarkMailer"
	if serverToken == "" || from == "" {
		return nil, fmt.Errorf("%s: server token and sender address are required", op)
	}
	return &PostmarkMailer{client: postmark.NewClient(serverToken, accountToken), from: from}, nil
}

// NewPostmarkMailerWithClient создаёт отправителя поверх готового клиента.
func NewPostmarkMailerWithClient(client PostmarkSender, from string) *PostmarkMailer {
	return &PostmarkMailer{client: client, from: from}
}

// Send отправляет письмо, ненулевой ErrorCode ответа считается ошибкой.
func (m *PostmarkMailer) Send(ctx context.Context, msg Message) error {
	const op = "mailer.PostmarkMailer.Send"
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	resp, err := m.client.SendEmail(ctx, postmark.Email{
		From:     m.from,
		To:       strings.Join(msg.To, ","),
		Subject:  msg.Subject,
		Tag:      msg.Tag,
		TextBody: msg.Body,
	})
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("%s: %w: postmark error %d: %s", op, ErrSendFailed, resp.ErrorCode, resp.Message)
	}
	return nil
}
