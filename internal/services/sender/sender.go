// Package sender превращает события об активации подписки в письма-квитанции.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/policy-summarizer/internal/lib/mailer"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/sl"
	"github.com/magabrotheeeer/policy-summarizer/internal/models"
)

// MailTag метка писем-квитанций у провайдера.
const MailTag = "subscription-receipt"

// Service отправляет уведомления пользователям.
type Service struct {
	mailer  mailer.Mailer
	log     *slog.Logger
	timeout time.Duration
}

// New создаёт сервис уведомлений.
func New(m mailer.Mailer, log *slog.Logger) *Service {
	return &Service{
		mailer:  m,
		log:     log,
		timeout: 30 * time.Second,
	}
}

// HandleActivated обрабатывает тело сообщения subscription.activated.
// Нечитаемые сообщения и события без адреса отбрасываются, ошибка доставки
// возвращается для повторной попытки.
func (s *Service) HandleActivated(body []byte) error {
	const op = "sender.HandleActivated"
	log := s.log.With(slog.String("op", op))

	var event models.EntitlementEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Error("failed to unmarshal message body, dropping", sl.Err(err))
		return nil
	}
	msg := ReceiptMessage(event)
	if err := msg.Validate(); err != nil {
		log.Warn("event without deliverable address, dropping", sl.UserID(event.UserID), sl.Err(err))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("receipt sent", sl.UserID(event.UserID), slog.String("payment_id", event.PaymentID))
	return nil
}

// ReceiptMessage собирает письмо-квитанцию по событию активации.
func ReceiptMessage(e models.EntitlementEvent) mailer.Message {
	plan := e.PlanID
	if plan == "" {
		plan = "subscription"
	}
	body := fmt.Sprintf(`Hello, %s!

Your payment %s has been received: %d %s for the %s plan.
Premium features are available until %s.

Thank you for using Policy Summarizer.`,
		nameOr(e.Name, e.Email), e.PaymentID, e.Amount, e.Currency, plan,
		e.ExpiresAt.UTC().Format("2 January 2006 15:04 MST"))

	var to []string
	if e.Email != "" {
		to = []string{e.Email}
	}
	return mailer.Message{
		To:      to,
		Subject: "Your Policy Summarizer subscription is active",
		Body:    body,
		Tag:     MailTag,
	}
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
