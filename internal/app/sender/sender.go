// Package sender собирает воркер, рассылающий письма о подтверждённой оплате.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/policy-summarizer/internal/config"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/mailer"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/sl"
	senderservice "github.com/magabrotheeeer/policy-summarizer/internal/services/sender"
)

// ActivatedQueue очередь событий об активации подписки.
const ActivatedQueue = "notification.activated"

type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.Service
	logger        *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.sender.New"
	m, err := newMailer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderservice.New(m, logger),
		logger:        logger,
	}, nil
}

func newMailer(cfg *config.Config, logger *slog.Logger) (mailer.Mailer, error) {
	if cfg.Mail.Provider == config.MailPostmark {
		return mailer.NewPostmarkMailer(cfg.Mail.PostmarkServerToken, cfg.Mail.PostmarkAccountToken, cfg.Mail.From)
	}
	transport := mailer.NewTransport(mailer.SMTPConfig{
		Host: cfg.Mail.SMTPHost,
		Port: cfg.Mail.SMTPPort,
		User: cfg.Mail.SMTPUser,
		Pass: cfg.Mail.SMTPPass,
	}, logger)
	return mailer.NewSMTPMailer(transport, cfg.Mail.From, logger), nil
}

func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.logger, a.ch, ActivatedQueue, a.senderService.HandleActivated)
	if err != nil {
		a.logger.Error("failed to start consumer", slog.String("queue", ActivatedQueue), sl.Err(err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	return nil
}
