package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strings"

	"github.com/magabrotheeeer/policy-summarizer/internal/lib/sl"
)

// Client подмножество методов *smtp.Client, используемое при отправке.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// Dialer открывает аутентифицированную SMTP-сессию.
type Dialer interface {
	Connect(ctx context.Context) (Client, error)
}

// SMTPConfig параметры SMTP-сервера.
type SMTPConfig struct {
	Host string
	Port string
	User string
	Pass string
}

// Transport подключается к SMTP-серверу через STARTTLS и PLAIN-аутентификацию.
type Transport struct {
	cfg SMTPConfig
	log *slog.Logger
}

// NewTransport создаёт SMTP-транспорт.
func NewTransport(cfg SMTPConfig, log *slog.Logger) *Transport {
	return &Transport{cfg: cfg, log: log}
}

// Connect устанавливает соединение и возвращает готового к отправке клиента.
func (t *Transport) Connect(ctx context.Context) (Client, error) {
	const op = "mailer.Transport.Connect"
	log := t.log.With(slog.String("op", op))
	addr := net.JoinHostPort(t.cfg.Host, t.cfg.Port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		log.Error("failed to dial SMTP server", sl.Err(err))
		return nil, fmt.Errorf("%s: dial: %w", op, err)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		log.Error("failed to create SMTP client", sl.Err(err))
		if closeErr := conn.Close(); closeErr != nil {
			log.Error("failed to close connection", sl.Err(closeErr))
		}
		return nil, fmt.Errorf("%s: new client: %w", op, err)
	}

	fail := func(stage string, err error) (Client, error) {
		log.Error("smtp "+stage+" failed", sl.Err(err))
		if closeErr := client.Close(); closeErr != nil {
			log.Error("failed to close client", sl.Err(closeErr))
		}
		return nil, fmt.Errorf("%s: %s: %w", op, stage, err)
	}

	if ok, _ := client.Extension("STARTTLS"); !ok {
		return fail("starttls", fmt.Errorf("server does not support STARTTLS"))
	}
	if err := client.StartTLS(&tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
		return fail("starttls", err)
	}
	if err := client.Auth(smtp.PlainAuth("", t.cfg.User, t.cfg.Pass, t.cfg.Host)); err != nil {
		return fail("auth", err)
	}

	return client, nil
}

// SMTPMailer отправляет письма через Dialer.
type SMTPMailer struct {
	dialer Dialer
	from   string
	log    *slog.Logger
}

// NewSMTPMailer создаёт отправителя писем поверх SMTP.
func NewSMTPMailer(dialer Dialer, from string, log *slog.Logger) *SMTPMailer {
	return &SMTPMailer{dialer: dialer, from: from, log: log}
}

// Send отправляет письмо одной SMTP-сессией.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	const op = "mailer.SMTPMailer.Send"
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	client, err := m.dialer.Connect(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrSendFailed, err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			m.log.Debug("smtp client close", sl.Err(err))
		}
	}()

	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("%s: %w: mail from: %w", op, ErrSendFailed, err)
	}
	for _, to := range msg.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("%s: %w: rcpt %s: %w", op, ErrSendFailed, to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("%s: %w: data: %w", op, ErrSendFailed, err)
	}
	if _, err := io.WriteString(w, m.compose(msg)); err != nil {
		_ = w.Close()
		return fmt.Errorf("%s: %w: write: %w", op, ErrSendFailed, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%s: %w: close data: %w", op, ErrSendFailed, err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("%s: %w: quit: %w", op, ErrSendFailed, err)
	}
	return nil
}

func (m *SMTPMailer) compose(msg Message) string {
	return strings.Join([]string{
		"From: " + m.from,
		"To: " + strings.Join(msg.To, ", "),
		"Subject: " + msg.Subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		msg.Body,
	}, "\r\n")
}
