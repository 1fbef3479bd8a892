package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage"
)

const paymentColumns = `id, user_id, order_id, payment_id, signature, amount, currency, status, plan_id, created_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p      models.Payment
		status string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.OrderID, &p.PaymentID, &p.Signature,
		&p.Amount, &p.Currency, &status, &p.PlanID, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Status = models.PaymentStatus(status)
	return &p, nil
}

// AppendPayment добавляет запись в платёжный журнал. Записи не изменяются
// и не удаляются. Повторный успешный paymentId отклоняется с ErrDuplicatePayment.
func (s *Storage) AppendPayment(ctx context.Context, p models.Payment) (string, error) {
	const op = "storage.AppendPayment"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `INSERT INTO payments (id, user_id, order_id, payment_id, signature, amount, currency, status, plan_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING id`
	var id string
	err := s.DB.QueryRowContext(ctx, query, p.ID, p.UserID, p.OrderID, p.PaymentID, p.Signature,
		p.Amount, p.Currency, string(p.Status), p.PlanID).Scan(&id)
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return "", fmt.Errorf("%s: %w", op, storage.ErrDuplicatePayment)
		case pgForeignKey, pgInvalidTextFormat:
			return "", fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// FindSuccessfulPayment ищет успешную запись по идентификатору платежа шлюза.
func (s *Storage) FindSuccessfulPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	const op = "storage.FindSuccessfulPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + paymentColumns + ` FROM payments
			  WHERE payment_id = $1 AND status = 'success'`
	p, err := scanPayment(s.DB.QueryRowContext(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// LatestSuccessfulPayment возвращает последнюю успешную запись пользователя.
func (s *Storage) LatestSuccessfulPayment(ctx context.Context, userID string) (*models.Payment, error) {
	const op = "storage.LatestSuccessfulPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + paymentColumns + ` FROM payments
			  WHERE user_id = $1 AND status = 'success'
			  ORDER BY created_at DESC
			  LIMIT 1`
	p, err := scanPayment(s.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || pgCode(err) == pgInvalidTextFormat {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// ListPayments возвращает историю платежей пользователя, новые первыми.
func (s *Storage) ListPayments(ctx context.Context, userID string) ([]models.Payment, error) {
	const op = "storage.ListPayments"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + paymentColumns + ` FROM payments
			  WHERE user_id = $1
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]models.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
