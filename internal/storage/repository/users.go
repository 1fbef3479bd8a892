package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage"
)

const userColumns = `id, name, email, COALESCE(phone, ''), password_hash,
	subscription_status, subscription_expires_at, plan_id, plan_amount,
	last_payment_id, version, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u         models.User
		status    string
		expiresAt sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash,
		&status, &expiresAt, &u.Entitlement.PlanID, &u.Entitlement.Amount,
		&u.Entitlement.PaymentID, &u.Version, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Entitlement.State = models.SubscriptionState(status)
	if expiresAt.Valid {
		u.Entitlement.ExpiresAt = expiresAt.Time.UTC()
	}
	return &u, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// CreateUser сохраняет нового пользователя без подписки и возвращает его ID.
func (s *Storage) CreateUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.CreateUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	query := `INSERT INTO users (id, name, email, phone, password_hash, subscription_status)
			  VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
			  RETURNING id`
	var id string
	err := s.DB.QueryRowContext(ctx, query, user.ID, user.Name, user.Email, user.Phone,
		user.PasswordHash, models.StateUnsubscribed).Scan(&id)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return "", fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// GetUser возвращает пользователя по ID.
func (s *Storage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	row := s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || pgCode(err) == pgInvalidTextFormat {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByEmail возвращает пользователя по адресу почты.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	row := s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdateProfile меняет имя и телефон пользователя. Поля подписки не затрагиваются,
// версия увеличивается.
func (s *Storage) UpdateProfile(ctx context.Context, userID, name, phone string) (*models.User, error) {
	const op = "storage.UpdateProfile"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET name = $2, phone = NULLIF($3, ''), version = version + 1
			  WHERE id = $1
			  RETURNING ` + userColumns
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userID, name, phone))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows), pgCode(err) == pgInvalidTextFormat:
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		case pgCode(err) == pgUniqueViolation:
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// SaveEntitlement записывает состояние подписки, если версия записи равна
// expectedVersion, и возвращает новую версию.
func (s *Storage) SaveEntitlement(ctx context.Context, userID string, expectedVersion int64, e models.Entitlement) (int64, error) {
	const op = "storage.SaveEntitlement"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	if err := e.Validate(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	query := `UPDATE users
			  SET subscription_status = $3,
			      subscription_expires_at = $4,
			      plan_id = $5,
			      plan_amount = $6,
			      last_payment_id = $7,
			      version = version + 1
			  WHERE id = $1 AND version = $2
			  RETURNING version`
	var newVersion int64
	err := s.DB.QueryRowContext(ctx, query, userID, expectedVersion, string(e.State),
		nullTime(e.ExpiresAt), e.PlanID, e.Amount, e.PaymentID).Scan(&newVersion)
	if err == nil {
		return newVersion, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		if pgCode(err) == pgInvalidTextFormat {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var exists bool
	if err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return 0, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	return 0, fmt.Errorf("%s: %w", op, storage.ErrVersionConflict)
}
