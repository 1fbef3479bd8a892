// Package auth содержит логику регистрации, входа и работы с профилем пользователя.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/policy-summarizer/internal/cache"
	"github.com/magabrotheeeer/policy-summarizer/internal/entitlement"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/jwt"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/password"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/sl"
	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage"
)

// ErrInvalidCredentials возвращается при неверной паре email/пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ProfileTTL максимальное время жизни профиля в кэше.
const ProfileTTL = 10 * time.Minute

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	// CreateUser сохраняет нового пользователя и возвращает его ID.
	CreateUser(ctx context.Context, user models.User) (string, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID, name, phone string) (*models.User, error)
}

// Entitlements сверяет подписку со временем перед отдачей профиля.
type Entitlements interface {
	Observe(ctx context.Context, userID string) (entitlement.Decision, error)
}

// Cache хранит профили пользователей.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Service отвечает за регистрацию, авторизацию и валидацию JWT.
type Service struct {
	log          *slog.Logger
	users        UserRepository
	entitlements Entitlements
	jwtMaker     jwt.Maker
	cache        Cache
	now          func() time.Time
}

// New создаёт сервис. cache может быть nil, тогда профиль всегда читается из хранилища.
func New(log *slog.Logger, users UserRepository, entitlements Entitlements, jwtMaker jwt.Maker, c Cache) *Service {
	return &Service{
		log:          log,
		users:        users,
		entitlements: entitlements,
		jwtMaker:     jwtMaker,
		cache:        c,
		now:          time.Now,
	}
}

// SignUpInput данные регистрации.
type SignUpInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// SignUp создаёт пользователя без подписки и сразу выпускает токен.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (string, error) {
	const op = "auth.SignUp"

	hashed, err := password.GetHash(in.Password)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	id, err := s.users.CreateUser(ctx, models.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hashed,
		Entitlement:  models.Unsubscribed(),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	token, err := s.jwtMaker.GenerateToken(id)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// Login проверяет пароль и выпускает токен. Неизвестный email и неверный
// пароль неразличимы для клиента.
func (s *Service) Login(ctx context.Context, email, rawPassword string) (string, error) {
	const op = "auth.Login"

	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	token, err := s.jwtMaker.GenerateToken(user.ID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// ValidateToken проверяет JWT и возвращает идентификатор пользователя.
func (s *Service) ValidateToken(token string) (string, error) {
	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// Profile возвращает профиль пользователя. Профиль кэшируется не дольше
// ProfileTTL и не дольше момента окончания подписки.
func (s *Service) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	const op = "auth.Profile"
	log := s.log.With(slog.String("op", op), sl.UserID(userID))
	key := cache.UserKey(userID)

	if s.cache != nil {
		var cached models.Profile
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Warn("profile cache read failed", sl.Err(err))
		} else if found {
			return &cached, nil
		}
	}

	d, err := s.entitlements.Observe(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.Entitlement = d.Entitlement
	profile := user.Profile()

	if s.cache != nil {
		ttl := s.profileTTL(d.Entitlement)
		if err := s.cache.Set(ctx, key, profile, ttl); err != nil {
			log.Warn("profile cache write failed", sl.Err(err))
		}
	}
	return &profile, nil
}

func (s *Service) profileTTL(e models.Entitlement) time.Duration {
	if !e.IsSubscribed() {
		return ProfileTTL
	}
	left := e.ExpiresAt.Sub(s.now())
	if left < time.Second {
		return time.Second
	}
	return min(left, ProfileTTL)
}

// UpdateProfile меняет имя и телефон пользователя и сбрасывает кэш.
func (s *Service) UpdateProfile(ctx context.Context, userID, name, phone string) (*models.Profile, error) {
	const op = "auth.UpdateProfile"

	user, err := s.users.UpdateProfile(ctx, userID, strings.TrimSpace(name), strings.TrimSpace(phone))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, cache.UserKey(userID)); err != nil {
			s.log.Warn("profile cache invalidation failed", slog.String("op", op), sl.Err(err))
		}
	}
	if d, err := s.entitlements.Observe(ctx, userID); err == nil {
		user.Entitlement = d.Entitlement
	}
	profile := user.Profile()
	return &profile, nil
}
