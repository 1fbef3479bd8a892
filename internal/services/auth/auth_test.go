package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/policy-summarizer/internal/entitlement"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/jwt"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/password"
	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/auth"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage"
)

// Мок для UserRepository
type UserRepoMock struct {
	mock.Mock
}

func (m *UserRepoMock) CreateUser(ctx context.Context, user models.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}

func (m *UserRepoMock) GetUser(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) UpdateProfile(ctx context.Context, userID, name, phone string) (*models.User, error) {
	args := m.Called(ctx, userID, name, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type EntitlementsMock struct {
	mock.Mock
}

func (m *EntitlementsMock) Observe(ctx context.Context, userID string) (entitlement.Decision, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(entitlement.Decision), args.Error(1)
}

// mapCache кэш в памяти с запоминанием TTL.
type mapCache struct {
	items map[string]models.Profile
	ttls  map[string]time.Duration
}

func newMapCache() *mapCache {
	return &mapCache{items: map[string]models.Profile{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) Get(_ context.Context, key string, result any) (bool, error) {
	p, ok := c.items[key]
	if !ok {
		return false, nil
	}
	*result.(*models.Profile) = p
	return true, nil
}

func (c *mapCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	c.items[key] = value.(models.Profile)
	c.ttls[key] = ttl
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, key string) error {
	delete(c.items, key)
	return nil
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

const secret = "test-secret"

func TestService_SignUp(t *testing.T) {
	ctx := context.Background()
	maker := jwt.NewJWTMaker(secret, time.Hour)

	t.Run("success", func(t *testing.T) {
		repo := &UserRepoMock{}
		repo.On("CreateUser", ctx, mock.MatchedBy(func(u models.User) bool {
			return u.Email == "ann@example.com" && u.Name == "Ann" &&
				u.Entitlement.State == models.StateUnsubscribed &&
				password.CompareHash(u.PasswordHash, "secret123") == nil
		})).Return("user-1", nil)

		svc := auth.New(newNoopLogger(), repo, &EntitlementsMock{}, maker, nil)
		token, err := svc.SignUp(ctx, auth.SignUpInput{Name: " Ann ", Email: "Ann@Example.com", Password: "secret123"})
		require.NoError(t, err)

		id, err := svc.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", id)
	})

	t.Run("duplicate", func(t *testing.T) {
		repo := &UserRepoMock{}
		repo.On("CreateUser", ctx, mock.Anything).Return("", storage.ErrUserExists)

		svc := auth.New(newNoopLogger(), repo, &EntitlementsMock{}, maker, nil)
		_, err := svc.SignUp(ctx, auth.SignUpInput{Name: "Ann", Email: "a@b.c", Password: "secret123"})
		assert.ErrorIs(t, err, storage.ErrUserExists)
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	maker := jwt.NewJWTMaker(secret, time.Hour)
	hash, err := password.GetHash("secret123")
	require.NoError(t, err)

	tests := []struct {
		name       string
		password   string
		setupMocks func(r *UserRepoMock)
		wantErr    error
	}{
		{
			name:     "success",
			password: "secret123",
			setupMocks: func(r *UserRepoMock) {
				r.On("GetUserByEmail", ctx, "a@b.c").Return(&models.User{ID: "u1", PasswordHash: hash}, nil)
			},
		},
		{
			name:     "wrong password",
			password: "nope",
			setupMocks: func(r *UserRepoMock) {
				r.On("GetUserByEmail", ctx, "a@b.c").Return(&models.User{ID: "u1", PasswordHash: hash}, nil)
			},
			wantErr: auth.ErrInvalidCredentials,
		},
		{
			name:     "unknown email",
			password: "secret123",
			setupMocks: func(r *UserRepoMock) {
				r.On("GetUserByEmail", ctx, "a@b.c").Return(nil, storage.ErrUserNotFound)
			},
			wantErr: auth.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &UserRepoMock{}
			tt.setupMocks(repo)
			svc := auth.New(newNoopLogger(), repo, &EntitlementsMock{}, maker, nil)

			token, err := svc.Login(ctx, "A@B.c", tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, token)
		})
	}
}

func TestService_ValidateToken_Invalid(t *testing.T) {
	svc := auth.New(newNoopLogger(), &UserRepoMock{}, &EntitlementsMock{}, jwt.NewJWTMaker(secret, time.Hour), nil)
	_, err := svc.ValidateToken("garbage")
	assert.Error(t, err)
}

func TestService_Profile_CachedUntilExpiry(t *testing.T) {
	ctx := context.Background()
	repo := &UserRepoMock{}
	ents := &EntitlementsMock{}
	c := newMapCache()
	expires := time.Now().Add(3 * time.Minute)
	ent := models.Active(expires, "basic", 49, "pay_1")

	repo.On("GetUser", ctx, "u1").Return(&models.User{ID: "u1", Name: "Ann", Email: "a@b.c", PasswordHash: "hash"}, nil).Once()
	ents.On("Observe", ctx, "u1").Return(entitlement.Decision{Entitlement: ent, Reason: entitlement.ReasonActive}, nil).Once()

	svc := auth.New(newNoopLogger(), repo, ents, jwt.NewJWTMaker(secret, time.Hour), c)

	p, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.IsSubscribed)
	assert.Equal(t, "basic", p.PlanID)
	assert.LessOrEqual(t, c.ttls["user:u1"], 3*time.Minute)

	again, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	repo.AssertNumberOfCalls(t, "GetUser", 1)
}

func TestService_Profile_Errors(t *testing.T) {
	ctx := context.Background()
	repo := &UserRepoMock{}
	ents := &EntitlementsMock{}
	ents.On("Observe", ctx, "ghost").Return(entitlement.Decision{}, entitlement.ErrUserNotFound)

	svc := auth.New(newNoopLogger(), repo, ents, jwt.NewJWTMaker(secret, time.Hour), newMapCache())
	_, err := svc.Profile(ctx, "ghost")
	assert.ErrorIs(t, err, entitlement.ErrUserNotFound)
}

func TestService_UpdateProfile_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	repo := &UserRepoMock{}
	ents := &EntitlementsMock{}
	c := newMapCache()
	c.items["user:u1"] = models.Profile{ID: "u1", Name: "Old"}

	repo.On("UpdateProfile", ctx, "u1", "New", "+911").Return(&models.User{ID: "u1", Name: "New", Phone: "+911"}, nil)
	ents.On("Observe", ctx, "u1").Return(entitlement.Decision{Entitlement: models.Unsubscribed()}, nil)

	svc := auth.New(newNoopLogger(), repo, ents, jwt.NewJWTMaker(secret, time.Hour), c)
	p, err := svc.UpdateProfile(ctx, "u1", " New ", "+911")
	require.NoError(t, err)
	assert.Equal(t, "New", p.Name)
	assert.NotContains(t, c.items, "user:u1")

	repo.On("UpdateProfile", ctx, "u2", "X", "").Return(nil, errors.New("db down"))
	_, err = svc.UpdateProfile(ctx, "u2", "X", "")
	assert.Error(t, err)
}
