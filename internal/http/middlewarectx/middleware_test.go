package middlewarectx_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/policy-summarizer/internal/entitlement"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/middlewarectx"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/response"
	"github.com/magabrotheeeer/policy-summarizer/internal/models"
)

type ValidatorMock struct {
	mock.Mock
}

func (m *ValidatorMock) ValidateToken(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

type GateMock struct {
	mock.Mock
}

func (m *GateMock) Require(ctx context.Context, userID string) (entitlement.Decision, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(entitlement.Decision), args.Error(1)
}

type countingMetrics struct {
	reasons []string
}

func (c *countingMetrics) GateDecision(reason string) {
	c.reasons = append(c.reasons, reason)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestJWTMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		authHeader     string
		setupMocks     func(m *ValidatorMock)
		wantStatusCode int
		wantCalled     bool
	}{
		{
			name:           "missing Authorization header",
			setupMocks:     func(_ *ValidatorMock) {},
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "invalid Authorization header prefix",
			authHeader:     "Basic sometoken",
			setupMocks:     func(_ *ValidatorMock) {},
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:       "token validation error",
			authHeader: "Bearer token",
			setupMocks: func(m *ValidatorMock) {
				m.On("ValidateToken", "token").Return("", errors.New("expired")).Once()
			},
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:       "valid token",
			authHeader: "Bearer validtoken",
			setupMocks: func(m *ValidatorMock) {
				m.On("ValidateToken", "validtoken").Return("user-1", nil).Once()
			},
			wantStatusCode: http.StatusOK,
			wantCalled:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &ValidatorMock{}
			tt.setupMocks(v)

			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				id, ok := middlewarectx.UserIDFrom(r.Context())
				assert.True(t, ok)
				assert.Equal(t, "user-1", id)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/somepath", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			middlewarectx.JWTMiddleware(v, newNoopLogger())(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantCalled, called)
			v.AssertExpectations(t)
		})
	}
}

func TestSubscriptionGate(t *testing.T) {
	active := entitlement.Decision{
		Entitlement: models.Active(time.Now().Add(time.Hour), "basic", 49, "p"),
		Reason:      entitlement.ReasonActive,
		Amount:      49,
	}

	tests := []struct {
		name       string
		userID     string
		decision   entitlement.Decision
		err        error
		wantStatus int
		wantCalled bool
	}{
		{
			name:       "active passes",
			userID:     "u1",
			decision:   active,
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "never subscribed",
			userID:     "u1",
			decision:   entitlement.Decision{Reason: entitlement.ReasonNeverSubscribed},
			err:        entitlement.ErrPaymentRequired,
			wantStatus: http.StatusPaymentRequired,
		},
		{
			name:       "expired",
			userID:     "u1",
			decision:   entitlement.Decision{Reason: entitlement.ReasonExpired},
			err:        entitlement.ErrPaymentRequired,
			wantStatus: http.StatusPaymentRequired,
		},
		{
			name:       "unknown user",
			userID:     "ghost",
			err:        entitlement.ErrUserNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "storage failure",
			userID:     "u1",
			err:        errors.New("db down"),
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "no user in context",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := &GateMock{}
			if tt.userID != "" {
				gate.On("Require", mock.Anything, tt.userID).Return(tt.decision, tt.err).Once()
			}
			metrics := &countingMetrics{}

			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/summary/getall", nil)
			if tt.userID != "" {
				req = req.WithContext(middlewarectx.WithUserID(req.Context(), tt.userID))
			}
			rec := httptest.NewRecorder()

			middlewarectx.SubscriptionGate(newNoopLogger(), gate, metrics)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalled, called)
			if tt.wantStatus == http.StatusPaymentRequired {
				var body response.ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "payment required", body.Error)
				assert.Equal(t, string(tt.decision.Reason), metrics.reasons[0])
			}
			if tt.userID != "" {
				assert.Len(t, metrics.reasons, 1)
			}
			gate.AssertExpectations(t)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := middlewarectx.NewRateLimiter(0.001, 2)
	h := limiter.Middleware(newNoopLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1002"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1000"))
}
