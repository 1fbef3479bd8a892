package signup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/policy-summarizer/internal/services/auth"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) SignUp(ctx context.Context, in auth.SignUpInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestHandler_ServeHTTP(t *testing.T) {
	input := auth.SignUpInput{Name: "Ann", Email: "ann@example.com", Password: "secret1"}

	tests := []struct {
		name       string
		body       string
		setupMocks func(m *ServiceMock)
		wantCode   int
		wantKey    string
	}{
		{
			name: "success",
			body: `{"name":"Ann","email":"ann@example.com","password":"secret1"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("SignUp", mock.Anything, input).Return("tok", nil).Once()
			},
			wantCode: http.StatusOK,
			wantKey:  "authToken",
		},
		{
			name: "duplicate email",
			body: `{"name":"Ann","email":"ann@example.com","password":"secret1"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("SignUp", mock.Anything, input).Return("", fmt.Errorf("auth.SignUp: %w", storage.ErrUserExists)).Once()
			},
			wantCode: http.StatusConflict,
			wantKey:  "error",
		},
		{
			name:       "short password",
			body:       `{"name":"Ann","email":"ann@example.com","password":"123"}`,
			setupMocks: func(_ *ServiceMock) {},
			wantCode:   http.StatusUnprocessableEntity,
			wantKey:    "error",
		},
		{
			name:       "bad email",
			body:       `{"name":"Ann","email":"nope","password":"secret1"}`,
			setupMocks: func(_ *ServiceMock) {},
			wantCode:   http.StatusUnprocessableEntity,
			wantKey:    "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &ServiceMock{}
			tt.setupMocks(svc)

			req := httptest.NewRequest(http.MethodPost, "/auth/signup", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			New(newNoopLogger(), svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			var got map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.NotEmpty(t, got[tt.wantKey])
			svc.AssertExpectations(t)
		})
	}
}
