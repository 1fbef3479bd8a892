package sender_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/policy-summarizer/internal/lib/mailer"
	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/sender"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg mailer.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func event() models.EntitlementEvent {
	return models.EntitlementEvent{
		Type:      "subscription.activated",
		UserID:    "u1",
		Email:     "ann@example.com",
		Name:      "Ann",
		PlanID:    "premium",
		Amount:    499,
		Currency:  "INR",
		PaymentID: "pay_1",
		ExpiresAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestReceiptMessage(t *testing.T) {
	msg := sender.ReceiptMessage(event())

	assert.Equal(t, []string{"ann@example.com"}, msg.To)
	assert.Equal(t, sender.MailTag, msg.Tag)
	assert.Contains(t, msg.Body, "Hello, Ann!")
	assert.Contains(t, msg.Body, "499 INR for the premium plan")
	assert.Contains(t, msg.Body, "1 March 2025")
	assert.NoError(t, msg.Validate())
}

func TestService_HandleActivated(t *testing.T) {
	body, err := json.Marshal(event())
	require.NoError(t, err)

	tests := []struct {
		name       string
		body       []byte
		setupMocks func(m *MockMailer)
		wantErr    bool
	}{
		{
			name: "sent",
			body: body,
			setupMocks: func(m *MockMailer) {
				m.On("Send", mock.Anything, mock.MatchedBy(func(msg mailer.Message) bool {
					return msg.To[0] == "ann@example.com"
				})).Return(nil).Once()
			},
		},
		{
			name: "delivery failure is retried",
			body: body,
			setupMocks: func(m *MockMailer) {
				m.On("Send", mock.Anything, mock.Anything).Return(mailer.ErrSendFailed).Once()
			},
			wantErr: true,
		},
		{
			name:       "malformed body is dropped",
			body:       []byte("{not json"),
			setupMocks: func(_ *MockMailer) {},
		},
		{
			name:       "event without email is dropped",
			body:       []byte(`{"user_id":"u1","payment_id":"p"}`),
			setupMocks: func(_ *MockMailer) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockMailer{}
			tt.setupMocks(m)

			err := sender.New(m, newNoopLogger()).HandleActivated(tt.body)
			if tt.wantErr {
				assert.True(t, errors.Is(err, mailer.ErrSendFailed))
			} else {
				assert.NoError(t, err)
			}
			m.AssertExpectations(t)
		})
	}
}
