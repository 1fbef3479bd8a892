package policysummarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/policy-summarizer/internal/config"
	"github.com/magabrotheeeer/policy-summarizer/internal/entitlement"
	"github.com/magabrotheeeer/policy-summarizer/internal/gateway"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/middlewarectx"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/jwt"
	"github.com/magabrotheeeer/policy-summarizer/internal/metrics"
	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/auth"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/feedback"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/payment"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/summary"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage"
)

type memStore struct {
	mu        sync.Mutex
	seq       int
	users     map[string]*models.User
	payments  []models.Payment
	summaries []models.Summary
	feedback  []models.Feedback
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{users: map[string]*models.User{}}
}

func (m *memStore) nextID() string {
	m.seq++
	return strconv.Itoa(m.seq)
}

func (m *memStore) CreateUser(_ context.Context, u models.User) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return "", storage.ErrUserExists
		}
	}
	u.ID = m.nextID()
	u.CreatedAt = time.Now().UTC()
	m.users[u.ID] = &u
	return u.ID, nil
}

func (m *memStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (m *memStore) UpdateProfile(_ context.Context, userID, name, phone string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	u.Name, u.Phone = name, phone
	cp := *u
	return &cp, nil
}

func (m *memStore) SaveEntitlement(_ context.Context, userID string, expectedVersion int64, e models.Entitlement) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, storage.ErrUserNotFound
	}
	if u.Version != expectedVersion {
		return 0, storage.ErrVersionConflict
	}
	u.Entitlement = e
	u.Version++
	return u.Version, nil
}

func (m *memStore) AppendPayment(_ context.Context, p models.Payment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Status == models.PaymentSuccess {
		for _, existing := range m.payments {
			if existing.Status == models.PaymentSuccess && existing.PaymentID == p.PaymentID {
				return "", storage.ErrDuplicatePayment
			}
		}
	}
	p.ID = m.nextID()
	m.payments = append(m.payments, p)
	return p.ID, nil
}

func (m *memStore) FindSuccessfulPayment(_ context.Context, paymentID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.Status == models.PaymentSuccess && p.PaymentID == paymentID {
			cp := p
			return &cp, nil
		}
	}
	return nil, storage.ErrPaymentNotFound
}

func (m *memStore) LatestSuccessfulPayment(_ context.Context, userID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.payments) - 1; i >= 0; i-- {
		p := m.payments[i]
		if p.Status == models.PaymentSuccess && p.UserID == userID {
			return &p, nil
		}
	}
	return nil, storage.ErrPaymentNotFound
}

func (m *memStore) ListPayments(_ context.Context, userID string) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) CreateSummary(_ context.Context, s models.Summary) (*models.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.nextID()
	m.summaries = append(m.summaries, s)
	return &s, nil
}

func (m *memStore) ListSummaries(_ context.Context, userID string) ([]models.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Summary
	for _, s := range m.summaries {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (m *memStore) CreateFeedback(_ context.Context, f models.Feedback) (*models.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = m.nextID()
	m.feedback = append(m.feedback, f)
	return &f, nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error { return nil }

type testEnv struct {
	router http.Handler
	gw     *gateway.Client
	store  *memStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemStore()
	m := metrics.New(prometheus.NewRegistry())
	engine := entitlement.NewEngine(store, store, entitlement.NewCatalog(toPlans(config.DefaultPlans())), log)
	gw := gateway.NewClient("rzp_test_key", "secret", "http://127.0.0.1:0", time.Second)

	router := chi.NewRouter()
	RegisterRoutes(router, log, Services{
		Auth:     auth.New(log, store, engine, jwt.NewJWTMaker("test-secret", time.Hour), nil),
		Payment:  payment.New(log, gw, engine, store, store, "INR", payment.WithMetrics(m)),
		Summary:  summary.New(store),
		Feedback: feedback.New(store),
		Gate:     engine,
		Metrics:  m,
		Limiter:  middlewarectx.NewRateLimiter(1000, 1000),
		Health:   store,
	})
	return &testEnv{router: router, gw: gw, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) signUp(t *testing.T, email string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name":     "Asha",
		"email":    email,
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		AuthToken string `json:"authToken"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AuthToken)
	return resp.AuthToken
}

func TestRoutes_PaywallFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "asha@example.com")

	rr := env.do(t, http.MethodGet, "/api/summary/getall", token, nil)
	assert.Equal(t, http.StatusPaymentRequired, rr.Code)
	assert.JSONEq(t, `{"status":"Error","error":"payment required"}`, rr.Body.String())

	rr = env.do(t, http.MethodGet, "/api/payment/check-subscription", token, nil)
	assert.Equal(t, http.StatusPaymentRequired, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/payment/verify-payment", token, map[string]any{
		"orderId":   "order_1",
		"paymentId": "pay_1",
		"signature": "deadbeef",
		"amount":    49,
		"currency":  "INR",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"status":"failure"}`, rr.Body.String())

	rr = env.do(t, http.MethodPost, "/api/payment/verify-payment", token, map[string]any{
		"orderId":   "order_1",
		"paymentId": "pay_1",
		"signature": env.gw.Sign("order_1", "pay_1"),
		"amount":    49,
		"currency":  "INR",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var verified struct {
		Status    string     `json:"status"`
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &verified))
	assert.Equal(t, "success", verified.Status)
	require.NotNil(t, verified.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(entitlement.DefaultWindow), *verified.ExpiresAt, time.Minute)

	rr = env.do(t, http.MethodGet, "/api/payment/check-subscription", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var status payment.SubscriptionStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "subscribed", status.Status)
	assert.Equal(t, int64(49), status.Amount)

	rr = env.do(t, http.MethodPost, "/api/summary/add", token, map[string]any{"summaryText": "short policy"})
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = env.do(t, http.MethodGet, "/api/summary/getall", token, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "short policy")

	rr = env.do(t, http.MethodGet, "/api/payment/list", token, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, env.store.payments, 2)
}

func TestRoutes_Auth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/payment/get-key", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	token := env.signUp(t, "ravi@example.com")

	rr = env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name":     "Ravi",
		"email":    "ravi@example.com",
		"password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ravi@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/payment/get-key", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"key":"rzp_test_key"`)
	assert.NotContains(t, rr.Body.String(), "secret")

	rr = env.do(t, http.MethodPost, "/api/auth/getuser", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ravi@example.com")
	assert.NotContains(t, rr.Body.String(), "PasswordHash")
}

func TestRoutes_Operational(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestToPlans(t *testing.T) {
	plans := toPlans([]config.Plan{{ID: "basic", Name: "Basic", Price: 49, Currency: "INR", Interval: "monthly"}})
	require.Len(t, plans, 1)
	assert.Equal(t, models.Plan{ID: "basic", Name: "Basic", Price: 49, Currency: "INR", Interval: "monthly"}, plans[0])
}
