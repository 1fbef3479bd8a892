// Package payment связывает платёжный шлюз, движок доступа и платёжный
// журнал: создаёт заказы, проверяет подписанные платежи и отвечает
// на запросы о статусе подписки.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/policy-summarizer/internal/cache"
	"github.com/magabrotheeeer/policy-summarizer/internal/entitlement"
	"github.com/magabrotheeeer/policy-summarizer/internal/gateway"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/sl"
	"github.com/magabrotheeeer/policy-summarizer/internal/metrics"
	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage"
)

var (
	// ErrSignatureMismatch подпись платежа не прошла проверку.
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	// ErrUnknownPlan запрошен тариф, которого нет в прайс-листе.
	ErrUnknownPlan = errors.New("unknown plan")
)

// StatusSubscribed значение поля status активной подписки.
const StatusSubscribed = "subscribed"

// EventSubscriptionActivated тип события об активации подписки.
const EventSubscriptionActivated = "subscription.activated"

// Gateway платёжный шлюз.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency string) (*models.Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
	KeyID() string
}

// Engine движок доступа.
type Engine interface {
	Require(ctx context.Context, userID string) (entitlement.Decision, error)
	Activate(ctx context.Context, userID string, g entitlement.Grant) (models.Entitlement, error)
	Quote(ctx context.Context, userID string, plan models.Plan) (int64, error)
	ResolvePlan(ctx context.Context, userID, planID string, amount int64) (models.Plan, bool, error)
	Plan(id string) (models.Plan, bool)
	Plans() []models.Plan
}

// Ledger платёжный журнал.
type Ledger interface {
	AppendPayment(ctx context.Context, p models.Payment) (string, error)
	FindSuccessfulPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	LatestSuccessfulPayment(ctx context.Context, userID string) (*models.Payment, error)
	ListPayments(ctx context.Context, userID string) ([]models.Payment, error)
}

// Users чтение пользователей для событий.
type Users interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// Publisher публикует события в шину.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Invalidator сбрасывает закэшированный профиль.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// Metrics учитывает исходы операций.
type Metrics interface {
	PaymentVerified(result string)
	OrderCreated(ok bool)
}

// CreateOrderInput параметры заказа. Amount в основных единицах валюты.
type CreateOrderInput struct {
	Amount   int64
	Currency string
	PlanID   string
}

// VerifyInput данные платежа, вернувшиеся из окна оплаты. Amount и Currency
// не проверены и записываются только для учёта.
type VerifyInput struct {
	OrderID   string
	PaymentID string
	Signature string
	Amount    int64
	Currency  string
	PlanID    string
}

// VerifyResult итог проверки платежа.
type VerifyResult struct {
	Entitlement models.Entitlement
	Replay      bool
}

// SubscriptionStatus ответ на запрос статуса подписки.
type SubscriptionStatus struct {
	Status    string    `json:"status"`
	Amount    int64     `json:"amount"`
	PlanID    string    `json:"planId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service сервис платежей.
type Service struct {
	log       *slog.Logger
	gateway   Gateway
	engine    Engine
	ledger    Ledger
	users     Users
	currency  string
	publisher Publisher
	cache     Invalidator
	metrics   Metrics
}

// Option настраивает Service.
type Option func(*Service)

// WithPublisher включает публикацию событий об активации.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithCache включает сброс кэша профиля после активации.
func WithCache(c Invalidator) Option {
	return func(s *Service) { s.cache = c }
}

// WithMetrics включает учёт метрик.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New создаёт сервис платежей. currency используется, если клиент её не указал.
func New(log *slog.Logger, gw Gateway, engine Engine, ledger Ledger, users Users, currency string, opts ...Option) *Service {
	s := &Service{
		log:      log,
		gateway:  gw,
		engine:   engine,
		ledger:   ledger,
		users:    users,
		currency: currency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) currencyOr(c string) string {
	if c == "" {
		return s.currency
	}
	return c
}

// CreateOrder создаёт заказ в шлюзе. Если указан тариф, сумма берётся из
// прайс-листа с учётом доплаты при апгрейде, иначе из запроса.
func (s *Service) CreateOrder(ctx context.Context, userID string, in CreateOrderInput) (*models.Order, error) {
	const op = "payment.CreateOrder"

	amount := in.Amount
	currency := s.currencyOr(in.Currency)
	if in.PlanID != "" {
		plan, ok := s.engine.Plan(in.PlanID)
		if !ok {
			return nil, fmt.Errorf("%s: %w: %s", op, ErrUnknownPlan, in.PlanID)
		}
		charge, err := s.engine.Quote(ctx, userID, plan)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		amount = charge
		if plan.Currency != "" {
			currency = plan.Currency
		}
	}

	order, err := s.gateway.CreateOrder(ctx, amount*100, currency)
	if s.metrics != nil {
		s.metrics.OrderCreated(err == nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

// VerifyPayment проверяет подпись платежа и при успехе продлевает подписку.
// Доступ выдаётся только при совпадении подписи. Запись об успешном платеже
// в журнале служит захватом paymentId: подписка продлевается только после
// неё, поэтому один платёж не может открыть доступ двум пользователям.
func (s *Service) VerifyPayment(ctx context.Context, userID string, in VerifyInput) (*VerifyResult, error) {
	const op = "payment.VerifyPayment"
	log := s.log.With(slog.String("op", op), sl.UserID(userID), slog.String("payment_id", in.PaymentID))
	currency := s.currencyOr(in.Currency)

	if !s.gateway.VerifySignature(in.OrderID, in.PaymentID, in.Signature) {
		s.observe(metrics.VerifyFailure)
		s.recordFailure(ctx, log, userID, in, currency)
		return nil, fmt.Errorf("%s: %w", op, ErrSignatureMismatch)
	}

	planID, nominal := "", in.Amount
	plan, ok, err := s.engine.ResolvePlan(ctx, userID, in.PlanID, in.Amount)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		planID, nominal = plan.ID, plan.Price
	} else if in.PlanID != "" {
		log.Warn("verified payment references unknown plan", slog.String("plan_id", in.PlanID))
	}

	_, err = s.ledger.AppendPayment(ctx, models.Payment{
		UserID:    userID,
		OrderID:   in.OrderID,
		PaymentID: in.PaymentID,
		Signature: in.Signature,
		Amount:    nominal,
		Currency:  currency,
		Status:    models.PaymentSuccess,
		PlanID:    planID,
	})
	switch {
	case errors.Is(err, storage.ErrDuplicatePayment):
		res, err := s.replay(ctx, log, userID, in.PaymentID, currency)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return res, nil
	case err != nil:
		log.Error("failed to record verified payment", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ent, err := s.activate(ctx, log, userID, entitlement.Grant{PlanID: planID, Amount: nominal, PaymentID: in.PaymentID}, currency)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &VerifyResult{Entitlement: ent}, nil
}

// replay обрабатывает paymentId, уже записанный в журнал. Чужой платёж
// отклоняется. Свой платёж подписку не продлевает, кроме случая, когда
// прошлая активация по нему не завершилась и более поздних платежей нет.
func (s *Service) replay(ctx context.Context, log *slog.Logger, userID, paymentID, currency string) (*VerifyResult, error) {
	const op = "payment.replay"
	existing, err := s.ledger.FindSuccessfulPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if existing.UserID != userID {
		log.Warn("payment already credited to another user", slog.String("owner", existing.UserID))
		s.observe(metrics.VerifyFailure)
		return nil, fmt.Errorf("%s: %w", op, ErrSignatureMismatch)
	}

	d, err := s.engine.Require(ctx, userID)
	if err != nil && !errors.Is(err, entitlement.ErrPaymentRequired) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if d.Entitlement.PaymentID != paymentID {
		latest, err := s.ledger.LatestSuccessfulPayment(ctx, userID)
		switch {
		case err == nil && latest.PaymentID == paymentID:
			log.Warn("resuming activation for recorded payment")
			ent, err := s.activate(ctx, log, userID, entitlement.Grant{
				PlanID:    existing.PlanID,
				Amount:    existing.Amount,
				PaymentID: existing.PaymentID,
			}, currency)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			return &VerifyResult{Entitlement: ent}, nil
		case err != nil && !errors.Is(err, storage.ErrPaymentNotFound):
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	log.Info("payment replay ignored")
	s.observe(metrics.VerifyReplay)
	return &VerifyResult{Entitlement: d.Entitlement, Replay: true}, nil
}

// activate продлевает подписку по записанному платежу и оповещает о ней.
// Ошибка после записи в журнал не теряет платёж: повтор того же paymentId
// завершит активацию.
func (s *Service) activate(ctx context.Context, log *slog.Logger, userID string, g entitlement.Grant, currency string) (models.Entitlement, error) {
	ent, err := s.engine.Activate(ctx, userID, g)
	if err != nil {
		log.Error("payment recorded but activation failed", sl.Err(err))
		return models.Entitlement{}, err
	}

	s.observe(metrics.VerifySuccess)
	s.publishActivated(ctx, log, userID, ent, currency)
	s.invalidate(ctx, log, userID)
	return ent, nil
}

func (s *Service) recordFailure(ctx context.Context, log *slog.Logger, userID string, in VerifyInput, currency string) {
	_, err := s.ledger.AppendPayment(ctx, models.Payment{
		UserID:    userID,
		OrderID:   in.OrderID,
		PaymentID: in.PaymentID,
		Signature: in.Signature,
		Amount:    in.Amount,
		Currency:  currency,
		Status:    models.PaymentFailure,
		PlanID:    in.PlanID,
	})
	if err != nil {
		log.Warn("failed to record rejected payment", sl.Err(err))
	}
}

func (s *Service) publishActivated(ctx context.Context, log *slog.Logger, userID string, ent models.Entitlement, currency string) {
	if s.publisher == nil {
		return
	}
	event := models.EntitlementEvent{
		Type:       EventSubscriptionActivated,
		UserID:     userID,
		PlanID:     ent.PlanID,
		Amount:     ent.Amount,
		Currency:   currency,
		PaymentID:  ent.PaymentID,
		ExpiresAt:  ent.ExpiresAt,
		OccurredAt: time.Now().UTC(),
	}
	if u, err := s.users.GetUser(ctx, userID); err == nil {
		event.Email, event.Name = u.Email, u.Name
	} else {
		log.Warn("failed to load user for event", sl.Err(err))
	}
	if err := s.publisher.Publish(ctx, rabbitmq.RoutingKeyActivated, event); err != nil {
		log.Error("failed to publish activation event", sl.Err(err))
	}
}

func (s *Service) invalidate(ctx context.Context, log *slog.Logger, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.UserKey(userID)); err != nil {
		log.Warn("failed to invalidate profile cache", sl.Err(err))
	}
}

func (s *Service) observe(result string) {
	if s.metrics != nil {
		s.metrics.PaymentVerified(result)
	}
}

// CheckSubscription возвращает статус активной подписки. Для пользователя
// без подписки возвращается entitlement.ErrPaymentRequired вместе с решением.
func (s *Service) CheckSubscription(ctx context.Context, userID string) (*SubscriptionStatus, entitlement.Decision, error) {
	const op = "payment.CheckSubscription"
	d, err := s.engine.Require(ctx, userID)
	if err != nil {
		return nil, d, fmt.Errorf("%s: %w", op, err)
	}
	return &SubscriptionStatus{
		Status:    StatusSubscribed,
		Amount:    d.Amount,
		PlanID:    d.Entitlement.PlanID,
		ExpiresAt: d.Entitlement.ExpiresAt,
	}, d, nil
}

// ListPayments возвращает платёжную историю пользователя.
func (s *Service) ListPayments(ctx context.Context, userID string) ([]models.Payment, error) {
	const op = "payment.ListPayments"
	payments, err := s.ledger.ListPayments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return payments, nil
}

// PublicKey возвращает публичный ключ шлюза.
func (s *Service) PublicKey() string {
	return s.gateway.KeyID()
}

// Plans возвращает прайс-лист.
func (s *Service) Plans() []models.Plan {
	return s.engine.Plans()
}

var _ Gateway = (*gateway.Client)(nil)
var _ Engine = (*entitlement.Engine)(nil)
