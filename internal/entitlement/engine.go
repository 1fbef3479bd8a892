// Package entitlement управляет состоянием подписки пользователя:
// активирует и продлевает окно доступа после подтверждённого платежа,
// лениво снимает истёкшую подписку при чтении и принимает решение
// о допуске к платным функциям.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/policy-summarizer/internal/lib/keymutex"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/sl"
	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage"
)

// DefaultWindow длительность оплаченного периода.
const DefaultWindow = 30 * 24 * time.Hour

const maxCASAttempts = 3

var (
	// ErrPaymentRequired у пользователя нет активной подписки.
	ErrPaymentRequired = errors.New("payment required")
	// ErrUserNotFound запись пользователя отсутствует.
	ErrUserNotFound = errors.New("user not found")
	// ErrConcurrentUpdate запись пользователя менялась конкурентно дольше допустимого числа попыток.
	ErrConcurrentUpdate = errors.New("concurrent entitlement update")
)

// Reason объясняет решение о допуске. В ответ клиенту не попадает.
type Reason string

const (
	ReasonActive          Reason = "active"
	ReasonNeverSubscribed Reason = "never_subscribed"
	ReasonExpired         Reason = "expired"
)

// Decision результат наблюдения за состоянием подписки.
type Decision struct {
	Entitlement models.Entitlement
	Reason      Reason
	// Amount номинальная цена текущего тарифа, 0 без подписки.
	Amount int64
}

// Allowed сообщает, разрешён ли доступ к платным функциям.
func (d Decision) Allowed() bool {
	return d.Reason == ReasonActive
}

// Grant подтверждённый платёж, открывающий или продлевающий окно доступа.
type Grant struct {
	PlanID    string
	Amount    int64
	PaymentID string
}

// Store хранилище пользователей с записью по версии.
type Store interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	SaveEntitlement(ctx context.Context, userID string, expectedVersion int64, e models.Entitlement) (int64, error)
}

// Ledger платёжный журнал, нужен для вывода тарифа у записей без planId.
type Ledger interface {
	LatestSuccessfulPayment(ctx context.Context, userID string) (*models.Payment, error)
}

// Engine конечный автомат подписки. Все изменения состояния одного
// пользователя выполняются последовательно.
type Engine struct {
	store   Store
	ledger  Ledger
	catalog *Catalog
	log     *slog.Logger
	locks   *keymutex.KeyMutex
	now     func() time.Time
	window  time.Duration
}

// Option настраивает Engine.
type Option func(*Engine)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithWindow задаёт длительность оплаченного периода.
func WithWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// NewEngine создаёт движок доступа.
func NewEngine(store Store, ledger Ledger, catalog *Catalog, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		ledger:  ledger,
		catalog: catalog,
		log:     log,
		locks:   keymutex.New(),
		now:     time.Now,
		window:  DefaultWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan ищет тариф в прайс-листе.
func (e *Engine) Plan(id string) (models.Plan, bool) {
	return e.catalog.ByID(id)
}

// Plans возвращает прайс-лист.
func (e *Engine) Plans() []models.Plan {
	return e.catalog.Plans()
}

func (e *Engine) getUser(ctx context.Context, op, userID string) (*models.User, error) {
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// Observe читает состояние подписки и, если срок истёк, сохраняет переход
// в состояние без подписки до возврата результата. Повторный вызов для уже
// истёкшей подписки ничего не записывает.
func (e *Engine) Observe(ctx context.Context, userID string) (Decision, error) {
	const op = "entitlement.Observe"
	unlock := e.locks.Lock(userID)
	defer unlock()

	for range maxCASAttempts {
		u, err := e.getUser(ctx, op, userID)
		if err != nil {
			return Decision{}, err
		}
		ent := u.Entitlement
		now := e.now()

		if !ent.IsSubscribed() {
			return inactive(ent), nil
		}
		if !ent.ExpiredAt(now) {
			return Decision{Entitlement: ent, Reason: ReasonActive, Amount: e.amountOf(ctx, userID, ent)}, nil
		}

		expired := ent.Expire()
		_, err = e.store.SaveEntitlement(ctx, userID, u.Version, expired)
		if errors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				return Decision{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
			}
			return Decision{}, fmt.Errorf("%s: %w", op, err)
		}
		e.log.Info("subscription expired",
			slog.String("op", op),
			sl.UserID(userID),
			slog.Time("expires_at", ent.ExpiresAt),
		)
		return Decision{Entitlement: expired, Reason: ReasonExpired}, nil
	}
	return Decision{}, fmt.Errorf("%s: %w", op, ErrConcurrentUpdate)
}

func inactive(ent models.Entitlement) Decision {
	if ent.ExpiresAt.IsZero() {
		return Decision{Entitlement: ent, Reason: ReasonNeverSubscribed}
	}
	return Decision{Entitlement: ent, Reason: ReasonExpired}
}

// amountOf возвращает номинальную цену активного тарифа. Для записей без
// суммы тариф восстанавливается по последнему успешному платежу.
func (e *Engine) amountOf(ctx context.Context, userID string, ent models.Entitlement) int64 {
	if ent.Amount > 0 {
		return ent.Amount
	}
	if p, ok := e.catalog.ByID(ent.PlanID); ok {
		return p.Price
	}
	if e.ledger == nil {
		return 0
	}
	payment, err := e.ledger.LatestSuccessfulPayment(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrPaymentNotFound) {
			e.log.Warn("ledger look-back failed", sl.UserID(userID), sl.Err(err))
		}
		return 0
	}
	return payment.Amount
}

// Require возвращает ErrPaymentRequired, если подписка не активна.
func (e *Engine) Require(ctx context.Context, userID string) (Decision, error) {
	const op = "entitlement.Require"
	d, err := e.Observe(ctx, userID)
	if err != nil {
		return d, err
	}
	if !d.Allowed() {
		return d, fmt.Errorf("%s: %w", op, ErrPaymentRequired)
	}
	return d, nil
}

// Activate открывает или продлевает окно доступа по подтверждённому платежу.
// Новый срок отсчитывается от более позднего из текущего момента и текущего
// срока окончания. Повтор того же платежа состояние не меняет.
func (e *Engine) Activate(ctx context.Context, userID string, g Grant) (models.Entitlement, error) {
	const op = "entitlement.Activate"
	unlock := e.locks.Lock(userID)
	defer unlock()

	for range maxCASAttempts {
		u, err := e.getUser(ctx, op, userID)
		if err != nil {
			return models.Entitlement{}, err
		}
		cur := u.Entitlement
		if g.PaymentID != "" && cur.PaymentID == g.PaymentID {
			return cur, nil
		}

		now := e.now().UTC()
		base := now
		if cur.IsSubscribed() && cur.ExpiresAt.After(now) {
			base = cur.ExpiresAt
		}
		next := models.Active(base.Add(e.window), g.PlanID, g.Amount, g.PaymentID)

		_, err = e.store.SaveEntitlement(ctx, userID, u.Version, next)
		if errors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				return models.Entitlement{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
			}
			return models.Entitlement{}, fmt.Errorf("%s: %w", op, err)
		}
		e.log.Info("subscription activated",
			slog.String("op", op),
			sl.UserID(userID),
			slog.String("plan_id", g.PlanID),
			slog.Int64("amount", g.Amount),
			slog.Time("expires_at", next.ExpiresAt),
			slog.Bool("renewal", base.After(now)),
		)
		return next, nil
	}
	return models.Entitlement{}, fmt.Errorf("%s: %w", op, ErrConcurrentUpdate)
}

// Quote возвращает сумму к оплате за тариф planID с учётом текущей подписки.
func (e *Engine) Quote(ctx context.Context, userID string, plan models.Plan) (int64, error) {
	const op = "entitlement.Quote"
	d, err := e.Observe(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return e.catalog.Charge(d.Entitlement, plan, e.now()), nil
}

// ResolvePlan определяет тариф оплаченного платежа с учётом текущей подписки.
func (e *Engine) ResolvePlan(ctx context.Context, userID, planID string, amount int64) (models.Plan, bool, error) {
	const op = "entitlement.ResolvePlan"
	u, err := e.getUser(ctx, op, userID)
	if err != nil {
		return models.Plan{}, false, err
	}
	p, ok := e.catalog.Resolve(u.Entitlement, planID, amount, e.now())
	return p, ok, nil
}
