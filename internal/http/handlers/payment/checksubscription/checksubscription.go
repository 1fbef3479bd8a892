// Package checksubscription отвечает на запрос статуса подписки.
package checksubscription

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/policy-summarizer/internal/entitlement"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/middlewarectx"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/response"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/sl"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/payment"
)

// Service возвращает статус подписки.
type Service interface {
	CheckSubscription(ctx context.Context, userID string) (*payment.SubscriptionStatus, entitlement.Decision, error)
}

// Metrics учитывает решения о допуске.
type Metrics interface {
	GateDecision(reason string)
}

// Handler обрабатывает запрос статуса подписки.
type Handler struct {
	log     *slog.Logger
	service Service
	metrics Metrics
}

// New создает новый экземпляр Handler. metrics может быть nil.
func New(log *slog.Logger, service Service, metrics Metrics) *Handler {
	return &Handler{
		log:     log,
		service: service,
		metrics: metrics,
	}
}

// ServeHTTP godoc
// @Summary Статус подписки
// @Description Возвращает статус и сумму активной подписки. Просроченная подписка при этом переводится в неактивное состояние. Без подписки возвращается 402.
// @Tags Payments
// @Produce  json
// @Success 200 {object} payment.SubscriptionStatus "Подписка активна"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 402 {object} response.ErrorResponse "Требуется оплата"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /payment/check-subscription [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.checksubscription"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFrom(r.Context())
	if !ok {
		log.Error("user id not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	status, d, err := h.service.CheckSubscription(r.Context(), userID)
	switch {
	case err == nil:
		h.record(string(d.Reason))
		render.JSON(w, r, status)
	case errors.Is(err, entitlement.ErrPaymentRequired):
		h.record(string(d.Reason))
		log.Info("subscription required", sl.UserID(userID), slog.String("reason", string(d.Reason)))
		w.WriteHeader(http.StatusPaymentRequired)
		render.JSON(w, r, response.PaymentRequired())
	case errors.Is(err, entitlement.ErrUserNotFound):
		log.Warn("user not found", sl.UserID(userID))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
	default:
		log.Error("failed to check subscription", sl.UserID(userID), sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
	}
}

func (h *Handler) record(reason string) {
	if h.metrics != nil {
		h.metrics.GateDecision(reason)
	}
}
