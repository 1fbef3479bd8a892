// Package createorder обрабатывает создание заказа в платёжном шлюзе.
package createorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/policy-summarizer/internal/entitlement"
	"github.com/magabrotheeeer/policy-summarizer/internal/gateway"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/middlewarectx"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/response"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/sl"
	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/payment"
)

// Request запрос на создание заказа. Amount в основных единицах валюты.
// Если указан PlanID, сумма берётся из прайс-листа и Amount не нужен.
type Request struct {
	Amount   int64  `json:"amount" validate:"omitempty,gt=0"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
	PlanID   string `json:"planId,omitempty" validate:"omitempty,max=64"`
}

// Service создаёт заказы.
type Service interface {
	CreateOrder(ctx context.Context, userID string, in payment.CreateOrderInput) (*models.Order, error)
}

// Handler обрабатывает запросы на создание заказа.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать заказ
// @Description Создаёт заказ в платёжном шлюзе. Сумма переводится в минимальные единицы валюты. При указании тарифа сумма берётся из прайс-листа с учётом доплаты за апгрейд.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body Request true "Сумма и валюта заказа"
// @Success 200 {object} models.Order "Заказ шлюза"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Платёжный шлюз недоступен или внутренняя ошибка"
// @Router /payment/create-order [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.createorder"
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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}
	if req.Amount == 0 && req.PlanID == "" {
		log.Error("neither amount nor plan given")
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("field Amount is a required field"))
		return
	}

	order, err := h.service.CreateOrder(r.Context(), userID, payment.CreateOrderInput{
		Amount:   req.Amount,
		Currency: req.Currency,
		PlanID:   req.PlanID,
	})
	if err != nil {
		log.Error("failed to create order", sl.UserID(userID), sl.Err(err))
		switch {
		case errors.Is(err, payment.ErrUnknownPlan):
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("unknown plan"))
		case errors.Is(err, gateway.ErrInvalidOrder):
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid order amount or currency"))
		case errors.Is(err, entitlement.ErrUserNotFound):
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		case errors.Is(err, gateway.ErrGatewayUnavailable):
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("payment gateway unavailable"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	log.Info("order created", sl.UserID(userID), slog.String("order_id", order.ID))
	render.JSON(w, r, order)
}
