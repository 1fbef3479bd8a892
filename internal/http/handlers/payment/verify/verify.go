// Package verify обрабатывает подтверждение платежа, вернувшегося из окна оплаты.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/policy-summarizer/internal/entitlement"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/middlewarectx"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/response"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/sl"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/payment"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Request данные платежа. Поля razorpay_* принимаются как синонимы
// для клиентов, передающих ответ окна оплаты без преобразования.
type Request struct {
	OrderID   string `json:"orderId" validate:"required"`
	PaymentID string `json:"paymentId" validate:"required"`
	Signature string `json:"signature" validate:"required"`
	Amount    int64  `json:"amount" validate:"gte=0"`
	Currency  string `json:"currency" validate:"omitempty,len=3"`
	PlanID    string `json:"planId,omitempty" validate:"omitempty,max=64"`

	RazorpayOrderID   string `json:"razorpay_order_id,omitempty"`
	RazorpayPaymentID string `json:"razorpay_payment_id,omitempty"`
	RazorpaySignature string `json:"razorpay_signature,omitempty"`
}

func (r *Request) normalize() {
	if r.OrderID == "" {
		r.OrderID = r.RazorpayOrderID
	}
	if r.PaymentID == "" {
		r.PaymentID = r.RazorpayPaymentID
	}
	if r.Signature == "" {
		r.Signature = r.RazorpaySignature
	}
}

// Response результат проверки.
type Response struct {
	Status    string     `json:"status" example:"success"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Service проверяет платежи.
type Service interface {
	VerifyPayment(ctx context.Context, userID string, in payment.VerifyInput) (*payment.VerifyResult, error)
}

// Handler обрабатывает запросы подтверждения платежа.
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
// @Summary Подтвердить платёж
// @Description Проверяет HMAC-подпись платежа и продлевает подписку на 30 дней от максимума из текущего момента и даты окончания. Повторная отправка того же платежа подписку не продлевает.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body Request true "Идентификаторы заказа и платежа, подпись"
// @Success 200 {object} Response "Платёж подтверждён"
// @Failure 400 {object} Response "Подпись не совпала или неполные данные платежа"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /payment/verify-payment [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.verify"
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
		log.Warn("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, Response{Status: statusFailure})
		return
	}
	req.normalize()
	if err := h.validate.Struct(req); err != nil {
		log.Warn("payment rejected, validation failed", sl.UserID(userID), sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, Response{Status: statusFailure})
		return
	}

	res, err := h.service.VerifyPayment(r.Context(), userID, payment.VerifyInput{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		Amount:    req.Amount,
		Currency:  req.Currency,
		PlanID:    req.PlanID,
	})
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrSignatureMismatch):
			log.Warn("payment rejected", sl.UserID(userID), sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, Response{Status: statusFailure})
		case errors.Is(err, entitlement.ErrUserNotFound):
			log.Error("user not found", sl.UserID(userID), sl.Err(err))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		case errors.Is(err, entitlement.ErrConcurrentUpdate):
			log.Error("entitlement update contention", sl.UserID(userID), sl.Err(err))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("concurrent update, retry"))
		default:
			log.Error("failed to verify payment", sl.UserID(userID), sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	log.Info("payment verified", sl.UserID(userID), slog.String("payment_id", req.PaymentID), slog.Bool("replay", res.Replay))
	resp := Response{Status: statusSuccess}
	if res.Entitlement.IsSubscribed() {
		expiresAt := res.Entitlement.ExpiresAt
		resp.ExpiresAt = &expiresAt
	}
	render.JSON(w, r, resp)
}
