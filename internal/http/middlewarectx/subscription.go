package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/policy-summarizer/internal/entitlement"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/response"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/sl"
)

// Gate принимает решение о доступе к платным функциям.
type Gate interface {
	Require(ctx context.Context, userID string) (entitlement.Decision, error)
}

// GateMetrics учитывает решения гейта.
type GateMetrics interface {
	GateDecision(reason string)
}

// SubscriptionGate пропускает запрос дальше только при активной подписке.
// Отвечает 402 без подписки, 404 для неизвестного пользователя и 500 при сбое хранилища.
// Должен стоять после JWTMiddleware.
func SubscriptionGate(log *slog.Logger, gate Gate, metrics GateMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.SubscriptionGate"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			userID, ok := UserIDFrom(r.Context())
			if !ok {
				log.Error("user identification missing")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}

			d, err := gate.Require(r.Context(), userID)
			switch {
			case err == nil:
				record(metrics, string(d.Reason))
				next.ServeHTTP(w, r)
			case errors.Is(err, entitlement.ErrPaymentRequired):
				record(metrics, string(d.Reason))
				log.Info("access denied, payment required", sl.UserID(userID), slog.String("reason", string(d.Reason)))
				w.WriteHeader(http.StatusPaymentRequired)
				render.JSON(w, r, response.PaymentRequired())
			case errors.Is(err, entitlement.ErrUserNotFound):
				record(metrics, "user_not_found")
				log.Warn("user not found", sl.UserID(userID))
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error("user not found"))
			default:
				record(metrics, "error")
				log.Error("failed to check subscription", sl.UserID(userID), sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error("internal server error"))
			}
		})
	}
}

func record(m GateMetrics, reason string) {
	if m != nil {
		m.GateDecision(reason)
	}
}
