package policysummarizer

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/policy-summarizer/internal/entitlement"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/handlers/auth/getuser"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/handlers/auth/signup"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/handlers/auth/updateuser"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/handlers/feedback/submit"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/handlers/health"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/handlers/payment/checksubscription"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/handlers/payment/createorder"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/handlers/payment/getkey"
	paymentlist "github.com/magabrotheeeer/policy-summarizer/internal/http/handlers/payment/list"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/handlers/payment/verify"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/handlers/summary/add"
	summarylist "github.com/magabrotheeeer/policy-summarizer/internal/http/handlers/summary/list"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/middlewarectx"
	"github.com/magabrotheeeer/policy-summarizer/internal/metrics"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/auth"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/feedback"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/payment"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/summary"
)

// Services набор зависимостей для маршрутов.
type Services struct {
	Auth     *auth.Service
	Payment  *payment.Service
	Summary  *summary.Service
	Feedback *feedback.Service
	Gate     *entitlement.Engine
	Metrics  *metrics.Metrics
	Limiter  *middlewarectx.RateLimiter
	Health   health.Pinger
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, s Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", health.New(logger, s.Health).ServeHTTP)

		// Открытые конечные точки
		r.Post("/auth/signup", signup.New(logger, s.Auth).ServeHTTP)
		r.Post("/auth/login", login.New(logger, s.Auth).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(s.Auth, logger))
			r.Use(s.Limiter.Middleware(logger))

			r.Post("/auth/getuser", getuser.New(logger, s.Auth).ServeHTTP)
			r.Put("/auth/updateuser", updateuser.New(logger, s.Auth).ServeHTTP)

			r.Post("/payment/create-order", createorder.New(logger, s.Payment).ServeHTTP)
			r.Post("/payment/verify-payment", verify.New(logger, s.Payment).ServeHTTP)
			r.Get("/payment/check-subscription", checksubscription.New(logger, s.Payment, s.Metrics).ServeHTTP)
			r.Get("/payment/get-key", getkey.New(s.Payment).ServeHTTP)
			r.Get("/payment/list", paymentlist.New(logger, s.Payment).ServeHTTP)

			r.Post("/feedback/submit", submit.New(logger, s.Feedback).ServeHTTP)

			// Платные функции
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.SubscriptionGate(logger, s.Gate, s.Metrics))
				r.Post("/summary/add", add.New(logger, s.Summary).ServeHTTP)
				r.Get("/summary/getall", summarylist.New(logger, s.Summary).ServeHTTP)
			})
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
