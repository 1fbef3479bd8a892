// Package policysummarizer собирает HTTP API: хранилище, кэш, шину событий,
// движок доступа, сервисы и маршруты.
package policysummarizer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/policy-summarizer/internal/cache"
	"github.com/magabrotheeeer/policy-summarizer/internal/config"
	"github.com/magabrotheeeer/policy-summarizer/internal/entitlement"
	"github.com/magabrotheeeer/policy-summarizer/internal/gateway"
	"github.com/magabrotheeeer/policy-summarizer/internal/grpc/server"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/middlewarectx"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/jwt"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/sl"
	"github.com/magabrotheeeer/policy-summarizer/internal/metrics"
	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/auth"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/feedback"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/payment"
	"github.com/magabrotheeeer/policy-summarizer/internal/services/summary"
)

const healthInterval = 15 * time.Second

// App HTTP API сервиса.
type App struct {
	server    *http.Server
	grpc      *server.Server
	grpcAddr  string
	logger    *slog.Logger
	store     Store
	cache     *cache.Cache
	conn      *amqp.Connection
	publisher *rabbitmq.Publisher
}

// New подключает зависимости и собирает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app := &App{logger: logger, store: store, grpcAddr: cfg.GRPCServer.Address}

	var profileCache auth.Cache
	var paymentOpts []payment.Option
	if cfg.RedisConnection.AddressRedis != "" {
		c, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			app.close()
			return nil, err
		}
		app.cache = c
		profileCache = c
		paymentOpts = append(paymentOpts, payment.WithCache(c))
	} else {
		logger.Warn("redis address is empty, profile cache disabled")
	}

	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
		if err != nil {
			app.close()
			return nil, err
		}
		app.conn = conn
		ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
		if err != nil {
			app.close()
			return nil, err
		}
		app.publisher = rabbitmq.NewPublisher(ch)
		paymentOpts = append(paymentOpts, payment.WithPublisher(app.publisher))
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	paymentOpts = append(paymentOpts, payment.WithMetrics(m))

	catalog := entitlement.NewCatalog(toPlans(cfg.Plans))
	engine := entitlement.NewEngine(store, store, catalog, logger,
		entitlement.WithWindow(cfg.Payment.SubscriptionWindow),
	)
	gw := gateway.NewClient(cfg.Payment.KeyID, cfg.Payment.KeySecret, cfg.Payment.APIURL, cfg.Payment.Timeout)

	authService := auth.New(logger, store, engine, jwt.NewJWTMaker(cfg.JWTToken.JWTSecretKey, cfg.JWTToken.TokenTTL), profileCache)
	paymentService := payment.New(logger, gw, engine, store, store, cfg.Payment.Currency, paymentOpts...)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Services{
		Auth:     authService,
		Payment:  paymentService,
		Summary:  summary.New(store),
		Feedback: feedback.New(store),
		Gate:     engine,
		Metrics:  m,
		Limiter:  middlewarectx.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		Health:   store,
	})

	app.server = &http.Server{
		Addr:         cfg.HTTPServer.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.TimeoutHTTP,
		WriteTimeout: cfg.HTTPServer.TimeoutHTTP,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}
	app.grpc = server.New(logger, store, healthInterval)
	return app, nil
}

func toPlans(in []config.Plan) []models.Plan {
	out := make([]models.Plan, 0, len(in))
	for _, p := range in {
		out = append(out, models.Plan{
			ID:       p.ID,
			Name:     p.Name,
			Price:    p.Price,
			Currency: p.Currency,
			Interval: p.Interval,
		})
	}
	return out
}

// Run запускает HTTP и gRPC серверы и останавливает их по отмене ctx.
func (a *App) Run(ctx context.Context) error {
	grpcCtx, stopGRPC := context.WithCancel(ctx)
	defer stopGRPC()

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()
	go func() {
		if err := a.grpc.ListenAndServe(grpcCtx, a.grpcAddr); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
		if runErr != nil {
			a.logger.Error("server stopped", sl.Err(runErr))
		}
	case <-ctx.Done():
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a.logger.Info("shutting down HTTP server gracefully")
	if err := a.server.Shutdown(timeoutCtx); err != nil && runErr == nil {
		runErr = err
	}
	stopGRPC()
	a.close()
	return runErr
}

func (a *App) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("failed to close rabbitmq channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close rabbitmq connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
