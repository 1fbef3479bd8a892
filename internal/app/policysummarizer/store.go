package policysummarizer

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/policy-summarizer/internal/config"
	"github.com/magabrotheeeer/policy-summarizer/internal/migrations"
	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage/mongostore"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage/repository"
)

// Store объединяет операции хранилища, нужные сервисам. Реализуется
// PostgreSQL-репозиторием и MongoDB-хранилищем.
type Store interface {
	CreateUser(ctx context.Context, user models.User) (string, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID, name, phone string) (*models.User, error)
	SaveEntitlement(ctx context.Context, userID string, expectedVersion int64, e models.Entitlement) (int64, error)

	AppendPayment(ctx context.Context, p models.Payment) (string, error)
	FindSuccessfulPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	LatestSuccessfulPayment(ctx context.Context, userID string) (*models.Payment, error)
	ListPayments(ctx context.Context, userID string) ([]models.Payment, error)

	CreateSummary(ctx context.Context, s models.Summary) (*models.Summary, error)
	ListSummaries(ctx context.Context, userID string) ([]models.Summary, error)
	CreateFeedback(ctx context.Context, f models.Feedback) (*models.Feedback, error)

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*repository.Storage)(nil)
	_ Store = (*mongostore.Storage)(nil)
)

// MigrationsPath каталог SQL-миграций относительно рабочей директории.
const MigrationsPath = "./migrations"

// OpenStore подключает хранилище, выбранное в конфигурации.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, error) {
	const op = "policysummarizer.OpenStore"
	switch cfg.Storage.Driver {
	case config.DriverMongo:
		st, err := mongostore.New(ctx, mongostore.Config{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			ConnectTimeout: cfg.Mongo.ConnectTimeout,
			RetryAttempts:  cfg.Mongo.RetryAttempts,
			RetryInterval:  cfg.Mongo.RetryInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return st, nil
	default:
		st, err := repository.New(ctx, cfg.StorageConnectionString)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := migrations.Run(st.DB, MigrationsPath); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return st, nil
	}
}
