// Package mongostore реализует те же хранилища, что и repository,
// поверх MongoDB. Выбирается параметром storage.driver: mongo.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrFailedToConnect возвращается, если все попытки подключения исчерпаны.
var ErrFailedToConnect = errors.New("failed to connect to mongo")

const (
	usersCollection     = "users"
	paymentsCollection  = "payments"
	summariesCollection = "summaries"
	feedbackCollection  = "feedback"
)

// Config параметры подключения.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	RetryAttempts  int
	RetryInterval  time.Duration
}

// Storage хранит ссылки на коллекции базы.
type Storage struct {
	client    *mongo.Client
	users     *mongo.Collection
	payments  *mongo.Collection
	summaries *mongo.Collection
	feedback  *mongo.Collection
}

// New подключается к MongoDB с повторами и создаёт индексы.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	const op = "mongostore.New"

	attempts := max(cfg.RetryAttempts, 1)
	var lastErr error
	for i := range attempts {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.URI).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetRetryWrites(true).
				SetRetryReads(true),
		)
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				s := newStorage(client, cfg.Database)
				if err := s.EnsureIndexes(ctx); err != nil {
					_ = client.Disconnect(ctx)
					return nil, fmt.Errorf("%s: %w", op, err)
				}
				return s, nil
			}
			_ = client.Disconnect(ctx)
		}
		lastErr = err

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(cfg.RetryInterval):
			}
		}
	}
	return nil, fmt.Errorf("%s: %w: %w", op, ErrFailedToConnect, lastErr)
}

func newStorage(client *mongo.Client, database string) *Storage {
	db := client.Database(database)
	return &Storage{
		client:    client,
		users:     db.Collection(usersCollection),
		payments:  db.Collection(paymentsCollection),
		summaries: db.Collection(summariesCollection),
		feedback:  db.Collection(feedbackCollection),
	}
}

// EnsureIndexes создаёт уникальные индексы для почты, телефона
// и успешных идентификаторов платежей.
func (s *Storage) EnsureIndexes(ctx context.Context) error {
	const op = "mongostore.EnsureIndexes"

	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys: bson.D{{Key: "phone", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"phone": bson.M{"$exists": true}}),
		},
	})
	if err != nil {
		return fmt.Errorf("%s: users: %w", op, err)
	}

	_, err = s.payments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "payment_id", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": "success"}),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("%s: payments: %w", op, err)
	}

	_, err = s.summaries.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("%s: summaries: %w", op, err)
	}
	return nil
}

// Ping проверяет доступность базы.
func (s *Storage) Ping(ctx context.Context) error {
	const op = "mongostore.Ping"
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close разрывает соединение с сервером.
func (s *Storage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
