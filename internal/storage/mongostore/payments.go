package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage"
)

type paymentDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	OrderID   string    `bson:"order_id"`
	PaymentID string    `bson:"payment_id"`
	Signature string    `bson:"signature"`
	Amount    int64     `bson:"amount"`
	Currency  string    `bson:"currency"`
	Status    string    `bson:"status"`
	PlanID    string    `bson:"plan_id"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d *paymentDoc) toModel() models.Payment {
	return models.Payment{
		ID:        d.ID,
		UserID:    d.UserID,
		OrderID:   d.OrderID,
		PaymentID: d.PaymentID,
		Signature: d.Signature,
		Amount:    d.Amount,
		Currency:  d.Currency,
		Status:    models.PaymentStatus(d.Status),
		PlanID:    d.PlanID,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

// AppendPayment добавляет запись в платёжный журнал.
func (s *Storage) AppendPayment(ctx context.Context, p models.Payment) (string, error) {
	const op = "mongostore.AppendPayment"

	n, err := s.users.CountDocuments(ctx, bson.M{"_id": p.UserID})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return "", fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	doc := paymentDoc{
		ID:        p.ID,
		UserID:    p.UserID,
		OrderID:   p.OrderID,
		PaymentID: p.PaymentID,
		Signature: p.Signature,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    string(p.Status),
		PlanID:    p.PlanID,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.payments.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("%s: %w", op, storage.ErrDuplicatePayment)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return p.ID, nil
}

func (s *Storage) findPayment(ctx context.Context, op string, filter bson.M, opts ...options.Lister[options.FindOneOptions]) (*models.Payment, error) {
	var doc paymentDoc
	if err := s.payments.FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p := doc.toModel()
	return &p, nil
}

// FindSuccessfulPayment ищет успешную запись по идентификатору платежа шлюза.
func (s *Storage) FindSuccessfulPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.findPayment(ctx, "mongostore.FindSuccessfulPayment",
		bson.M{"payment_id": paymentID, "status": string(models.PaymentSuccess)})
}

// LatestSuccessfulPayment возвращает последнюю успешную запись пользователя.
func (s *Storage) LatestSuccessfulPayment(ctx context.Context, userID string) (*models.Payment, error) {
	return s.findPayment(ctx, "mongostore.LatestSuccessfulPayment",
		bson.M{"user_id": userID, "status": string(models.PaymentSuccess)},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

// ListPayments возвращает историю платежей пользователя, новые первыми.
func (s *Storage) ListPayments(ctx context.Context, userID string) ([]models.Payment, error) {
	const op = "mongostore.ListPayments"
	cur, err := s.payments.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var docs []paymentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result := make([]models.Payment, 0, len(docs))
	for i := range docs {
		result = append(result, docs[i].toModel())
	}
	return result, nil
}
