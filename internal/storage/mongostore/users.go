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

type userDoc struct {
	ID                    string     `bson:"_id"`
	Name                  string     `bson:"name"`
	Email                 string     `bson:"email"`
	Phone                 *string    `bson:"phone,omitempty"`
	PasswordHash          string     `bson:"password_hash"`
	SubscriptionStatus    string     `bson:"subscription_status"`
	SubscriptionExpiresAt *time.Time `bson:"subscription_expires_at,omitempty"`
	PlanID                string     `bson:"plan_id"`
	PlanAmount            int64      `bson:"plan_amount"`
	LastPaymentID         string     `bson:"last_payment_id"`
	Version               int64      `bson:"version"`
	CreatedAt             time.Time  `bson:"created_at"`
}

func phonePtr(phone string) *string {
	if phone == "" {
		return nil
	}
	return &phone
}

func expiresPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func (d *userDoc) toModel() *models.User {
	u := &models.User{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Version:      d.Version,
		CreatedAt:    d.CreatedAt.UTC(),
		Entitlement: models.Entitlement{
			State:     models.SubscriptionState(d.SubscriptionStatus),
			PlanID:    d.PlanID,
			Amount:    d.PlanAmount,
			PaymentID: d.LastPaymentID,
		},
	}
	if d.Phone != nil {
		u.Phone = *d.Phone
	}
	if d.SubscriptionExpiresAt != nil {
		u.Entitlement.ExpiresAt = d.SubscriptionExpiresAt.UTC()
	}
	return u
}

// CreateUser сохраняет нового пользователя без подписки и возвращает его ID.
func (s *Storage) CreateUser(ctx context.Context, user models.User) (string, error) {
	const op = "mongostore.CreateUser"
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	doc := userDoc{
		ID:                 user.ID,
		Name:               user.Name,
		Email:              user.Email,
		Phone:              phonePtr(user.Phone),
		PasswordHash:       user.PasswordHash,
		SubscriptionStatus: string(models.StateUnsubscribed),
		Version:            1,
		CreatedAt:          time.Now().UTC(),
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return user.ID, nil
}

func (s *Storage) findUser(ctx context.Context, op string, filter bson.M) (*models.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toModel(), nil
}

// GetUser возвращает пользователя по ID.
func (s *Storage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.findUser(ctx, "mongostore.GetUser", bson.M{"_id": userID})
}

// GetUserByEmail возвращает пользователя по адресу почты.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, "mongostore.GetUserByEmail", bson.M{"email": email})
}

// UpdateProfile меняет имя и телефон пользователя.
func (s *Storage) UpdateProfile(ctx context.Context, userID, name, phone string) (*models.User, error) {
	const op = "mongostore.UpdateProfile"

	update := bson.M{
		"$set": bson.M{"name": name},
		"$inc": bson.M{"version": 1},
	}
	if phone == "" {
		update["$unset"] = bson.M{"phone": ""}
	} else {
		update["$set"] = bson.M{"name": name, "phone": phone}
	}

	var doc userDoc
	err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": userID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		case mongo.IsDuplicateKeyError(err):
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toModel(), nil
}

// SaveEntitlement записывает состояние подписки, если версия документа равна
// expectedVersion, и возвращает новую версию.
func (s *Storage) SaveEntitlement(ctx context.Context, userID string, expectedVersion int64, e models.Entitlement) (int64, error) {
	const op = "mongostore.SaveEntitlement"
	if err := e.Validate(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	set := bson.M{
		"subscription_status": string(e.State),
		"plan_id":             e.PlanID,
		"plan_amount":         e.Amount,
		"last_payment_id":     e.PaymentID,
	}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	if exp := expiresPtr(e.ExpiresAt); exp != nil {
		set["subscription_expires_at"] = *exp
	} else {
		update["$unset"] = bson.M{"subscription_expires_at": ""}
	}

	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID, "version": expectedVersion}, update)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 1 {
		return expectedVersion + 1, nil
	}

	n, err := s.users.CountDocuments(ctx, bson.M{"_id": userID})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	return 0, fmt.Errorf("%s: %w", op, storage.ErrVersionConflict)
}
