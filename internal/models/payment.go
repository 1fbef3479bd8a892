package models

import "time"

// PaymentStatus результат проверки платежа.
type PaymentStatus string

const (
	PaymentSuccess PaymentStatus = "success"
	PaymentFailure PaymentStatus = "failure"
)

// Payment неизменяемая запись платёжного журнала.
//
// Amount хранит номинальную цену целевого тарифа, а не фактически списанную
// сумму: при апгрейде списывается разница, но в журнал пишется полная цена.
type Payment struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user"`
	OrderID   string        `json:"orderId"`
	PaymentID string        `json:"paymentId"`
	Signature string        `json:"-"`
	Amount    int64         `json:"amount"`
	Currency  string        `json:"currency"`
	Status    PaymentStatus `json:"status"`
	PlanID    string        `json:"planId,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Order заказ на стороне платёжного шлюза, локально не хранится.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // в минимальных единицах валюты (пайсы, копейки)
	Currency string `json:"currency"`
	Receipt  string `json:"receipt,omitempty"`
	Status   string `json:"status,omitempty"`
}

// Plan описывает тариф из прайс-листа.
type Plan struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"` // в основных единицах валюты
	Currency string `json:"currency"`
	Interval string `json:"interval"` // monthly или yearly, только для отображения
}

// EntitlementEvent публикуется в RabbitMQ после активации подписки.
type EntitlementEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	PlanID     string    `json:"plan_id,omitempty"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	PaymentID  string    `json:"payment_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	OccurredAt time.Time `json:"occurred_at"`
}
