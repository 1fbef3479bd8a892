package models

import (
	"errors"
	"time"
)

// SubscriptionState тег состояния подписки пользователя.
type SubscriptionState string

const (
	// StateUnsubscribed подписки нет: никогда не оплачивалась либо истекла.
	StateUnsubscribed SubscriptionState = "unsubscribed"
	// StateActive оплаченная подписка с датой окончания.
	StateActive SubscriptionState = "active"
)

// ErrInvalidEntitlement возвращается для активного состояния без даты окончания.
var ErrInvalidEntitlement = errors.New("active entitlement must carry an expiry")

// Entitlement описывает состояние доступа пользователя к платным функциям.
//
// Для StateActive поле ExpiresAt обязательно. Для StateUnsubscribed ExpiresAt
// хранит момент окончания последней подписки (нулевое значение, если
// пользователь никогда не платил).
type Entitlement struct {
	State     SubscriptionState
	ExpiresAt time.Time
	PlanID    string // Тариф, оплаченный последним платежом
	Amount    int64  // Номинальная цена тарифа
	PaymentID string // Платёж, открывший текущее окно подписки
}

// Unsubscribed возвращает состояние «без подписки».
func Unsubscribed() Entitlement {
	return Entitlement{State: StateUnsubscribed}
}

// Active возвращает активное состояние с указанной датой окончания.
func Active(expiresAt time.Time, planID string, amount int64, paymentID string) Entitlement {
	return Entitlement{
		State:     StateActive,
		ExpiresAt: expiresAt.UTC(),
		PlanID:    planID,
		Amount:    amount,
		PaymentID: paymentID,
	}
}

// IsSubscribed сообщает, помечено ли состояние как активное. Сравнение с
// текущим временем выполняет движок доступа.
func (e Entitlement) IsSubscribed() bool {
	return e.State == StateActive
}

// ExpiredAt сообщает, что активная подписка закончилась к моменту now.
func (e Entitlement) ExpiredAt(now time.Time) bool {
	return e.IsSubscribed() && now.After(e.ExpiresAt)
}

// Expire переводит состояние в StateUnsubscribed, сохраняя дату окончания и тариф.
func (e Entitlement) Expire() Entitlement {
	e.State = StateUnsubscribed
	return e
}

// Validate проверяет инвариант: активная подписка всегда имеет дату окончания.
func (e Entitlement) Validate() error {
	switch e.State {
	case StateActive:
		if e.ExpiresAt.IsZero() {
			return ErrInvalidEntitlement
		}
		return nil
	case StateUnsubscribed, "":
		return nil
	default:
		return ErrInvalidEntitlement
	}
}
