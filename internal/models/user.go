// Package models содержит доменные структуры сервиса: пользователя с его
// состоянием подписки, записи платёжного журнала, тарифы, заказы,
// сохранённые конспекты и отзывы.
package models

import "time"

// User представляет зарегистрированного пользователя системы.
type User struct {
	ID           string      // Уникальный идентификатор пользователя, неизменяемый
	Name         string      // Отображаемое имя
	Email        string      // Электронная почта (уникальная)
	Phone        string      // Телефон (уникальный, может быть пустым)
	PasswordHash string      // bcrypt-хэш пароля
	Entitlement  Entitlement // Состояние подписки, меняется только движком доступа
	Version      int64       // Версия записи для compare-and-swap
	CreatedAt    time.Time
}

// Profile публичное представление пользователя без хэша пароля.
type Profile struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Email                 string     `json:"email"`
	Phone                 string     `json:"phonenumber,omitempty"`
	IsSubscribed          bool       `json:"isSubscribed"`
	SubscriptionExpiresAt *time.Time `json:"subscriptionExpiresAt,omitempty"`
	PlanID                string     `json:"planId,omitempty"`
	Date                  time.Time  `json:"date"`
}

// Profile возвращает публичное представление пользователя.
func (u *User) Profile() Profile {
	p := Profile{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Phone:        u.Phone,
		IsSubscribed: u.Entitlement.IsSubscribed(),
		PlanID:       u.Entitlement.PlanID,
		Date:         u.CreatedAt,
	}
	if u.Entitlement.IsSubscribed() {
		expiresAt := u.Entitlement.ExpiresAt
		p.SubscriptionExpiresAt = &expiresAt
	}
	return p
}
