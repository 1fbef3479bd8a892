// Package storage объявляет ошибки, общие для всех реализаций хранилища.
package storage

import "errors"

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("user already exists")
	ErrVersionConflict  = errors.New("user record was modified concurrently")
	ErrDuplicatePayment = errors.New("payment already recorded")
	ErrPaymentNotFound  = errors.New("payment not found")
)
