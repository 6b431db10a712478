package domain

import "github.com/google/uuid"

// NewFulfillmentToken выпускает непрозрачный токен для QR-кода заказа.
// UUIDv4 генерируется из crypto/rand: токен нельзя вывести из id заказа,
// времени создания или id клиента. Выпускается ровно один раз на заказ.
func NewFulfillmentToken() string {
	return uuid.NewString()
}
