package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего идентификатора клуба.
	ErrClubRequired = errors.New("club_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве напитка (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка отсутствующего fulfillment-токена.
	ErrTokenRequired = errors.New("fulfillment token is required")
	// Ошибка неподдерживаемого способа оплаты.
	ErrPaymentMethodInvalid = errors.New("payment method must be card or cash")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	// Та же ошибка используется при резолве токена: неизвестный и
	// некорректный токен неразличимы, чтобы не давать оракул для перебора.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrTokenAlreadyIssued — попытка создать заказ с уже занятым токеном.
	ErrTokenAlreadyIssued = errors.New("fulfillment token already issued")

	// ErrInvalidTransition — запрошенный переход отсутствует в таблице
	// переходов для текущего статуса; заказ остаётся без изменений.
	ErrInvalidTransition = errors.New("status transition is not allowed")
	// ErrWrongPaymentMethod — подтверждение наличной оплаты для card-заказа
	// (или платёжный callback для cash-заказа). Отдельная ошибка, чтобы UI
	// бармена мог объяснить, почему действие заблокировано.
	ErrWrongPaymentMethod = errors.New("operation is not allowed for this payment method")

	// ErrDrinkUnavailable — напиток не найден в клубе или снят с продажи.
	ErrDrinkUnavailable = errors.New("drink not found or unavailable")
	// ErrPaymentGateway — временная ошибка платёжного шлюза, можно повторить.
	ErrPaymentGateway = errors.New("payment gateway temporary error")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ занят запросом с другим телом.
	ErrIdempotencyHashMismatch = errors.New("idempotency key is used by a different request")
	// ErrIdempotencyKeyNotFound — запись по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// ValidationError описывает отказ валидации checkout с указанием виновной
// позиции. Заказ при такой ошибке не создаётся ни частично, ни целиком.
type ValidationError struct {
	// DrinkID — идентификатор напитка, из-за которого отклонён checkout.
	// Пустой, если проблема не привязана к конкретной позиции.
	DrinkID string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.DrinkID == "" {
		return fmt.Sprintf("validation failed: %v", e.Err)
	}
	return fmt.Sprintf("validation failed for drink %s: %v", e.DrinkID, e.Err)
}

// Unwrap отдаёт первопричину для errors.Is/errors.As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт ValidationError для конкретного напитка.
func NewValidationError(drinkID string, err error) *ValidationError {
	return &ValidationError{DrinkID: drinkID, Err: err}
}

// IsValidation проверяет, является ли ошибка отказом валидации checkout.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
