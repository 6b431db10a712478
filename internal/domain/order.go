package domain

import "time"

// PaymentMethod задаёт способ оплаты заказа.
// Метод фиксируется при создании и определяет, кто имеет право
// перевести заказ из pending_payment в paid (см. transitions.go).
type PaymentMethod string

const (
	// PaymentMethodCard — оплата картой через внешний платёжный шлюз.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodCash — оплата наличными у бармена.
	PaymentMethodCash PaymentMethod = "cash"
)

// Valid проверяет, что способ оплаты относится к поддерживаемым значениям.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodCash:
		return true
	default:
		return false
	}
}

// OrderStatus описывает жизненный цикл заказа напитков.
type OrderStatus string

const (
	// OrderStatusPendingPayment — заказ создан, оплата ещё не подтверждена.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusPaid — оплата подтверждена (бармен для cash, шлюз для card).
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusPreparing — бармен готовит заказ.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusReady — заказ готов к выдаче.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusCompleted — заказ выдан клиенту (терминальный).
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled — заказ отменён (терминальный).
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPaid, OrderStatusPreparing,
		OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, является ли статус терминальным: из него нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// OrderItem представляет одну позицию заказа.
// Позиция принадлежит только своему заказу и после создания не мутирует.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// DrinkID — идентификатор напитка в каталоге клуба.
	DrinkID string
	// Qty — количество единиц напитка.
	Qty int32
	// PriceMinor — цена за единицу на момент покупки в минимальных денежных
	// единицах (центы). Фиксируется при создании заказа и больше не
	// перечитывается из каталога, поэтому последующие правки цены не влияют
	// на сумму существующих заказов.
	PriceMinor int64
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID            string
	CustomerID    string
	ClubID        string
	PaymentMethod PaymentMethod
	Status        OrderStatus
	Currency      string
	AmountMinor   int64
	Items         []OrderItem
	// FulfillmentToken — непрозрачный токен, который клиент показывает как
	// QR-код, а бармен сканирует для поиска заказа. Выпускается один раз при
	// создании заказа и уникален среди всех заказов.
	FulfillmentToken string
	// PaymentIntentID — ссылка на платёжное намерение внешнего шлюза.
	// Заполняется только для card-заказов.
	PaymentIntentID string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	// CompletedAt выставляется один раз при достижении completed.
	CompletedAt *time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.ClubID == "" {
		errs = append(errs, ErrClubRequired)
	}
	if !o.PaymentMethod.Valid() {
		errs = append(errs, ErrPaymentMethodInvalid)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if o.FulfillmentToken == "" {
		errs = append(errs, ErrTokenRequired)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price_at_purchase.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
