package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// События жизненного цикла заказа
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderPaid          EventType = "order.paid"
	EventTypeOrderPaymentFailed EventType = "order.payment_failed"
	EventTypeOrderPreparing     EventType = "order.preparing"
	EventTypeOrderReady         EventType = "order.ready"
	EventTypeOrderCompleted     EventType = "order.completed"
	EventTypeOrderCancelled     EventType = "order.cancelled"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "clubtab.order.events"
	TopicDeadLetterQueue = "clubtab.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие заказа.
// По order.ready уведомляется клиент, по order.paid — очередь бармена.
type OrderEvent struct {
	EventType     EventType              `json:"event_type"`
	OrderID       string                 `json:"order_id"`
	CustomerID    string                 `json:"customer_id"`
	ClubID        string                 `json:"club_id"`
	Status        string                 `json:"status"`
	PaymentMethod string                 `json:"payment_method"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, customerID, clubID, status, paymentMethod string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:     eventType,
		OrderID:       orderID,
		CustomerID:    customerID,
		ClubID:        clubID,
		Status:        status,
		PaymentMethod: paymentMethod,
		Timestamp:     time.Now(),
		Metadata:      metadata,
	}
}

// EventTypeForStatus сопоставляет статус заказа типу публикуемого события.
func EventTypeForStatus(status string) EventType {
	switch status {
	case "paid":
		return EventTypeOrderPaid
	case "preparing":
		return EventTypeOrderPreparing
	case "ready":
		return EventTypeOrderReady
	case "completed":
		return EventTypeOrderCompleted
	case "cancelled":
		return EventTypeOrderCancelled
	default:
		return EventTypeOrderCreated
	}
}
