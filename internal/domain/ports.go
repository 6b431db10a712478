package domain

import "time"

// Drink — позиция каталога клуба, как её видит сервис заказов.
type Drink struct {
	ID         string
	ClubID     string
	Name       string
	PriceMinor int64
	Available  bool
}

// CatalogService описывает взаимодействие с каталогом напитков клуба.
// Заказы читают каталог один раз при checkout; это best-effort проверка,
// а не резервирование — перепродажа последней единицы при конкурентных
// checkout возможна и осознанно не предотвращается.
type CatalogService interface {
	// Lookup возвращает напиток клуба clubID или ErrDrinkUnavailable,
	// если напиток не существует, принадлежит другому клубу или снят с продажи.
	Lookup(clubID, drinkID string) (Drink, error)
}

// PaymentIntent — ссылка на платёжное намерение внешнего шлюза.
type PaymentIntent struct {
	ID string
	// ClientSecret передаётся клиенту для завершения оплаты на его стороне.
	ClientSecret string
}

// PaymentGateway описывает взаимодействие с платёжным провайдером.
// Провайдер непрозрачен: подтверждение или отказ приходит асинхронно
// через webhook, а не как результат вызова.
type PaymentGateway interface {
	// CreateIntent регистрирует намерение списания для card-заказа.
	CreateIntent(orderID string, amountMinor int64, currency string) (PaymentIntent, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
