package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/clubtab/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
// Вторичные индексы по токену и платёжному намерению повторяют уникальные
// индексы PostgreSQL-схемы: резолв токена — O(1) и строго точный.
type orderRepositoryInMemory struct {
	mu       sync.RWMutex
	items    map[string]domain.Order
	byToken  map[string]string
	byIntent map[string]string
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:    make(map[string]domain.Order),
		byToken:  make(map[string]string),
		byIntent: make(map[string]string),
	}
}

// Create сохраняет новый заказ, если ID и токен ещё не заняты.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	if _, exists := r.byToken[order.FulfillmentToken]; exists {
		return domain.ErrTokenAlreadyIssued
	}

	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[order.ID] = cloneOrder(order)
	r.byToken[order.FulfillmentToken] = order.ID
	if order.PaymentIntentID != "" {
		r.byIntent[order.PaymentIntentID] = order.ID
	}
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// GetByToken возвращает заказ по fulfillment-токену.
// Неизвестный токен и пустая строка неотличимы: всегда ErrOrderNotFound.
func (r *orderRepositoryInMemory) GetByToken(token string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if token == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	id, ok := r.byToken[token]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(r.items[id]), nil
}

// GetByPaymentIntent возвращает заказ по ссылке платёжного намерения.
func (r *orderRepositoryInMemory) GetByPaymentIntent(intentID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if intentID == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	id, ok := r.byIntent[intentID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(r.items[id]), nil
}

// ListByClub возвращает заказы клуба в указанных статусах от старых к новым.
func (r *orderRepositoryInMemory) ListByClub(clubID string, statuses []domain.OrderStatus, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[domain.OrderStatus]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}

	result := make([]domain.Order, 0)
	for _, order := range r.items {
		if order.ClubID != clubID {
			continue
		}
		if len(wanted) > 0 && !wanted[order.Status] {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// ListByCustomer возвращает заказы клиента от новых к старым с пагинацией.
func (r *orderRepositoryInMemory) ListByCustomer(customerID string, offset, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.items {
		if order.CustomerID != customerID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if offset > 0 {
		if offset >= len(result) {
			return []domain.Order{}, nil
		}
		result = result[offset:]
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
// Токен и платёжное намерение неизменны после создания, индексы не трогаем.
func (r *orderRepositoryInMemory) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	order.Version++
	r.items[order.ID] = cloneOrder(order)
	return nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	if src.CompletedAt != nil {
		completed := *src.CompletedAt
		dst.CompletedAt = &completed
	}
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
