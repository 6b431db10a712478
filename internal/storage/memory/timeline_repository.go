package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/clubtab/internal/domain"
)

// timelineRepositoryInMemory хранит события жизненного цикла заказов в памяти.
type timelineRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string][]domain.TimelineEvent
}

// NewTimelineRepository возвращает in-memory таймлайн для разработки и тестов.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{
		items: make(map[string][]domain.TimelineEvent),
	}
}

// Append добавляет событие в конец таймлайна заказа.
func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[event.OrderID] = append(r.items[event.OrderID], event)
	return nil
}

// List возвращает события заказа в порядке добавления.
func (r *timelineRepositoryInMemory) List(orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.items[orderID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
