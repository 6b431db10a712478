package catalog

import (
	"sync"

	"github.com/vladislavdragonenkov/clubtab/internal/domain"
)

// Service — in-memory каталог напитков клубов.
// Checkout читает его как источник актуальных цен; цена фиксируется
// в позиции заказа и дальше живёт независимо от каталога.
type Service struct {
	mu     sync.RWMutex
	drinks map[string]domain.Drink
}

// NewService создаёт пустой каталог.
func NewService() *Service {
	return &Service{
		drinks: make(map[string]domain.Drink),
	}
}

// NewServiceWith создаёт каталог с начальным набором напитков.
func NewServiceWith(drinks ...domain.Drink) *Service {
	svc := NewService()
	for _, drink := range drinks {
		svc.Put(drink)
	}
	return svc
}

// Put добавляет или обновляет напиток в каталоге.
func (s *Service) Put(drink domain.Drink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drinks[drink.ID] = drink
}

// SetAvailable переключает доступность напитка.
func (s *Service) SetAvailable(drinkID string, available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drink, ok := s.drinks[drinkID]
	if !ok {
		return
	}
	drink.Available = available
	s.drinks[drinkID] = drink
}

// SetPrice обновляет цену напитка. Уже созданные заказы не затрагиваются.
func (s *Service) SetPrice(drinkID string, priceMinor int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drink, ok := s.drinks[drinkID]
	if !ok {
		return
	}
	drink.PriceMinor = priceMinor
	s.drinks[drinkID] = drink
}

// Lookup возвращает напиток клуба или ErrDrinkUnavailable.
// Напиток чужого клуба неотличим от несуществующего.
func (s *Service) Lookup(clubID, drinkID string) (domain.Drink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	drink, ok := s.drinks[drinkID]
	if !ok || drink.ClubID != clubID || !drink.Available {
		return domain.Drink{}, domain.ErrDrinkUnavailable
	}
	return drink, nil
}

var _ domain.CatalogService = (*Service)(nil)
