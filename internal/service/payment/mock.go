package payment

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/clubtab/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов
// и локальной разработки без внешнего провайдера.
type MockGateway struct {
	CreateIntentErr error

	CreateIntentCalls int
	LastOrderID       string
	LastAmountMinor   int64
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// CreateIntent возвращает новый intent либо настроенную ошибку и считает вызовы.
func (m *MockGateway) CreateIntent(orderID string, amountMinor int64, currency string) (domain.PaymentIntent, error) {
	m.CreateIntentCalls++
	m.LastOrderID = orderID
	m.LastAmountMinor = amountMinor

	if m.CreateIntentErr != nil {
		return domain.PaymentIntent{}, m.CreateIntentErr
	}

	id := fmt.Sprintf("pi_%s", uuid.NewString())
	return domain.PaymentIntent{
		ID:           id,
		ClientSecret: fmt.Sprintf("%s_secret_%s", id, uuid.NewString()[:8]),
	}, nil
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
