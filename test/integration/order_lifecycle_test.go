package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/clubtab/internal/client"
	"github.com/vladislavdragonenkov/clubtab/internal/domain"
	"github.com/vladislavdragonenkov/clubtab/internal/service/catalog"
	httpsvc "github.com/vladislavdragonenkov/clubtab/internal/service/http"
	"github.com/vladislavdragonenkov/clubtab/internal/service/orders"
	"github.com/vladislavdragonenkov/clubtab/internal/service/outbox"
	"github.com/vladislavdragonenkov/clubtab/internal/service/payment"
	"github.com/vladislavdragonenkov/clubtab/internal/storage/memory"
)

const testClubID = "club-neon"

// OrderLifecycleTestSuite тестирует полный жизненный цикл заказа
// через HTTP API: от checkout клиента до выдачи барменом.
type OrderLifecycleTestSuite struct {
	suite.Suite
	repo     domain.OrderRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	gateway  *payment.MockGateway
	service  *orders.Service
	srv      *httptest.Server
}

func (suite *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	suite.repo = memory.NewOrderRepository()
	suite.outbox = memory.NewOutboxRepository()
	suite.timeline = memory.NewTimelineRepository()
	suite.gateway = payment.NewMockGateway()

	menu := catalog.NewServiceWith(
		domain.Drink{ID: "mojito", ClubID: testClubID, Name: "Mojito", PriceMinor: 500, Available: true},
		domain.Drink{ID: "negroni", ClubID: testClubID, Name: "Negroni", PriceMinor: 700, Available: true},
		domain.Drink{ID: "flat-cola", ClubID: testClubID, Name: "Cola", PriceMinor: 200, Available: false},
	)

	suite.service = orders.NewService(
		suite.repo,
		menu,
		suite.gateway,
		suite.outbox,
		suite.timeline,
		orders.WithLogger(logger),
	)

	server := httpsvc.NewServer(
		suite.service,
		httpsvc.WithLogger(logger),
		httpsvc.WithIdempotency(memory.NewIdempotencyRepository(), time.Minute),
	)
	suite.srv = httptest.NewServer(server.Router())
}

func (suite *OrderLifecycleTestSuite) TearDownTest() {
	suite.srv.Close()
}

func (suite *OrderLifecycleTestSuite) TestCashOrderFullLifecycle() {
	ctx := context.Background()
	customer := suite.customerClient("customer-1")
	bartender := suite.bartenderClient("bartender-1", testClubID)

	// 1. Клиент собирает корзину и создаёт cash-заказ
	cart := client.NewCart()
	cart.Add("mojito", 2)
	cart.Add("negroni", 1)

	order, err := customer.Checkout(ctx, testClubID, "cash", "USD", cart, "")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "pending_payment", order.Status)
	require.Equal(suite.T(), int64(1700), order.AmountMinor) // 2*500 + 700
	require.NotEmpty(suite.T(), order.FulfillmentToken)
	require.Len(suite.T(), order.Items, 2)

	// 2. Бармен подтверждает наличную оплату
	paid, err := bartender.ConfirmCashPayment(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "paid", paid.Status)

	// 3. Бармен сканирует QR-токен и получает тот же заказ
	scanned, err := bartender.Scan(ctx, order.FulfillmentToken)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), order.ID, scanned.ID)
	require.Equal(suite.T(), "paid", scanned.Status)

	// 4. Заказ проходит кухню до выдачи
	for _, status := range []string{"preparing", "ready", "completed"} {
		updated, err := bartender.UpdateStatus(ctx, order.ID, status)
		require.NoError(suite.T(), err)
		require.Equal(suite.T(), status, updated.Status)
	}

	// 5. Клиент видит завершённый заказ
	final, err := customer.GetOrder(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "completed", final.Status)
	require.NotNil(suite.T(), final.CompletedAt)
	require.True(suite.T(), final.Terminal())

	// 6. Timeline в ответе содержит создание, скан и переходы статусов
	require.GreaterOrEqual(suite.T(), len(final.Timeline), 6)
	suite.requireTimelineEvent(final.Timeline, "order.created")
	suite.requireTimelineEvent(final.Timeline, "payment.cash_confirmed")
	suite.requireTimelineEvent(final.Timeline, "token.scanned")

	// 7. Каждый переход оставил событие в outbox
	stats, err := suite.outbox.Stats()
	require.NoError(suite.T(), err)
	require.GreaterOrEqual(suite.T(), stats.PendingCount, 5)
}

func (suite *OrderLifecycleTestSuite) TestCardOrderWebhookFlow() {
	ctx := context.Background()
	customer := suite.customerClient("customer-2")

	cart := client.NewCart()
	cart.Add("mojito", 1)

	// 1. Card-checkout регистрирует intent у шлюза
	order, err := customer.Checkout(ctx, testClubID, "card", "USD", cart, "")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "pending_payment", order.Status)
	require.NotEmpty(suite.T(), order.PaymentIntentID)
	require.Equal(suite.T(), 1, suite.gateway.CreateIntentCalls)
	require.Equal(suite.T(), int64(500), suite.gateway.LastAmountMinor)

	// 2. Шлюз подтверждает списание через webhook
	status, body := suite.postWebhook("payment_intent.succeeded", order.PaymentIntentID)
	require.Equal(suite.T(), http.StatusOK, status)
	require.Equal(suite.T(), "processed", body["status"])

	paid, err := customer.GetOrder(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "paid", paid.Status)

	// 3. Повтор webhook провайдером — no-op с тем же ответом
	status, body = suite.postWebhook("payment_intent.succeeded", order.PaymentIntentID)
	require.Equal(suite.T(), http.StatusOK, status)
	require.Equal(suite.T(), "processed", body["status"])

	again, err := customer.GetOrder(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "paid", again.Status)

	// 4. Неизвестный тип события подтверждается без обработки
	status, body = suite.postWebhook("payment_intent.created", order.PaymentIntentID)
	require.Equal(suite.T(), http.StatusOK, status)
	require.Equal(suite.T(), "ignored", body["status"])
}

func (suite *OrderLifecycleTestSuite) TestCardPaymentFailureCancelsOrder() {
	ctx := context.Background()
	customer := suite.customerClient("customer-3")

	cart := client.NewCart()
	cart.Add("negroni", 1)

	order, err := customer.Checkout(ctx, testClubID, "card", "USD", cart, "")
	require.NoError(suite.T(), err)

	status, body := suite.postWebhook("payment_intent.payment_failed", order.PaymentIntentID)
	require.Equal(suite.T(), http.StatusOK, status)
	require.Equal(suite.T(), "processed", body["status"])

	cancelled, err := customer.GetOrder(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "cancelled", cancelled.Status)
	require.True(suite.T(), cancelled.Terminal())
}

func (suite *OrderLifecycleTestSuite) TestScanFromForeignClubLooksLikeMissing() {
	ctx := context.Background()
	customer := suite.customerClient("customer-4")
	foreign := suite.bartenderClient("bartender-x", "club-other")

	cart := client.NewCart()
	cart.Add("mojito", 1)

	order, err := customer.Checkout(ctx, testClubID, "cash", "USD", cart, "")
	require.NoError(suite.T(), err)

	_, err = foreign.Scan(ctx, order.FulfillmentToken)
	suite.requireAPIError(err, http.StatusNotFound, "not_found")
}

func (suite *OrderLifecycleTestSuite) TestCheckoutReplayWithIdempotencyKey() {
	ctx := context.Background()
	customer := suite.customerClient("customer-5")

	cart := client.NewCart()
	cart.Add("mojito", 1)

	const key = "checkout-replay-1"
	first, err := customer.Checkout(ctx, testClubID, "cash", "USD", cart, key)
	require.NoError(suite.T(), err)

	// Повтор с тем же ключом и телом возвращает тот же заказ без дубля
	replayed, err := customer.Checkout(ctx, testClubID, "cash", "USD", cart, key)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), first.ID, replayed.ID)

	history, err := customer.History(ctx, 0, 10)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), history, 1)

	// Тот же ключ с другой корзиной — конфликт
	other := client.NewCart()
	other.Add("negroni", 2)
	_, err = customer.Checkout(ctx, testClubID, "cash", "USD", other, key)
	suite.requireAPIError(err, http.StatusConflict, "idempotency_key_mismatch")
}

func (suite *OrderLifecycleTestSuite) TestConfirmCashOnCardOrderRejected() {
	ctx := context.Background()
	customer := suite.customerClient("customer-6")
	bartender := suite.bartenderClient("bartender-1", testClubID)

	cart := client.NewCart()
	cart.Add("mojito", 1)

	order, err := customer.Checkout(ctx, testClubID, "card", "USD", cart, "")
	require.NoError(suite.T(), err)

	_, err = bartender.ConfirmCashPayment(ctx, order.ID)
	suite.requireAPIError(err, http.StatusConflict, "wrong_payment_method")
}

func (suite *OrderLifecycleTestSuite) TestInvalidTransitionRejected() {
	ctx := context.Background()
	customer := suite.customerClient("customer-7")
	bartender := suite.bartenderClient("bartender-1", testClubID)

	cart := client.NewCart()
	cart.Add("mojito", 1)

	order, err := customer.Checkout(ctx, testClubID, "cash", "USD", cart, "")
	require.NoError(suite.T(), err)

	// completed из pending_payment — недопустимый скачок
	_, err = bartender.UpdateStatus(ctx, order.ID, "completed")
	suite.requireAPIError(err, http.StatusConflict, "invalid_transition")

	// Отмена из ready по умолчанию запрещена
	_, err = bartender.ConfirmCashPayment(ctx, order.ID)
	require.NoError(suite.T(), err)
	_, err = bartender.UpdateStatus(ctx, order.ID, "preparing")
	require.NoError(suite.T(), err)
	_, err = bartender.UpdateStatus(ctx, order.ID, "ready")
	require.NoError(suite.T(), err)
	_, err = bartender.UpdateStatus(ctx, order.ID, "cancelled")
	suite.requireAPIError(err, http.StatusConflict, "invalid_transition")
}

func (suite *OrderLifecycleTestSuite) TestCheckoutUnavailableDrinkRejected() {
	ctx := context.Background()
	customer := suite.customerClient("customer-8")

	cart := client.NewCart()
	cart.Add("mojito", 1)
	cart.Add("flat-cola", 1)

	_, err := customer.Checkout(ctx, testClubID, "cash", "USD", cart, "")
	require.Error(suite.T(), err)

	var apiErr *client.APIError
	require.ErrorAs(suite.T(), err, &apiErr)
	require.Equal(suite.T(), http.StatusBadRequest, apiErr.HTTPStatus)
	require.Equal(suite.T(), "validation_failed", apiErr.Code)
	require.Equal(suite.T(), "flat-cola", apiErr.DrinkID)

	// Заказ создаётся целиком или не создаётся вовсе
	history, err := customer.History(ctx, 0, 10)
	require.NoError(suite.T(), err)
	require.Empty(suite.T(), history)
}

func (suite *OrderLifecycleTestSuite) TestBartenderQueueReflectsLifecycle() {
	ctx := context.Background()
	customer := suite.customerClient("customer-9")
	bartender := suite.bartenderClient("bartender-1", testClubID)

	cart := client.NewCart()
	cart.Add("mojito", 1)

	order, err := customer.Checkout(ctx, testClubID, "cash", "USD", cart, "")
	require.NoError(suite.T(), err)

	// До оплаты заказ не попадает в очередь бармена
	queue, err := bartender.Queue(ctx, nil, 0)
	require.NoError(suite.T(), err)
	require.Empty(suite.T(), queue)

	_, err = bartender.ConfirmCashPayment(ctx, order.ID)
	require.NoError(suite.T(), err)

	queue, err = bartender.Queue(ctx, nil, 0)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), queue, 1)
	require.Equal(suite.T(), order.ID, queue[0].ID)
	// В очереди бармена нет fulfillment-токена: он принадлежит клиенту
	require.Empty(suite.T(), queue[0].FulfillmentToken)

	for _, status := range []string{"preparing", "ready", "completed"} {
		_, err = bartender.UpdateStatus(ctx, order.ID, status)
		require.NoError(suite.T(), err)
	}

	queue, err = bartender.Queue(ctx, nil, 0)
	require.NoError(suite.T(), err)
	require.Empty(suite.T(), queue)
}

func (suite *OrderLifecycleTestSuite) TestOutboxWorkerDeliversOrderEvents() {
	ctx := context.Background()
	customer := suite.customerClient("customer-10")
	bartender := suite.bartenderClient("bartender-1", testClubID)

	cart := client.NewCart()
	cart.Add("negroni", 2)

	order, err := customer.Checkout(ctx, testClubID, "cash", "USD", cart, "")
	require.NoError(suite.T(), err)
	_, err = bartender.ConfirmCashPayment(ctx, order.ID)
	require.NoError(suite.T(), err)

	publisher := &capturePublisher{}
	worker := outbox.NewWorker(suite.outbox, publisher, outbox.WithBatchSize(10))
	worker.ProcessOnce(ctx)

	types := publisher.eventTypes()
	require.Equal(suite.T(), []string{"order.created", "order.paid"}, types)

	stats, err := suite.outbox.Stats()
	require.NoError(suite.T(), err)
	require.Zero(suite.T(), stats.PendingCount)
}

func (suite *OrderLifecycleTestSuite) TestCustomerPollerObservesLifecycle() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	customer := suite.customerClient("customer-11")
	bartender := suite.bartenderClient("bartender-1", testClubID)

	cart := client.NewCart()
	cart.Add("mojito", 1)

	order, err := customer.Checkout(ctx, testClubID, "cash", "USD", cart, "")
	require.NoError(suite.T(), err)

	var mu sync.Mutex
	var seen []string
	poller := client.NewCustomerPoller(customer, func(fresh client.Order) {
		mu.Lock()
		seen = append(seen, fresh.Status)
		mu.Unlock()
	}, client.WithInterval(10*time.Millisecond))
	poller.Watch(order)

	done := make(chan struct{})
	go func() {
		defer close(done)
		poller.Run(ctx)
	}()

	_, err = bartender.ConfirmCashPayment(ctx, order.ID)
	require.NoError(suite.T(), err)
	for _, status := range []string{"preparing", "ready", "completed"} {
		_, err = bartender.UpdateStatus(ctx, order.ID, status)
		require.NoError(suite.T(), err)
	}

	// Пуллер останавливается сам: заказ достиг терминального статуса
	select {
	case <-done:
	case <-ctx.Done():
		suite.T().Fatal("poller did not stop after order reached terminal status")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(suite.T(), seen)
	require.Equal(suite.T(), "completed", seen[len(seen)-1])

	snapshot := poller.Snapshot()
	require.Len(suite.T(), snapshot, 1)
	require.Equal(suite.T(), "completed", snapshot[0].Status)
}

// Вспомогательные методы

func (suite *OrderLifecycleTestSuite) customerClient(customerID string) *client.Client {
	return client.NewClient(suite.srv.URL, client.WithCustomer(customerID))
}

func (suite *OrderLifecycleTestSuite) bartenderClient(bartenderID, clubID string) *client.Client {
	return client.NewClient(suite.srv.URL, client.WithBartender(bartenderID, clubID))
}

// postWebhook шлёт callback платёжного шлюза напрямую: у клиентского SDK
// этого метода нет, webhook — серверный endpoint для провайдера.
func (suite *OrderLifecycleTestSuite) postWebhook(eventType, paymentIntentID string) (int, map[string]string) {
	payload, err := json.Marshal(map[string]string{
		"type":              eventType,
		"payment_intent_id": paymentIntentID,
	})
	require.NoError(suite.T(), err)

	resp, err := http.Post(
		fmt.Sprintf("%s/api/v1/payments/webhook", suite.srv.URL),
		"application/json",
		bytes.NewReader(payload),
	)
	require.NoError(suite.T(), err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]string
	require.NoError(suite.T(), json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func (suite *OrderLifecycleTestSuite) requireAPIError(err error, httpStatus int, code string) {
	require.Error(suite.T(), err)
	var apiErr *client.APIError
	require.ErrorAs(suite.T(), err, &apiErr)
	require.Equal(suite.T(), httpStatus, apiErr.HTTPStatus)
	require.Equal(suite.T(), code, apiErr.Code)
}

func (suite *OrderLifecycleTestSuite) requireTimelineEvent(events []client.TimelineEvent, eventType string) {
	for _, event := range events {
		if event.Type == eventType {
			return
		}
	}
	suite.T().Fatalf("timeline does not contain %s event, got %d events", eventType, len(events))
}

// capturePublisher собирает опубликованные outbox-события для проверок.
type capturePublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *capturePublisher) Publish(event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.EventType)
	}
	return types
}

var _ domain.OutboxPublisher = (*capturePublisher)(nil)

func TestOrderLifecycle(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
