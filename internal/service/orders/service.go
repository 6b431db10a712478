package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/clubtab/internal/domain"
	"github.com/vladislavdragonenkov/clubtab/internal/metrics"
)

const defaultSaveRetries = 3

// CheckoutItem — строка корзины в checkout-запросе.
type CheckoutItem struct {
	DrinkID string
	Qty     int32
}

// CheckoutRequest — параметры создания заказа.
type CheckoutRequest struct {
	CustomerID    string
	ClubID        string
	PaymentMethod domain.PaymentMethod
	Currency      string
	Items         []CheckoutItem
}

// Options задаёт параметры сервиса заказов.
type Options struct {
	Logger      *log.Entry
	Metrics     *metrics.OrderMetrics
	Transitions *domain.TransitionTable
	Clock       func() time.Time
	SaveRetries int
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики жизненного цикла заказов.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithTransitionTable задаёт таблицу переходов статусов.
func WithTransitionTable(table domain.TransitionTable) Option {
	return func(opts *Options) {
		opts.Transitions = &table
	}
}

// WithClock задаёт источник времени; используется в тестах.
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// WithSaveRetries задаёт число повторов сохранения при конфликте версий.
func WithSaveRetries(retries int) Option {
	return func(opts *Options) {
		opts.SaveRetries = retries
	}
}

// Service реализует жизненный цикл заказа: checkout, авторизация оплаты,
// переходы статусов барменом и резолв fulfillment-токена.
type Service struct {
	repo        domain.OrderRepository
	catalog     domain.CatalogService
	gateway     domain.PaymentGateway
	outbox      domain.OutboxRepository
	timeline    domain.TimelineRepository
	transitions *domain.TransitionTable
	metrics     *metrics.OrderMetrics
	logger      *log.Entry
	now         func() time.Time
	saveRetries int
}

// NewService создаёт сервис заказов.
func NewService(
	repo domain.OrderRepository,
	catalog domain.CatalogService,
	gateway domain.PaymentGateway,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	options ...Option,
) *Service {
	opts := Options{
		SaveRetries: defaultSaveRetries,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-service")
	}
	transitions := opts.Transitions
	if transitions == nil {
		table := domain.DefaultTransitionTable()
		transitions = &table
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.SaveRetries <= 0 {
		opts.SaveRetries = defaultSaveRetries
	}

	return &Service{
		repo:        repo,
		catalog:     catalog,
		gateway:     gateway,
		outbox:      outbox,
		timeline:    timeline,
		transitions: transitions,
		metrics:     opts.Metrics,
		logger:      logger,
		now:         clock,
		saveRetries: opts.SaveRetries,
	}
}

// Checkout валидирует корзину, фиксирует цены и создаёт заказ
// в статусе pending_payment с уже выпущенным fulfillment-токеном.
// Заказ создаётся целиком или не создаётся вовсе.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (domain.Order, error) {
	started := s.now()

	if err := s.validateCheckout(req); err != nil {
		s.recordCheckoutRejected()
		return domain.Order{}, err
	}

	now := s.now()
	items := make([]domain.OrderItem, 0, len(req.Items))
	var total int64
	for _, line := range req.Items {
		drink, err := s.catalog.Lookup(req.ClubID, line.DrinkID)
		if err != nil {
			s.recordCheckoutRejected()
			return domain.Order{}, domain.NewValidationError(line.DrinkID, err)
		}
		items = append(items, domain.OrderItem{
			ID:      uuid.NewString(),
			DrinkID: drink.ID,
			Qty:     line.Qty,
			// Цена фиксируется на момент заказа и больше не меняется.
			PriceMinor: drink.PriceMinor,
			CreatedAt:  now,
		})
		total += int64(line.Qty) * drink.PriceMinor
	}

	order := domain.Order{
		ID:               uuid.NewString(),
		CustomerID:       req.CustomerID,
		ClubID:           req.ClubID,
		PaymentMethod:    req.PaymentMethod,
		Status:           domain.OrderStatusPendingPayment,
		Currency:         req.Currency,
		AmountMinor:      total,
		Items:            items,
		FulfillmentToken: domain.NewFulfillmentToken(),
		Version:          0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if req.PaymentMethod == domain.PaymentMethodCard {
		intent, err := s.gateway.CreateIntent(order.ID, order.AmountMinor, order.Currency)
		if err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("payment intent creation failed")
			return domain.Order{}, fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
		}
		order.PaymentIntentID = intent.ID
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		s.recordCheckoutRejected()
		return domain.Order{}, domain.NewValidationError("", errs[0])
	}

	if err := s.repo.Create(order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.appendTimelineEvent(order.ID, "order.created", string(req.PaymentMethod))
	s.enqueueOrderEvent(order, "order.created")

	if s.metrics != nil {
		s.metrics.RecordOrderCreated(string(order.PaymentMethod))
		s.metrics.RecordCheckoutDuration(s.now().Sub(started))
	}

	s.logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"club_id":        order.ClubID,
		"payment_method": order.PaymentMethod,
		"amount_minor":   order.AmountMinor,
	}).Info("order created")

	return order, nil
}

func (s *Service) validateCheckout(req CheckoutRequest) error {
	if req.CustomerID == "" {
		return domain.NewValidationError("", domain.ErrCustomerRequired)
	}
	if req.ClubID == "" {
		return domain.NewValidationError("", domain.ErrClubRequired)
	}
	if !req.PaymentMethod.Valid() {
		return domain.NewValidationError("", domain.ErrPaymentMethodInvalid)
	}
	if req.Currency == "" {
		return domain.NewValidationError("", domain.ErrCurrencyRequired)
	}
	if len(req.Items) == 0 {
		return domain.NewValidationError("", domain.ErrItemsRequired)
	}
	for _, line := range req.Items {
		if line.Qty <= 0 {
			return domain.NewValidationError(line.DrinkID, domain.ErrItemQtyInvalid)
		}
	}
	return nil
}

// ConfirmCashPayment подтверждает наличную оплату барменом.
// Для card-заказа операция запрещена в любом статусе.
func (s *Service) ConfirmCashPayment(ctx context.Context, orderID, bartenderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}

	order, err := s.repo.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	// Проверка способа оплаты идёт до проверки статуса: ошибка не должна
	// зависеть от того, в каком статусе сейчас card-заказ.
	if order.PaymentMethod != domain.PaymentMethodCash {
		return domain.Order{}, domain.ErrWrongPaymentMethod
	}

	return s.transition(ctx, orderID, domain.OrderStatusPaid, "payment.cash_confirmed", bartenderID)
}

// PaymentCaptured обрабатывает успешный callback платёжного шлюза.
// Повторный callback по уже оплаченному заказу — no-op.
func (s *Service) PaymentCaptured(ctx context.Context, paymentIntentID string) (domain.Order, error) {
	order, err := s.lookupCardOrder(paymentIntentID)
	if err != nil {
		s.recordWebhook("unknown")
		return domain.Order{}, err
	}

	updated, err := s.transition(ctx, order.ID, domain.OrderStatusPaid, "payment.captured", paymentIntentID)
	if err != nil {
		s.recordWebhook("rejected")
		return domain.Order{}, err
	}
	s.recordWebhook("captured")
	return updated, nil
}

// PaymentFailed обрабатывает отказ платёжного шлюза: заказ отменяется.
func (s *Service) PaymentFailed(ctx context.Context, paymentIntentID string) (domain.Order, error) {
	order, err := s.lookupCardOrder(paymentIntentID)
	if err != nil {
		s.recordWebhook("unknown")
		return domain.Order{}, err
	}

	updated, err := s.transition(ctx, order.ID, domain.OrderStatusCancelled, "payment.failed", paymentIntentID)
	if err != nil {
		s.recordWebhook("rejected")
		return domain.Order{}, err
	}
	s.recordWebhook("failed")
	return updated, nil
}

func (s *Service) lookupCardOrder(paymentIntentID string) (domain.Order, error) {
	if paymentIntentID == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order, err := s.repo.GetByPaymentIntent(paymentIntentID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.PaymentMethod != domain.PaymentMethodCard {
		return domain.Order{}, domain.ErrWrongPaymentMethod
	}
	return order, nil
}

// UpdateStatus выполняет переход статуса по запросу бармена.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, target domain.OrderStatus, bartenderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	return s.transition(ctx, orderID, target, "status.updated", bartenderID)
}

// ScanToken резолвит fulfillment-токен в заказ клуба clubID.
// Некорректный, неизвестный и чужой токен дают одинаковый ErrOrderNotFound.
// Сканирование ничего не меняет: переход статуса — отдельное действие бармена.
func (s *Service) ScanToken(ctx context.Context, clubID, token string) (domain.Order, error) {
	order, err := s.repo.GetByToken(token)
	if err != nil {
		s.recordScan("not_found")
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if clubID == "" || order.ClubID != clubID {
		s.recordScan("foreign_club")
		return domain.Order{}, domain.ErrOrderNotFound
	}

	s.recordScan("ok")
	s.appendTimelineEvent(order.ID, "token.scanned", clubID)
	return order, nil
}

// ListClubOrders возвращает очередь заказов клуба.
// Без явного фильтра отдаются только активные для бармена статусы.
func (s *Service) ListClubOrders(ctx context.Context, clubID string, statuses []domain.OrderStatus, limit int) ([]domain.Order, error) {
	if clubID == "" {
		return nil, domain.ErrClubRequired
	}
	if len(statuses) == 0 {
		statuses = []domain.OrderStatus{
			domain.OrderStatusPaid,
			domain.OrderStatusPreparing,
			domain.OrderStatusReady,
		}
	}
	return s.repo.ListByClub(clubID, statuses, limit)
}

// ListCustomerOrders возвращает историю заказов клиента от новых к старым.
func (s *Service) ListCustomerOrders(ctx context.Context, customerID string, offset, limit int) ([]domain.Order, error) {
	if customerID == "" {
		return nil, domain.ErrCustomerRequired
	}
	return s.repo.ListByCustomer(customerID, offset, limit)
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	return s.repo.Get(orderID)
}

// Timeline возвращает события жизненного цикла заказа.
func (s *Service) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(orderID)
}

// transition применяет переход статуса с optimistic locking.
// При конфликте версий заказ перечитывается и попытка повторяется,
// так что конкурентные запросы сериализуются без потери обновлений.
func (s *Service) transition(ctx context.Context, orderID string, target domain.OrderStatus, eventType, reason string) (domain.Order, error) {
	var lastErr error

	for attempt := 0; attempt < s.saveRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Order{}, err
		}

		order, err := s.repo.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}

		// Повторный запрос уже достигнутого статуса: успех без записи.
		if order.Status == target {
			return order, nil
		}

		prevStatus := order.Status
		now := s.now()
		if err := order.ApplyTransition(*s.transitions, target, now); err != nil {
			if s.metrics != nil && errors.Is(err, domain.ErrInvalidTransition) {
				s.metrics.RecordTransitionDenied()
			}
			return domain.Order{}, err
		}

		if err := s.repo.Save(order); err != nil {
			if domain.IsVersionConflict(err) {
				lastErr = err
				continue
			}
			return domain.Order{}, fmt.Errorf("save order: %w", err)
		}
		order.Version++

		s.appendTimelineEvent(order.ID, eventType, string(target))
		s.enqueueOrderEvent(order, "order."+string(target))
		s.recordTransition(order, now)

		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"from":     prevStatus,
			"to":       target,
			"reason":   reason,
		}).Info("order status changed")

		return order, nil
	}

	return domain.Order{}, fmt.Errorf("transition to %s: %w", target, lastErr)
}

func (s *Service) recordTransition(order domain.Order, now time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordTransition(string(order.Status))
	if order.Status.Terminal() {
		s.metrics.RecordOrderFinished()
	}
	if order.Status == domain.OrderStatusCompleted {
		s.metrics.RecordFulfillment(now.Sub(order.CreatedAt))
	}
}

func (s *Service) recordCheckoutRejected() {
	if s.metrics != nil {
		s.metrics.RecordCheckoutRejected()
	}
}

func (s *Service) recordScan(result string) {
	if s.metrics != nil {
		s.metrics.RecordScan(result)
	}
}

func (s *Service) recordWebhook(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordPaymentWebhook(outcome)
	}
}

func (s *Service) appendTimelineEvent(orderID, eventType, reason string) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: s.now(),
	}
	if err := s.timeline.Append(event); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("failed to append timeline event")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

func (s *Service) enqueueOrderEvent(order domain.Order, eventType string) {
	if s.outbox == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"order_id":       order.ID,
		"customer_id":    order.CustomerID,
		"club_id":        order.ClubID,
		"status":         order.Status,
		"payment_method": order.PaymentMethod,
		"amount_minor":   order.AmountMinor,
		"currency":       order.Currency,
		"occurred_at":    s.now().Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to marshal order event")
		return
	}

	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to enqueue outbox event")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}
