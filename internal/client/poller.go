package client

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Интервал опроса по умолчанию.
const defaultPollInterval = 5 * time.Second

// PollerOptions задаёт параметры пуллеров.
type PollerOptions struct {
	Logger   *log.Entry
	Interval time.Duration
}

// PollerOption настраивает пуллер.
type PollerOption func(*PollerOptions)

// WithLogger задаёт logger пуллера.
func WithLogger(logger *log.Entry) PollerOption {
	return func(opts *PollerOptions) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал опроса.
func WithInterval(interval time.Duration) PollerOption {
	return func(opts *PollerOptions) {
		opts.Interval = interval
	}
}

// CustomerPoller периодически опрашивает статусы заказов клиента.
// Пуллер останавливается сам, когда все наблюдаемые заказы достигли
// терминального статуса.
type CustomerPoller struct {
	api      OrdersAPI
	logger   *log.Entry
	interval time.Duration
	onUpdate func(Order)

	mu     sync.Mutex
	orders map[string]Order
}

// NewCustomerPoller создаёт пуллер заказов клиента.
// onUpdate вызывается на каждом изменении статуса наблюдаемого заказа.
func NewCustomerPoller(api OrdersAPI, onUpdate func(Order), options ...PollerOption) *CustomerPoller {
	opts := PollerOptions{Interval: defaultPollInterval}
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "customer-poller")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultPollInterval
	}

	return &CustomerPoller{
		api:      api,
		logger:   logger,
		interval: opts.Interval,
		onUpdate: onUpdate,
		orders:   make(map[string]Order),
	}
}

// Watch добавляет заказ в наблюдение.
func (p *CustomerPoller) Watch(order Order) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders[order.ID] = order
}

// Snapshot возвращает последнее известное состояние наблюдаемых заказов.
// При ошибках опроса состояние не затирается: показываем последнее успешное.
func (p *CustomerPoller) Snapshot() []Order {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]Order, 0, len(p.orders))
	for _, order := range p.orders {
		result = append(result, order)
	}
	return result
}

// Run опрашивает API до отмены ctx или до терминальности всех заказов.
func (p *CustomerPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := p.pollOnce(ctx); done {
				return
			}
		}
	}
}

// pollOnce обновляет все наблюдаемые заказы; true — наблюдать больше нечего.
func (p *CustomerPoller) pollOnce(ctx context.Context) bool {
	p.mu.Lock()
	ids := make([]string, 0, len(p.orders))
	for id, order := range p.orders {
		if !order.Terminal() {
			ids = append(ids, id)
		}
	}
	total := len(p.orders)
	p.mu.Unlock()

	if total > 0 && len(ids) == 0 {
		return true
	}

	for _, id := range ids {
		fresh, err := p.api.GetOrder(ctx, id)
		if err != nil {
			// Неудачный тик не затирает последнее известное состояние.
			p.logger.WithError(err).WithField("order_id", id).Debug("order poll failed")
			continue
		}
		// Ответ, пришедший после отмены, отбрасывается: после остановки
		// пуллера состояние больше не меняется.
		if ctx.Err() != nil {
			return false
		}

		p.mu.Lock()
		prev, known := p.orders[id]
		p.orders[id] = fresh
		p.mu.Unlock()

		if p.onUpdate != nil && (!known || prev.Status != fresh.Status) {
			p.onUpdate(fresh)
		}
	}

	p.mu.Lock()
	remaining := 0
	for _, order := range p.orders {
		if !order.Terminal() {
			remaining++
		}
	}
	total = len(p.orders)
	p.mu.Unlock()

	return total > 0 && remaining == 0
}

// QueuePoller периодически опрашивает очередь заказов клуба.
// В отличие от CustomerPoller, работает безусловно до отмены ctx:
// очередь бармена пополняется новыми заказами в любой момент.
type QueuePoller struct {
	api      OrdersAPI
	logger   *log.Entry
	interval time.Duration
	onUpdate func([]Order)

	mu       sync.Mutex
	snapshot []Order
}

// NewQueuePoller создаёт пуллер очереди бармена.
// onUpdate вызывается на каждом успешном тике со свежим снапшотом.
func NewQueuePoller(api OrdersAPI, onUpdate func([]Order), options ...PollerOption) *QueuePoller {
	opts := PollerOptions{Interval: defaultPollInterval}
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "queue-poller")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultPollInterval
	}

	return &QueuePoller{
		api:      api,
		logger:   logger,
		interval: opts.Interval,
		onUpdate: onUpdate,
	}
}

// Snapshot возвращает последнюю успешно полученную очередь.
func (p *QueuePoller) Snapshot() []Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Order(nil), p.snapshot...)
}

// Run опрашивает очередь до отмены ctx.
func (p *QueuePoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *QueuePoller) pollOnce(ctx context.Context) {
	queue, err := p.api.Queue(ctx, nil, 0)
	if err != nil {
		// Ошибка тика не затирает последний успешный снапшот.
		p.logger.WithError(err).Debug("queue poll failed")
		return
	}
	// Ответ, проигравший гонку с отменой, отбрасывается.
	if ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	p.snapshot = queue
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(queue)
	}
}
