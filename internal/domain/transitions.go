package domain

import "time"

// TransitionTable — единственный арбитр смены статусов заказа.
// Таблица проверяется сервером перед любой записью; порядок прихода
// конкурирующих запросов значения не имеет.
type TransitionTable struct {
	allowed map[OrderStatus]map[OrderStatus]bool
}

// TransitionOption настраивает таблицу переходов.
type TransitionOption func(*transitionConfig)

type transitionConfig struct {
	cancelableFrom []OrderStatus
}

// WithCancelableFrom задаёт набор статусов, из которых доступна отмена.
// Точный набор — настраиваемая политика заведения: по умолчанию отмена
// возможна из pending_payment, paid и preparing, но не из ready.
func WithCancelableFrom(statuses ...OrderStatus) TransitionOption {
	return func(cfg *transitionConfig) {
		cfg.cancelableFrom = statuses
	}
}

// NewTransitionTable собирает таблицу переходов жизненного цикла заказа:
//
//	pending_payment -> paid      (бармен для cash, платёжный шлюз для card)
//	paid            -> preparing (бармен)
//	preparing       -> ready     (бармен)
//	ready           -> completed (бармен)
//	<cancelableFrom> -> cancelled
func NewTransitionTable(options ...TransitionOption) TransitionTable {
	cfg := transitionConfig{
		cancelableFrom: []OrderStatus{
			OrderStatusPendingPayment,
			OrderStatusPaid,
			OrderStatusPreparing,
		},
	}
	for _, option := range options {
		option(&cfg)
	}

	allowed := map[OrderStatus]map[OrderStatus]bool{
		OrderStatusPendingPayment: {OrderStatusPaid: true},
		OrderStatusPaid:           {OrderStatusPreparing: true},
		OrderStatusPreparing:      {OrderStatusReady: true},
		OrderStatusReady:          {OrderStatusCompleted: true},
	}
	for _, from := range cfg.cancelableFrom {
		if from.Terminal() {
			continue
		}
		if allowed[from] == nil {
			allowed[from] = make(map[OrderStatus]bool)
		}
		allowed[from][OrderStatusCancelled] = true
	}

	return TransitionTable{allowed: allowed}
}

// DefaultTransitionTable возвращает таблицу с политикой отмены по умолчанию.
func DefaultTransitionTable() TransitionTable {
	return NewTransitionTable()
}

// CanTransition сообщает, разрешён ли переход from -> to.
func (t TransitionTable) CanTransition(from, to OrderStatus) bool {
	targets, ok := t.allowed[from]
	if !ok {
		return false
	}
	return targets[to]
}

// ApplyTransition переводит заказ в target по таблице table.
//
// Семантика:
//   - повторный запрос текущего статуса — успех без каких-либо изменений
//     (двойное нажатие не портит аудиторские метки времени);
//   - недостижимый target — ErrInvalidTransition, заказ не изменён;
//   - успешный переход обновляет UpdatedAt, а достижение completed
//     дополнительно выставляет CompletedAt (однократно).
func (o *Order) ApplyTransition(table TransitionTable, target OrderStatus, now time.Time) error {
	if !target.Valid() {
		return ErrInvalidTransition
	}
	if o.Status == target {
		return nil
	}
	if !table.CanTransition(o.Status, target) {
		return ErrInvalidTransition
	}

	o.Status = target
	o.UpdatedAt = now
	if target == OrderStatusCompleted && o.CompletedAt == nil {
		completed := now
		o.CompletedAt = &completed
	}
	return nil
}
