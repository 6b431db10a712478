package domain

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create атомарно сохраняет новый заказ вместе с позициями и токеном.
	// Возвращает ошибку, если запись с таким ID или токеном уже существует;
	// частичное создание невозможно.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// GetByToken возвращает заказ по fulfillment-токену. Совпадение строго
	// точное; любой промах — ErrOrderNotFound.
	GetByToken(token string) (Order, error)
	// GetByPaymentIntent возвращает заказ по ссылке платёжного намерения.
	GetByPaymentIntent(intentID string) (Order, error)
	// ListByClub возвращает заказы клуба в статусах statuses (пустой список —
	// без фильтра), от старых к новым: бармен обрабатывает очередь по порядку.
	ListByClub(clubID string, statuses []OrderStatus, limit int) ([]Order, error)
	// ListByCustomer возвращает заказы клиента от новых к старым с пагинацией.
	ListByCustomer(customerID string, offset, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}
