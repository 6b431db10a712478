package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Заголовки идентификации API (дублируют серверные константы, чтобы
// пакет клиента не тянул серверные зависимости).
const (
	headerCustomerID     = "X-Customer-Id"
	headerBartenderID    = "X-Bartender-Id"
	headerClubID         = "X-Club-Id"
	headerIdempotencyKey = "Idempotency-Key"
)

// Order — заказ, как его видит клиент API.
type Order struct {
	ID               string      `json:"id"`
	CustomerID       string      `json:"customer_id"`
	ClubID           string      `json:"club_id"`
	PaymentMethod    string      `json:"payment_method"`
	Status           string      `json:"status"`
	Currency         string      `json:"currency"`
	AmountMinor      int64       `json:"amount_minor"`
	Items            []OrderItem `json:"items"`
	FulfillmentToken string      `json:"fulfillment_token,omitempty"`
	PaymentIntentID  string      `json:"payment_intent_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	// Timeline заполняется только в ответе на одиночный запрос заказа.
	Timeline []TimelineEvent `json:"timeline,omitempty"`
}

// TimelineEvent — событие жизненного цикла заказа в ответе API.
type TimelineEvent struct {
	Type       string    `json:"type"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OrderItem — позиция заказа в ответе API.
type OrderItem struct {
	ID         string `json:"id"`
	DrinkID    string `json:"drink_id"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

// Terminal сообщает, достиг ли заказ финального статуса.
func (o Order) Terminal() bool {
	return o.Status == "completed" || o.Status == "cancelled"
}

// APIError — ошибка API с машиночитаемым кодом.
type APIError struct {
	HTTPStatus int
	Code       string `json:"code"`
	Message    string `json:"message"`
	DrinkID    string `json:"drink_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.HTTPStatus, e.Code, e.Message)
}

// OrdersAPI описывает операции клиента и бармена над заказами.
type OrdersAPI interface {
	Checkout(ctx context.Context, clubID, paymentMethod, currency string, cart *Cart, idempotencyKey string) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	History(ctx context.Context, skip, limit int) ([]Order, error)
	Scan(ctx context.Context, token string) (Order, error)
	Queue(ctx context.Context, statuses []string, limit int) ([]Order, error)
	ConfirmCashPayment(ctx context.Context, orderID string) (Order, error)
	UpdateStatus(ctx context.Context, orderID, status string) (Order, error)
}

// ClientOptions задаёт параметры HTTP-клиента API.
type ClientOptions struct {
	HTTPClient  *http.Client
	CustomerID  string
	BartenderID string
	ClubID      string
}

// ClientOption настраивает Client.
type ClientOption func(*ClientOptions)

// WithHTTPClient задаёт нестандартный http.Client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(opts *ClientOptions) {
		opts.HTTPClient = httpClient
	}
}

// WithCustomer задаёт идентификатор клиента для customer-эндпоинтов.
func WithCustomer(customerID string) ClientOption {
	return func(opts *ClientOptions) {
		opts.CustomerID = customerID
	}
}

// WithBartender задаёт идентификаторы бармена и его клуба.
func WithBartender(bartenderID, clubID string) ClientOption {
	return func(opts *ClientOptions) {
		opts.BartenderID = bartenderID
		opts.ClubID = clubID
	}
}

// Client — HTTP-реализация OrdersAPI.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	customerID  string
	bartenderID string
	clubID      string
}

// NewClient создаёт клиент API с базовым URL сервиса заказов.
func NewClient(baseURL string, options ...ClientOption) *Client {
	opts := ClientOptions{}
	for _, option := range options {
		option(&opts)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		customerID:  opts.CustomerID,
		bartenderID: opts.BartenderID,
		clubID:      opts.ClubID,
	}
}

// Checkout создаёт заказ из корзины. Непустой idempotencyKey делает
// повтор запроса безопасным.
func (c *Client) Checkout(ctx context.Context, clubID, paymentMethod, currency string, cart *Cart, idempotencyKey string) (Order, error) {
	lines := cart.Lines()
	items := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		items = append(items, map[string]any{
			"drink_id": line.DrinkID,
			"qty":      line.Qty,
		})
	}

	body := map[string]any{
		"club_id":        clubID,
		"payment_method": paymentMethod,
		"currency":       currency,
		"items":          items,
	}

	headers := map[string]string{headerCustomerID: c.customerID}
	if idempotencyKey != "" {
		headers[headerIdempotencyKey] = idempotencyKey
	}

	var order Order
	if err := c.call(ctx, http.MethodPost, "/api/v1/orders", headers, body, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}

// GetOrder возвращает заказ клиента.
func (c *Client) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var order Order
	err := c.call(ctx, http.MethodGet, "/api/v1/orders/"+orderID,
		map[string]string{headerCustomerID: c.customerID}, nil, &order)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// History возвращает страницу истории заказов клиента.
func (c *Client) History(ctx context.Context, skip, limit int) ([]Order, error) {
	var list struct {
		Orders []Order `json:"orders"`
	}
	path := fmt.Sprintf("/api/v1/orders/me/history?skip=%d&limit=%d", skip, limit)
	err := c.call(ctx, http.MethodGet, path,
		map[string]string{headerCustomerID: c.customerID}, nil, &list)
	if err != nil {
		return nil, err
	}
	return list.Orders, nil
}

// Scan резолвит fulfillment-токен в заказ клуба бармена.
func (c *Client) Scan(ctx context.Context, token string) (Order, error) {
	var order Order
	err := c.call(ctx, http.MethodPost, "/api/v1/bartender/scan",
		c.bartenderHeaders(), map[string]string{"token": token}, &order)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// Queue возвращает очередь заказов клуба бармена.
func (c *Client) Queue(ctx context.Context, statuses []string, limit int) ([]Order, error) {
	path := fmt.Sprintf("/api/v1/bartender/orders?limit=%d", limit)
	if len(statuses) > 0 {
		path += "&status="
		for i, status := range statuses {
			if i > 0 {
				path += ","
			}
			path += status
		}
	}

	var list struct {
		Orders []Order `json:"orders"`
	}
	if err := c.call(ctx, http.MethodGet, path, c.bartenderHeaders(), nil, &list); err != nil {
		return nil, err
	}
	return list.Orders, nil
}

// ConfirmCashPayment подтверждает наличную оплату заказа.
func (c *Client) ConfirmCashPayment(ctx context.Context, orderID string) (Order, error) {
	var order Order
	path := fmt.Sprintf("/api/v1/bartender/orders/%s/confirm-payment", orderID)
	if err := c.call(ctx, http.MethodPost, path, c.bartenderHeaders(), nil, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}

// UpdateStatus переводит заказ в новый статус.
func (c *Client) UpdateStatus(ctx context.Context, orderID, status string) (Order, error) {
	var order Order
	path := fmt.Sprintf("/api/v1/bartender/orders/%s/status", orderID)
	err := c.call(ctx, http.MethodPut, path, c.bartenderHeaders(),
		map[string]string{"status": status}, &order)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (c *Client) bartenderHeaders() map[string]string {
	return map[string]string{
		headerBartenderID: c.bartenderID,
		headerClubID:      c.clubID,
	}
}

func (c *Client) call(ctx context.Context, method, path string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil {
			apiErr.Code = "unknown"
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ OrdersAPI = (*Client)(nil)
