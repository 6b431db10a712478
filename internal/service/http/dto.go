package httpsvc

import (
	"time"

	"github.com/vladislavdragonenkov/clubtab/internal/domain"
)

type checkoutItemRequest struct {
	DrinkID string `json:"drink_id"`
	Qty     int32  `json:"qty"`
}

type checkoutRequest struct {
	ClubID        string                `json:"club_id"`
	PaymentMethod string                `json:"payment_method"`
	Currency      string                `json:"currency"`
	Items         []checkoutItemRequest `json:"items"`
}

type scanRequest struct {
	Token string `json:"token"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// paymentWebhookRequest повторяет форму событий платёжного провайдера:
// тип события и идентификатор платёжного намерения.
type paymentWebhookRequest struct {
	Type            string `json:"type"`
	PaymentIntentID string `json:"payment_intent_id"`
}

type orderItemResponse struct {
	ID         string `json:"id"`
	DrinkID    string `json:"drink_id"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

type orderResponse struct {
	ID               string              `json:"id"`
	CustomerID       string              `json:"customer_id"`
	ClubID           string              `json:"club_id"`
	PaymentMethod    string              `json:"payment_method"`
	Status           string              `json:"status"`
	Currency         string              `json:"currency"`
	AmountMinor      int64               `json:"amount_minor"`
	Items            []orderItemResponse `json:"items"`
	FulfillmentToken string              `json:"fulfillment_token,omitempty"`
	PaymentIntentID  string              `json:"payment_intent_id,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
}

type timelineEventResponse struct {
	Type       string    `json:"type"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// orderWithTimelineResponse — заказ вместе с историей его жизненного цикла;
// отдаётся только по одиночному запросу заказа.
type orderWithTimelineResponse struct {
	orderResponse
	Timeline []timelineEventResponse `json:"timeline,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	DrinkID string `json:"drink_id,omitempty"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:         item.ID,
			DrinkID:    item.DrinkID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}

	return orderResponse{
		ID:               order.ID,
		CustomerID:       order.CustomerID,
		ClubID:           order.ClubID,
		PaymentMethod:    string(order.PaymentMethod),
		Status:           string(order.Status),
		Currency:         order.Currency,
		AmountMinor:      order.AmountMinor,
		Items:            items,
		FulfillmentToken: order.FulfillmentToken,
		PaymentIntentID:  order.PaymentIntentID,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
		CompletedAt:      order.CompletedAt,
	}
}

func toTimelineResponse(events []domain.TimelineEvent) []timelineEventResponse {
	if len(events) == 0 {
		return nil
	}
	result := make([]timelineEventResponse, 0, len(events))
	for _, event := range events {
		result = append(result, timelineEventResponse{
			Type:       event.Type,
			Reason:     event.Reason,
			OccurredAt: event.Occurred,
		})
	}
	return result
}

// toQueueOrderResponse — представление заказа для очереди бармена.
// Токен выдачи не раскрывается: бармен получает его только сканированием.
func toQueueOrderResponse(order domain.Order) orderResponse {
	resp := toOrderResponse(order)
	resp.FulfillmentToken = ""
	resp.PaymentIntentID = ""
	return resp
}

func toOrderListResponse(ordersList []domain.Order, project func(domain.Order) orderResponse) orderListResponse {
	resp := orderListResponse{
		Orders: make([]orderResponse, 0, len(ordersList)),
	}
	for _, order := range ordersList {
		resp.Orders = append(resp.Orders, project(order))
	}
	return resp
}
