package httpsvc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/clubtab/internal/domain"
	"github.com/vladislavdragonenkov/clubtab/internal/service/orders"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	defaultQueueLimit   = 100
)

// handleCheckout создаёт заказ из корзины клиента.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	customerID := r.Header.Get(HeaderCustomerID)
	if customerID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "X-Customer-Id header is required")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	items := make([]orders.CheckoutItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, orders.CheckoutItem{
			DrinkID: item.DrinkID,
			Qty:     item.Qty,
		})
	}

	order, err := s.svc.Checkout(r.Context(), orders.CheckoutRequest{
		CustomerID:    customerID,
		ClubID:        req.ClubID,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		Currency:      req.Currency,
		Items:         items,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// handleGetOrder возвращает заказ его владельцу.
// Чужой заказ неотличим от несуществующего.
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	customerID := r.Header.Get(HeaderCustomerID)
	if customerID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "X-Customer-Id header is required")
		return
	}

	order, err := s.svc.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if order.CustomerID != customerID {
		writeError(w, http.StatusNotFound, codeNotFound, "order not found")
		return
	}

	// Таймлайн best-effort: его отсутствие не прячет сам заказ.
	timeline, err := s.svc.Timeline(r.Context(), order.ID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to load order timeline")
	}

	writeJSON(w, http.StatusOK, orderWithTimelineResponse{
		orderResponse: toOrderResponse(order),
		Timeline:      toTimelineResponse(timeline),
	})
}

// handleCustomerHistory возвращает историю заказов клиента с пагинацией.
func (s *Server) handleCustomerHistory(w http.ResponseWriter, r *http.Request) {
	customerID := r.Header.Get(HeaderCustomerID)
	if customerID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "X-Customer-Id header is required")
		return
	}

	skip := parseQueryInt(r, "skip", 0)
	limit := parseQueryInt(r, "limit", defaultHistoryLimit)
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	history, err := s.svc.ListCustomerOrders(r.Context(), customerID, skip, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderListResponse(history, toOrderResponse))
}

// handleScan резолвит fulfillment-токен в заказ клуба бармена.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	clubID := r.Header.Get(HeaderClubID)
	if clubID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "X-Club-Id header is required")
		return
	}

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	order, err := s.svc.ScanToken(r.Context(), clubID, req.Token)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// handleClubQueue возвращает очередь заказов клуба.
func (s *Server) handleClubQueue(w http.ResponseWriter, r *http.Request) {
	clubID := r.Header.Get(HeaderClubID)
	if clubID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "X-Club-Id header is required")
		return
	}

	statuses, err := parseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	limit := parseQueryInt(r, "limit", defaultQueueLimit)

	queue, err := s.svc.ListClubOrders(r.Context(), clubID, statuses, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderListResponse(queue, toQueueOrderResponse))
}

// handleConfirmCashPayment подтверждает наличную оплату барменом.
func (s *Server) handleConfirmCashPayment(w http.ResponseWriter, r *http.Request) {
	bartenderID := r.Header.Get(HeaderBartenderID)
	if bartenderID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "X-Bartender-Id header is required")
		return
	}

	order, err := s.svc.ConfirmCashPayment(r.Context(), chi.URLParam(r, "orderID"), bartenderID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// handleUpdateStatus выполняет переход статуса заказа барменом.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	bartenderID := r.Header.Get(HeaderBartenderID)
	if bartenderID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "X-Bartender-Id header is required")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	target := domain.OrderStatus(req.Status)
	if !target.Valid() {
		writeError(w, http.StatusBadRequest, codeBadRequest, "unknown target status")
		return
	}

	order, err := s.svc.UpdateStatus(r.Context(), chi.URLParam(r, "orderID"), target, bartenderID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// handlePaymentWebhook принимает callback платёжного шлюза.
// Ответ 200 всегда, когда событие принято к обработке, даже если заказ
// уже в целевом статусе: провайдер повторяет недоставленные события.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req paymentWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	var err error
	switch req.Type {
	case "payment_intent.succeeded":
		_, err = s.svc.PaymentCaptured(r.Context(), req.PaymentIntentID)
	case "payment_intent.payment_failed":
		_, err = s.svc.PaymentFailed(r.Context(), req.PaymentIntentID)
	default:
		// Неизвестные события подтверждаем, чтобы провайдер их не повторял.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func parseQueryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func parseStatusFilter(raw string) ([]domain.OrderStatus, error) {
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	statuses := make([]domain.OrderStatus, 0, len(parts))
	for _, part := range parts {
		status := domain.OrderStatus(strings.TrimSpace(part))
		if !status.Valid() {
			return nil, fmt.Errorf("unknown status %q in filter", part)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
