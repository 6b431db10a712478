// Package httpsvc реализует REST-транспорт сервиса заказов.
package httpsvc

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/clubtab/internal/domain"
	"github.com/vladislavdragonenkov/clubtab/internal/service/orders"
)

// Заголовки идентификации. Аутентификация выполняется выше по стеку
// (gateway), сюда приходят уже проверенные идентификаторы.
const (
	HeaderCustomerID     = "X-Customer-Id"
	HeaderBartenderID    = "X-Bartender-Id"
	HeaderClubID         = "X-Club-Id"
	HeaderIdempotencyKey = "Idempotency-Key"
)

const defaultIdempotencyTTL = 24 * time.Hour

// ServerOptions задаёт параметры HTTP-сервера.
type ServerOptions struct {
	Logger         *log.Entry
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration
}

// ServerOption настраивает Server.
type ServerOption func(*ServerOptions)

// WithLogger задаёт logger сервера.
func WithLogger(logger *log.Entry) ServerOption {
	return func(opts *ServerOptions) {
		opts.Logger = logger
	}
}

// WithIdempotency включает replay checkout-запросов по Idempotency-Key.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) ServerOption {
	return func(opts *ServerOptions) {
		opts.Idempotency = repo
		opts.IdempotencyTTL = ttl
	}
}

// Server связывает REST-маршруты с сервисом заказов.
type Server struct {
	svc            *orders.Service
	idempotency    domain.IdempotencyRepository
	idempotencyTTL time.Duration
	logger         *log.Entry
}

// NewServer создаёт HTTP-сервер заказов.
func NewServer(svc *orders.Service, options ...ServerOption) *Server {
	opts := ServerOptions{
		IdempotencyTTL: defaultIdempotencyTTL,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "http-server")
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaultIdempotencyTTL
	}

	return &Server{
		svc:            svc,
		idempotency:    opts.Idempotency,
		idempotencyTTL: opts.IdempotencyTTL,
		logger:         logger,
	}
}

// Router собирает chi-маршрутизатор со всеми эндпоинтами API.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.With(s.withIdempotency).Post("/", s.handleCheckout)
			r.Get("/me/history", s.handleCustomerHistory)
			r.Get("/{orderID}", s.handleGetOrder)
		})

		r.Route("/bartender", func(r chi.Router) {
			r.Post("/scan", s.handleScan)
			r.Get("/orders", s.handleClubQueue)
			r.Post("/orders/{orderID}/confirm-payment", s.handleConfirmCashPayment)
			r.Put("/orders/{orderID}/status", s.handleUpdateStatus)
		})

		r.Post("/payments/webhook", s.handlePaymentWebhook)
	})

	return r
}
