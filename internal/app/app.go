package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/clubtab/internal/health"
	"github.com/vladislavdragonenkov/clubtab/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/clubtab/internal/metrics"
	httpsvc "github.com/vladislavdragonenkov/clubtab/internal/service/http"
	"github.com/vladislavdragonenkov/clubtab/internal/service/idempotency"
	"github.com/vladislavdragonenkov/clubtab/internal/service/orders"
	"github.com/vladislavdragonenkov/clubtab/internal/service/outbox"
	"github.com/vladislavdragonenkov/clubtab/internal/version"

	"github.com/vladislavdragonenkov/clubtab/internal/domain"
)

// Run собирает зависимости и запускает сервис заказов: REST API,
// сервер метрик, outbox-воркер и фоновую очистку ключей идемпотентности.
// Блокируется до отмены ctx или фатальной ошибки.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	orderMetrics := metrics.NewOrderMetrics()
	table := transitionTable(cfg)

	orderService := orders.NewService(
		deps.Repo,
		deps.Catalog,
		deps.Gateway,
		deps.OutboxRepo,
		deps.TimelineRepo,
		orders.WithLogger(logger.WithField("layer", "orders")),
		orders.WithMetrics(orderMetrics),
		orders.WithTransitionTable(table),
	)

	server := httpsvc.NewServer(
		orderService,
		httpsvc.WithLogger(logger.WithField("layer", "http")),
		httpsvc.WithIdempotency(deps.IdempotencyRepo, cfg.IdempotencyTTL),
	)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var wg sync.WaitGroup

	if cfg.OutboxEnabled && kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicOrderEvents)
		dlqPublisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)

		worker := outbox.NewWorker(
			deps.OutboxRepo,
			publisher,
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithDLQPublisher(dlqPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(workerCtx)
		}()
	} else if cfg.OutboxEnabled {
		logger.Warn("outbox worker disabled: kafka producer is not available")
	}

	cleanup := idempotency.NewCleanupWorker(
		deps.IdempotencyRepo,
		idempotency.WithLogger(logger.WithField("layer", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanup.Run(workerCtx)
	}()

	healthHandler := buildHealthHandler(deps, kafkaProducer)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		stopWorkers()
		wg.Wait()
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		stopWorkers()
		wg.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// transitionTable строит таблицу переходов под политику отмены заведения.
func transitionTable(cfg Config) domain.TransitionTable {
	if !cfg.CancelFromReady {
		return domain.DefaultTransitionTable()
	}
	return domain.NewTransitionTable(domain.WithCancelableFrom(
		domain.OrderStatusPendingPayment,
		domain.OrderStatusPaid,
		domain.OrderStatusPreparing,
		domain.OrderStatusReady,
	))
}

// buildHealthHandler собирает health-check с проверками компонентов.
func buildHealthHandler(deps *Dependencies, producer *kafka.Producer) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.String())

	if deps.Store != nil {
		store := deps.Store
		handler.RegisterCheckFunc("storage", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(ctx)
		})
	}
	if producer != nil {
		handler.RegisterCheckFunc("kafka", func() error {
			return nil
		})
	}

	return handler
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
