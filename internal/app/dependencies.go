package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/clubtab/internal/domain"
	"github.com/vladislavdragonenkov/clubtab/internal/service/catalog"
	"github.com/vladislavdragonenkov/clubtab/internal/service/payment"
	"github.com/vladislavdragonenkov/clubtab/internal/storage/memory"
	"github.com/vladislavdragonenkov/clubtab/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Repo            domain.OrderRepository
	OutboxRepo      domain.OutboxRepository
	TimelineRepo    domain.TimelineRepository
	IdempotencyRepo domain.IdempotencyRepository
	Catalog         *catalog.Service
	Gateway         domain.PaymentGateway
	Logger          *log.Entry

	// Store не nil только для postgres-драйвера; нужен для health-check
	// и закрытия подключения.
	Store *postgres.Store
}

// NewDependencies создаёт зависимости приложения под выбранный storage-драйвер.
// NOTE: каталог и платёжный шлюз — mock-реализации для разработки и демо.
// В production их заменяют клиенты реального каталога и платёжного провайдера.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		Catalog: catalog.NewServiceWith(demoDrinks()...),
		Gateway: payment.NewMockGateway(),
		Logger:  logger,
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		deps.Repo = memory.NewOrderRepository()
		deps.OutboxRepo = memory.NewOutboxRepository()
		deps.TimelineRepo = memory.NewTimelineRepository()
		deps.IdempotencyRepo = memory.NewIdempotencyRepository()
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required for storage driver %q", cfg.StorageDriver)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.Store = store
		deps.Repo = postgres.NewOrderRepository(store)
		deps.OutboxRepo = postgres.NewOutboxRepository(store)
		deps.TimelineRepo = postgres.NewTimelineRepository(store)
		deps.IdempotencyRepo = postgres.NewIdempotencyRepository(store)
		logger.Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}

	return deps, nil
}

// demoDrinks возвращает стартовое меню для разработки и демо.
// В production каталог наполняется администратором клуба через его сервис.
func demoDrinks() []domain.Drink {
	return []domain.Drink{
		{ID: "mojito", ClubID: "club-load", Name: "Mojito", PriceMinor: 500, Available: true},
		{ID: "mojito-demo", ClubID: "club-demo", Name: "Mojito", PriceMinor: 500, Available: true},
		{ID: "negroni-demo", ClubID: "club-demo", Name: "Negroni", PriceMinor: 700, Available: true},
		{ID: "cola-demo", ClubID: "club-demo", Name: "Cola", PriceMinor: 200, Available: true},
	}
}

// Close освобождает ресурсы зависимостей.
func (d *Dependencies) Close() {
	if d == nil || d.Store == nil {
		return
	}
	if err := d.Store.Close(); err != nil {
		d.Logger.WithError(err).Warn("failed to close postgres store")
	}
}
