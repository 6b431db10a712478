package postgres

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/clubtab/internal/domain"
)

func TestOutboxRepository_PostgresEnqueuePullAndMark(t *testing.T) {
	store := migratedIntegrationStore(t)
	repo := NewOutboxRepository(store)

	msg, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "order.created",
		Payload:       []byte(`{"order_id":"order-1"}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if msg.ID == "" {
		t.Fatal("expected generated message id")
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != msg.ID {
		t.Fatalf("unexpected pending batch: %+v", pending)
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 1 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := repo.MarkSent(msg.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	pending, err = repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull after sent: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("sent message must leave the batch: %+v", pending)
	}
}

func TestOutboxRepository_PostgresFailedIsRetried(t *testing.T) {
	store := migratedIntegrationStore(t)
	repo := NewOutboxRepository(store)

	msg, err := repo.Enqueue(domain.OutboxMessage{
		ID:            "outbox-retry",
		AggregateType: "order",
		AggregateID:   "order-2",
		EventType:     "order.paid",
		Payload:       []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := repo.MarkFailed(msg.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != msg.ID {
		t.Fatalf("failed message must be retried: %+v", pending)
	}
}

func TestOutboxRepository_PostgresMarkUnknown(t *testing.T) {
	store := migratedIntegrationStore(t)
	repo := NewOutboxRepository(store)

	if err := repo.MarkSent("missing-id"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish for unknown id, got %v", err)
	}
}
