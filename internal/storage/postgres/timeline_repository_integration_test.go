package postgres

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/clubtab/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := migratedIntegrationStore(t)
	repo := NewTimelineRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)

	events := []domain.TimelineEvent{
		{OrderID: "order-1", Type: "order.created", Reason: "pending_payment", Occurred: now.Add(-2 * time.Minute)},
		{OrderID: "order-1", Type: "payment.cash_confirmed", Reason: "bartender-1", Occurred: now.Add(-time.Minute)},
		{OrderID: "order-2", Type: "order.created", Reason: "pending_payment", Occurred: now},
	}
	for _, event := range events {
		if err := repo.Append(event); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}

	listed, err := repo.List("order-1")
	if err != nil {
		t.Fatalf("list timeline: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 events for order-1, got %d", len(listed))
	}
	if listed[0].Type != "order.created" || listed[1].Type != "payment.cash_confirmed" {
		t.Fatalf("events must be ordered by occurrence: %+v", listed)
	}

	empty, err := repo.List("unknown-order")
	if err != nil {
		t.Fatalf("list unknown order: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty timeline, got %+v", empty)
	}
}

func TestTimelineRepository_PostgresZeroOccurredDefaulted(t *testing.T) {
	store := migratedIntegrationStore(t)
	repo := NewTimelineRepository(store)

	if err := repo.Append(domain.TimelineEvent{OrderID: "order-3", Type: "token.scanned"}); err != nil {
		t.Fatalf("append event without occurred: %v", err)
	}

	listed, err := repo.List("order-3")
	if err != nil {
		t.Fatalf("list timeline: %v", err)
	}
	if len(listed) != 1 || listed[0].Occurred.IsZero() {
		t.Fatalf("occurred must default to now: %+v", listed)
	}
}
