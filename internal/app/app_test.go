package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/clubtab/internal/domain"
)

func TestTransitionTable_Default(t *testing.T) {
	cfg := DefaultConfig()

	table := transitionTable(cfg)

	if !table.CanTransition(domain.OrderStatusPendingPayment, domain.OrderStatusCancelled) {
		t.Error("expected cancel from pending_payment to be allowed")
	}
	if !table.CanTransition(domain.OrderStatusPaid, domain.OrderStatusCancelled) {
		t.Error("expected cancel from paid to be allowed")
	}
	if !table.CanTransition(domain.OrderStatusPreparing, domain.OrderStatusCancelled) {
		t.Error("expected cancel from preparing to be allowed")
	}
	if table.CanTransition(domain.OrderStatusReady, domain.OrderStatusCancelled) {
		t.Error("expected cancel from ready to be denied by default")
	}
}

func TestTransitionTable_CancelFromReady(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CancelFromReady = true

	table := transitionTable(cfg)

	if !table.CanTransition(domain.OrderStatusReady, domain.OrderStatusCancelled) {
		t.Error("expected cancel from ready to be allowed when enabled")
	}
	if !table.CanTransition(domain.OrderStatusPendingPayment, domain.OrderStatusCancelled) {
		t.Error("expected cancel from pending_payment to stay allowed")
	}
	if table.CanTransition(domain.OrderStatusCompleted, domain.OrderStatusCancelled) {
		t.Error("expected cancel from completed to be denied")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.OutboxEnabled = false

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			t.Errorf("expected context error or nil, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestRun_UnsupportedDriverFailsFast(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "cassandra"

	err := Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}
