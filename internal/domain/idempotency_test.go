package domain

import "testing"

func TestIdempotencyStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status IdempotencyStatus
		want   bool
	}{
		{name: "processing", status: IdempotencyStatusProcessing, want: true},
		{name: "done", status: IdempotencyStatusDone, want: true},
		{name: "failed", status: IdempotencyStatusFailed, want: true},
		{name: "invalid", status: IdempotencyStatus("broken"), want: false},
		{name: "empty", status: IdempotencyStatus(""), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Fatalf("status %q valid=%v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestNewFulfillmentToken(t *testing.T) {
	first := NewFulfillmentToken()
	second := NewFulfillmentToken()

	if first == "" || second == "" {
		t.Fatal("token must not be empty")
	}
	if first == second {
		t.Fatal("tokens must be unique per call")
	}
	if len(first) != 36 {
		t.Fatalf("unexpected token format: %s", first)
	}
}
