package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryBackoffGrowsAndCaps(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{2, 40 * time.Second},
		{5, 320 * time.Second},
		{9, time.Hour},
		{40, time.Hour},
		{200, time.Hour},
	}
	for _, tc := range cases {
		got := retryBackoff(tc.attempts)
		if got != tc.want {
			t.Errorf("retryBackoff(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
		if got <= 0 {
			t.Errorf("retryBackoff(%d) = %v, must stay positive", tc.attempts, got)
		}
	}
}

func TestOutboxSenderPollReschedulesFailure(t *testing.T) {
	s := NewInMemoryStore()
	id, err := s.EnqueueOutboxMessage("tenant_a", OutboxKindBookingConfirmation, `{"booking_id":"b_1"}`, "")
	if err != nil {
		t.Fatalf("EnqueueOutboxMessage failed: %v", err)
	}

	sendErr := errors.New("sms gateway timeout")
	sender := NewOutboxSender(s, func(ctx context.Context, msg OutboxMessage) error {
		return sendErr
	}, time.Second)
	sender.poll(context.Background())

	// Rescheduled in the future, so an immediate claim finds nothing.
	soon, err := s.ClaimDueOutboxMessages(time.Now(), 10)
	if err != nil {
		t.Fatalf("ClaimDueOutboxMessages failed: %v", err)
	}
	if len(soon) != 0 {
		t.Fatalf("failed message claimable immediately, got %d messages", len(soon))
	}

	due, err := s.ClaimDueOutboxMessages(time.Now().Add(11*time.Second), 10)
	if err != nil {
		t.Fatalf("ClaimDueOutboxMessages failed: %v", err)
	}
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("failed message not due after backoff, got %+v", due)
	}
	if due[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1", due[0].Attempts)
	}
	if due[0].LastError != sendErr.Error() {
		t.Errorf("last error = %q", due[0].LastError)
	}
}
