package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voicelane/bookline/internal/store"
)

func TestRecoverAllRunsTasksInOrder(t *testing.T) {
	m := NewManager()

	var order []string
	m.Register(TaskFunc("first", func(ctx context.Context) (int, error) {
		order = append(order, "first")
		return 2, nil
	}))
	m.Register(TaskFunc("second", func(ctx context.Context) (int, error) {
		order = append(order, "second")
		return 1, nil
	}))

	if err := m.RecoverAll(context.Background()); err != nil {
		t.Fatalf("RecoverAll failed: %v", err)
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("expected tasks to run in registration order, got %v", order)
	}
}

func TestRecoverAllContinuesPastFailures(t *testing.T) {
	m := NewManager()

	ran := false
	m.Register(TaskFunc("failing", func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	}))
	m.Register(TaskFunc("surviving", func(ctx context.Context) (int, error) {
		ran = true
		return 0, nil
	}))

	err := m.RecoverAll(context.Background())
	if err == nil {
		t.Fatal("expected RecoverAll to report the failing task")
	}
	if !ran {
		t.Error("expected the task after the failure to still run")
	}
}

func TestRecoverAllEmptyManager(t *testing.T) {
	if err := NewManager().RecoverAll(context.Background()); err != nil {
		t.Fatalf("RecoverAll on empty manager should succeed, got %v", err)
	}
}

func TestOutboxStaleRequeueTask(t *testing.T) {
	st := store.NewInMemoryStore()
	defer st.Close()

	id, err := st.EnqueueOutboxMessage("tenant_a", store.OutboxKindBookingConfirmation, `{}`, "")
	if err != nil {
		t.Fatalf("EnqueueOutboxMessage failed: %v", err)
	}

	// Claim the message so it sits in sending, simulating a crash mid-send.
	claimed, err := st.ClaimDueOutboxMessages(time.Now(), 10)
	if err != nil {
		t.Fatalf("ClaimDueOutboxMessages failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != id {
		t.Fatalf("expected to claim the enqueued message, got %v", claimed)
	}

	m := NewManager()
	m.Register(TaskFunc("outbox-stale-requeue", func(ctx context.Context) (int, error) {
		return st.RequeueStaleSendingMessages(time.Now().Add(time.Minute))
	}))

	if err := m.RecoverAll(context.Background()); err != nil {
		t.Fatalf("RecoverAll failed: %v", err)
	}

	reclaimed, err := st.ClaimDueOutboxMessages(time.Now(), 10)
	if err != nil {
		t.Fatalf("ClaimDueOutboxMessages after recovery failed: %v", err)
	}
	if len(reclaimed) != 1 {
		t.Errorf("expected the stale message to be claimable again, got %d", len(reclaimed))
	}
}
