package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/voicelane/bookline/internal/flow"
	"github.com/voicelane/bookline/internal/store"
)

var _ flow.Notifier = (*OutboxNotifier)(nil)

// BookingConfirmationPayload is the outbox payload for a caller confirmation.
type BookingConfirmationPayload struct {
	BookingID  string `json:"booking_id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	TimeWindow string `json:"time_window"`
}

// EscalationAlertPayload is the outbox payload for a tenant escalation alert.
type EscalationAlertPayload struct {
	SessionID   string `json:"session_id"`
	AlertNumber string `json:"alert_number"`
	Reason      string `json:"reason,omitempty"`
}

// OutboxNotifier satisfies the engine's notifier by enqueueing durable outbox
// messages. Actual delivery happens in the outbox sender loop, so the engine
// never blocks a turn on a carrier API, and a crash before delivery is
// recovered on restart.
type OutboxNotifier struct {
	repo store.OutboxRepo
}

// NewOutboxNotifier creates a notifier writing to the given outbox.
func NewOutboxNotifier(repo store.OutboxRepo) *OutboxNotifier {
	return &OutboxNotifier{repo: repo}
}

// SendBookingConfirmation enqueues a confirmation message for the caller,
// deduplicated per booking.
func (n *OutboxNotifier) SendBookingConfirmation(_ context.Context, tenantID string, booking flow.BookingData) flow.NotifyResult {
	payload, err := json.Marshal(BookingConfirmationPayload{
		BookingID:  booking.BookingID,
		Name:       booking.Name,
		Phone:      booking.Phone,
		Address:    booking.Address,
		TimeWindow: booking.TimeWindow,
	})
	if err != nil {
		slog.Error("OutboxNotifier.SendBookingConfirmation: failed to marshal payload", "error", err, "bookingID", booking.BookingID)
		return flow.NotifyResult{}
	}

	dedupeKey := store.OutboxKindBookingConfirmation + ":" + booking.BookingID
	id, err := n.repo.EnqueueOutboxMessage(tenantID, store.OutboxKindBookingConfirmation, string(payload), dedupeKey)
	if err != nil {
		slog.Error("OutboxNotifier.SendBookingConfirmation: failed to enqueue", "error", err, "bookingID", booking.BookingID)
		return flow.NotifyResult{}
	}
	slog.Info("OutboxNotifier.SendBookingConfirmation: confirmation queued", "outboxID", id, "bookingID", booking.BookingID, "tenantID", tenantID)
	return flow.NotifyResult{Success: true, Method: "outbox"}
}

// EnqueueEscalationAlert queues an alert to the tenant's escalation number,
// deduplicated per session.
func (n *OutboxNotifier) EnqueueEscalationAlert(tenantID, sessionID, alertNumber, reason string) error {
	payload, err := json.Marshal(EscalationAlertPayload{
		SessionID:   sessionID,
		AlertNumber: alertNumber,
		Reason:      reason,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal escalation alert: %w", err)
	}
	dedupeKey := store.OutboxKindEscalationAlert + ":" + sessionID
	_, err = n.repo.EnqueueOutboxMessage(tenantID, store.OutboxKindEscalationAlert, string(payload), dedupeKey)
	return err
}

// NewOutboxSendFunc returns the outbox sender callback that renders queued
// payloads and delivers them through the given service.
func NewOutboxSendFunc(svc Service) store.OutboxSendFunc {
	return func(ctx context.Context, msg store.OutboxMessage) error {
		switch msg.Kind {
		case store.OutboxKindBookingConfirmation:
			var p BookingConfirmationPayload
			if err := json.Unmarshal([]byte(msg.PayloadJSON), &p); err != nil {
				return fmt.Errorf("failed to unmarshal booking confirmation payload: %w", err)
			}
			return svc.SendMessage(ctx, p.Phone, renderBookingConfirmation(p))

		case store.OutboxKindEscalationAlert:
			var p EscalationAlertPayload
			if err := json.Unmarshal([]byte(msg.PayloadJSON), &p); err != nil {
				return fmt.Errorf("failed to unmarshal escalation alert payload: %w", err)
			}
			return svc.SendMessage(ctx, p.AlertNumber, renderEscalationAlert(p))

		default:
			return fmt.Errorf("unknown outbox message kind %q", msg.Kind)
		}
	}
}

func renderBookingConfirmation(p BookingConfirmationPayload) string {
	first := p.Name
	for i := 0; i < len(first); i++ {
		if first[i] == ' ' {
			first = first[:i]
			break
		}
	}
	body := "Your appointment is booked"
	if first != "" {
		body = "Hi " + first + ", your appointment is booked"
	}
	if p.TimeWindow != "" {
		body += " for " + p.TimeWindow
	}
	if p.Address != "" {
		body += " at " + p.Address
	}
	return body + ". Reply to this message if anything changes."
}

func renderEscalationAlert(p EscalationAlertPayload) string {
	body := "A caller needs a human to finish their booking (session " + p.SessionID + ")."
	if p.Reason != "" {
		body += " Reason: " + p.Reason + "."
	}
	return body
}
