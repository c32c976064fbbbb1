package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/voicelane/bookline/internal/models"
	"github.com/voicelane/bookline/internal/slots"
)

// handleSubDialogueTurn routes the caller's answer into the open sub-dialogue.
func (e *Engine) handleSubDialogueTurn(ctx context.Context, fw *slots.Firewall, flowDef *models.Flow, state *models.ConversationState, utterance string) *TurnResult {
	switch state.SubDialogue.Kind {
	case models.SubDialogueAddress:
		return e.handleAddressSubDialogue(ctx, fw, flowDef, state, utterance)
	case models.SubDialoguePhone:
		return e.handlePhoneSubDialogue(fw, flowDef, state, utterance)
	case models.SubDialogueName:
		return e.handleNameSubDialogue(fw, flowDef, state, utterance)
	}
	slog.Warn("Engine.handleSubDialogueTurn: unknown kind", "kind", state.SubDialogue.Kind, "sessionID", state.SessionID)
	state.SubDialogue = nil
	return nil
}

// finishOrRewind runs the terminal invariant check. Every required slot is
// re-validated against its field type; the first failure is cleared and its
// step re-asked. When everything holds, the booking is assembled, the
// confirmation summary is spoken, and the notifier fires in the background.
func (e *Engine) finishOrRewind(ctx context.Context, fw *slots.Firewall, flowDef *models.Flow, state *models.ConversationState) TurnResult {
	steps := flowDef.Sorted()
	for i := range steps {
		step := steps[i]
		if !step.Required || !conditionSatisfied(step.Condition, state) {
			continue
		}
		outcome := slots.Revalidate(state, step.Type, step.FieldKey)
		if outcome.Valid {
			continue
		}
		slog.Info("Engine.finishOrRewind: terminal check failed, rewinding",
			"stepID", step.ID, "fieldKey", step.FieldKey, "reason", outcome.Reason,
			"sessionID", state.SessionID, "tenantID", state.TenantID)
		slots.ClearSlot(state, step.FieldKey)
		state.CurrentStepID = step.ID
		state.PendingConfirmation = nil
		state.PendingSpellingConfirm = nil
		state.SubDialogue = nil
		state.ResetAskCount(step.ID)
		return TurnResult{Reply: collectPrompt(step, 1), Action: models.ActionCollect}
	}

	booking := e.buildBooking(flowDef, state)
	state.CurrentStepID = ""
	e.notifyAsync(ctx, state.TenantID, booking)

	return TurnResult{
		Reply:      summaryReply(flowDef, state),
		Action:     models.ActionComplete,
		IsComplete: true,
		Booking:    booking,
	}
}

// buildBooking materializes the confirmed slots into a booking record.
func (e *Engine) buildBooking(flowDef *models.Flow, state *models.ConversationState) *models.Booking {
	booking := &models.Booking{
		ID:        newBookingID(),
		SessionID: state.SessionID,
		TenantID:  state.TenantID,
		Status:    models.BookingStatusPending,
		PlaceID:   state.SlotValue("place_id"),
		CreatedAt: time.Now().UTC(),
	}
	for _, step := range flowDef.Sorted() {
		value := state.SlotValue(step.FieldKey)
		if value == "" {
			continue
		}
		switch step.Type {
		case models.FieldTypeName:
			booking.Name = value
		case models.FieldTypePhone:
			booking.Phone = FormatPhone(value)
		case models.FieldTypeAddress:
			booking.Address = value
		case models.FieldTypeTime:
			booking.TimeWindow = value
		}
		if step.Options != nil && step.Options.ServiceType != "" {
			booking.ServiceType = step.Options.ServiceType
		}
	}
	return booking
}

// notifyAsync fires the booking confirmation without blocking the turn. The
// goroutine gets a context detached from the request so an answered call
// hanging up does not cancel delivery.
func (e *Engine) notifyAsync(ctx context.Context, tenantID string, booking *models.Booking) {
	if e.collab.Notifier == nil {
		return
	}
	data := BookingData{
		BookingID:  booking.ID,
		Name:       booking.Name,
		Phone:      booking.Phone,
		Address:    booking.Address,
		TimeWindow: booking.TimeWindow,
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		res := e.collab.Notifier.SendBookingConfirmation(detached, tenantID, data)
		if !res.Success {
			slog.Warn("Engine.notifyAsync: booking confirmation failed", "bookingID", data.BookingID, "tenantID", tenantID)
			return
		}
		slog.Info("Engine.notifyAsync: booking confirmation sent", "bookingID", data.BookingID, "method", res.Method)
	}()
}
