package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/voicelane/bookline/internal/models"
	"github.com/voicelane/bookline/internal/slots"
)

// preconfirmPriority orders the spoken confirmation pass for values that
// arrived from outside the conversation. Identity first, then contact, then
// logistics.
var preconfirmPriority = []models.FieldType{
	models.FieldTypeName,
	models.FieldTypePhone,
	models.FieldTypeAddress,
	models.FieldTypeTime,
}

// nextPreconfirm finds the highest-priority externally sourced, unconfirmed
// value and asks the caller to vouch for it. Returns nil when the queue is
// empty.
func (e *Engine) nextPreconfirm(flowDef *models.Flow, state *models.ConversationState) *TurnResult {
	steps := flowDef.Sorted()
	for _, ft := range preconfirmPriority {
		for i := range steps {
			step := steps[i]
			if step.Type != ft || !step.Required {
				continue
			}
			if !conditionSatisfied(step.Condition, state) {
				continue
			}
			slot := state.Slot(step.FieldKey)
			if slot == nil || slot.Value == "" || slot.Confirmed {
				continue
			}
			if !slot.Source.ExternalSource() {
				continue
			}
			state.CurrentStepID = step.ID
			state.PendingPreconfirm = &models.PendingPreconfirm{
				FieldKey: step.FieldKey,
				Value:    slot.Value,
				Source:   slot.Source,
			}
			return &TurnResult{Reply: preconfirmPrompt(step, slot.Value), Action: models.ActionConfirm}
		}
	}
	return nil
}

// handlePreconfirmResponse resolves the caller's answer to a "we have X on
// file" question. A nil return means the answer was absorbed and the turn
// continues into the decision loop.
func (e *Engine) handlePreconfirmResponse(ctx context.Context, fw *slots.Firewall, flowDef *models.Flow, state *models.ConversationState, utterance string) *TurnResult {
	pending := state.PendingPreconfirm
	step := flowDef.StepByField(pending.FieldKey)
	if step == nil {
		slog.Warn("Engine.handlePreconfirmResponse: pending field missing from flow", "fieldKey", pending.FieldKey, "sessionID", state.SessionID)
		state.PendingPreconfirm = nil
		return nil
	}

	if utterance == "" {
		n := state.IncrementAskCount(step.ID)
		if n > e.maxAttempts(*step) {
			return e.escalate(state, step.ID)
		}
		return &TurnResult{Reply: preconfirmPrompt(*step, pending.Value), Action: models.ActionConfirm}
	}

	switch {
	case IsAffirmation(utterance):
		slots.ConfirmSlot(state, pending.FieldKey, true)
		state.PendingPreconfirm = nil
		return nil

	case IsDenial(utterance):
		if e.reclassifyAsLastName(state, flowDef, pending, utterance) {
			state.PendingPreconfirm = nil
			return nil
		}
		slots.ClearSlot(state, pending.FieldKey)
		state.PendingPreconfirm = nil
		return nil

	default:
		outcome := fw.SetSlot(state, flowDef, pending.FieldKey, extractFieldValue(step.Type, utterance), slots.WriteOptions{
			Source:       models.SourceUtterance,
			Confidence:   utteranceConfidence,
			IsCorrection: true,
		})
		if !outcome.Valid {
			slog.Info("Engine.handlePreconfirmResponse: correction rejected",
				"fieldKey", pending.FieldKey, "reason", outcome.Reason, "sessionID", state.SessionID)
			n := state.IncrementAskCount(step.ID)
			if n > e.maxAttempts(*step) {
				return e.escalate(state, step.ID)
			}
			return &TurnResult{Reply: preconfirmPrompt(*step, pending.Value), Action: models.ActionConfirm}
		}
		state.PendingPreconfirm = nil
		return nil
	}
}

// reclassifyAsLastName handles "no, that's my last name" on a name
// preconfirm: the inherited value moves to the last-name slot and the name
// question is asked fresh.
func (e *Engine) reclassifyAsLastName(state *models.ConversationState, flowDef *models.Flow, pending *models.PendingPreconfirm, utterance string) bool {
	if !slots.FieldsAliased(pending.FieldKey, "name") {
		return false
	}
	lower := strings.ToLower(utterance)
	if !strings.Contains(lower, "last name") && !strings.Contains(lower, "surname") && !strings.Contains(lower, "family name") {
		return false
	}
	state.Slots["last_name"] = &models.Slot{
		Value:      pending.Value,
		Confidence: utteranceConfidence,
		Source:     models.SourceCorrection,
		Confirmed:  true,
	}
	slots.ClearSlot(state, pending.FieldKey)
	slog.Debug("Engine.reclassifyAsLastName: moved inherited value to last name", "sessionID", state.SessionID)
	return true
}

// handleConfirmationResponse resolves a yes/no confirmation of a freshly
// heard value. Corrections are written through the firewall with correction
// semantics so the replacement lands confirmed and immutable.
func (e *Engine) handleConfirmationResponse(fw *slots.Firewall, flowDef *models.Flow, state *models.ConversationState, utterance string) *TurnResult {
	pending := state.PendingConfirmation
	step := flowDef.StepByID(pending.StepID)
	if step == nil {
		slog.Warn("Engine.handleConfirmationResponse: pending step missing from flow", "stepID", pending.StepID, "sessionID", state.SessionID)
		state.PendingConfirmation = nil
		return nil
	}

	if utterance == "" {
		n := state.IncrementAskCount(step.ID)
		if n > e.maxAttempts(*step) {
			return e.escalate(state, step.ID)
		}
		return &TurnResult{Reply: confirmPrompt(*step, pending.Value), Action: models.ActionConfirm}
	}

	switch {
	case IsAffirmation(utterance):
		slots.ConfirmSlot(state, pending.FieldKey, true)
		state.PendingConfirmation = nil
		return nil

	case IsDenial(utterance):
		slots.ClearSlot(state, pending.FieldKey)
		state.PendingConfirmation = nil
		return nil

	default:
		outcome := fw.SetSlot(state, flowDef, pending.FieldKey, extractFieldValue(step.Type, utterance), slots.WriteOptions{
			Source:       models.SourceUtterance,
			Confidence:   utteranceConfidence,
			IsCorrection: true,
		})
		if !outcome.Valid {
			slog.Info("Engine.handleConfirmationResponse: correction rejected",
				"fieldKey", pending.FieldKey, "reason", outcome.Reason, "sessionID", state.SessionID)
			n := state.IncrementAskCount(step.ID)
			if n > e.maxAttempts(*step) {
				return e.escalate(state, step.ID)
			}
			return &TurnResult{Reply: confirmPrompt(*step, pending.Value), Action: models.ActionConfirm}
		}
		state.PendingConfirmation = nil
		return nil
	}
}
