package flow

import (
	"log/slog"
	"strings"

	"github.com/voicelane/bookline/internal/models"
	"github.com/voicelane/bookline/internal/slots"
)

// startPhoneSubDialogue opens the area-code/remainder repair when fewer than
// ten digits were captured. A seven-digit capture is kept as the remainder so
// only the area code is asked.
func (e *Engine) startPhoneSubDialogue(state *models.ConversationState, step models.Step) *TurnResult {
	partial := map[string]string{}
	existing := slots.DigitsOf(state.SlotValue(step.FieldKey))
	if len(existing) == 7 {
		partial["remainder"] = existing
	}
	state.SubDialogue = &models.SubDialogue{
		Kind:    models.SubDialoguePhone,
		StepID:  step.ID,
		Phase:   models.PhonePhaseAreaCode,
		Partial: partial,
	}
	return &TurnResult{
		Reply:  "I only caught part of that number. What's the area code?",
		Action: models.ActionCollectDetails,
	}
}

// handlePhoneSubDialogue advances the phone repair one phase per turn and
// writes the assembled number once ten digits are in hand.
func (e *Engine) handlePhoneSubDialogue(fw *slots.Firewall, flowDef *models.Flow, state *models.ConversationState, utterance string) *TurnResult {
	sub := state.SubDialogue
	step := flowDef.StepByID(sub.StepID)
	if step == nil {
		state.SubDialogue = nil
		return nil
	}

	if utterance == "" {
		return e.repeatPhonePhase(state, *step, sub)
	}

	digits := slots.DigitsOf(utterance)
	switch sub.Phase {
	case models.PhonePhaseAreaCode:
		if len(digits) < 3 {
			return e.repeatPhonePhase(state, *step, sub)
		}
		sub.Partial["area"] = digits[:3]
		if rest, ok := sub.Partial["remainder"]; ok && len(rest) == 7 {
			return e.assemblePhone(fw, flowDef, state, *step, sub.Partial["area"]+rest)
		}
		// The caller may have read the whole number back.
		if len(digits) >= 10 {
			return e.assemblePhone(fw, flowDef, state, *step, strings.TrimPrefix(digits, "1")[:10])
		}
		sub.Phase = models.PhonePhaseRemainder
		return &TurnResult{Reply: "Got it. And the rest of the number?", Action: models.ActionCollectDetails}

	case models.PhonePhaseRemainder:
		if len(digits) >= 10 {
			return e.assemblePhone(fw, flowDef, state, *step, strings.TrimPrefix(digits, "1")[:10])
		}
		if len(digits) == 7 {
			return e.assemblePhone(fw, flowDef, state, *step, sub.Partial["area"]+digits)
		}
		return e.repeatPhonePhase(state, *step, sub)
	}

	slog.Warn("Engine.handlePhoneSubDialogue: unknown phase", "phase", sub.Phase, "sessionID", state.SessionID)
	state.SubDialogue = nil
	return nil
}

func (e *Engine) repeatPhonePhase(state *models.ConversationState, step models.Step, sub *models.SubDialogue) *TurnResult {
	n := state.IncrementAskCount(step.ID)
	if n > e.maxAttempts(step) {
		return e.escalate(state, step.ID)
	}
	reply := "Sorry, what's the area code?"
	if sub.Phase == models.PhonePhaseRemainder {
		reply = "Sorry, what's the rest of the number?"
	}
	return &TurnResult{Reply: reply, Action: models.ActionCollectDetails}
}

func (e *Engine) assemblePhone(fw *slots.Firewall, flowDef *models.Flow, state *models.ConversationState, step models.Step, digits string) *TurnResult {
	outcome := fw.SetSlot(state, flowDef, step.FieldKey, FormatPhone(digits), slots.WriteOptions{
		Source:         models.SourceUtterance,
		Confidence:     assembledConfidence,
		BypassStepGate: true,
	})
	state.SubDialogue = nil
	if !outcome.Valid {
		slog.Warn("Engine.assemblePhone: assembled number rejected", "reason", outcome.Reason, "sessionID", state.SessionID)
	}
	return nil
}
