package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/voicelane/bookline/internal/models"
	"github.com/voicelane/bookline/internal/slots"
)

// startAddressSubDialogue opens the phased address collection. A street-only
// capture skips straight to the city/state question; an empty slot starts at
// the street phase.
func (e *Engine) startAddressSubDialogue(state *models.ConversationState, step models.Step) *TurnResult {
	partial := map[string]string{}
	phase := models.AddressPhaseStreet
	reply := "What's the street address?"
	if street := state.SlotValue(step.FieldKey); street != "" {
		partial["street"] = street
		phase = models.AddressPhaseCityState
		reply = "And what city and state is that in?"
	}
	state.SubDialogue = &models.SubDialogue{
		Kind:    models.SubDialogueAddress,
		StepID:  step.ID,
		Phase:   phase,
		Partial: partial,
	}
	return &TurnResult{Reply: reply, Action: models.ActionCollectDetails}
}

// handleAddressSubDialogue advances one address phase per turn. Once the
// configured phases are complete the parts are joined, optionally geocoded,
// and written back as the final slot value.
func (e *Engine) handleAddressSubDialogue(ctx context.Context, fw *slots.Firewall, flowDef *models.Flow, state *models.ConversationState, utterance string) *TurnResult {
	sub := state.SubDialogue
	step := flowDef.StepByID(sub.StepID)
	if step == nil {
		state.SubDialogue = nil
		return nil
	}

	if utterance == "" {
		return e.repeatAddressPhase(state, *step, sub)
	}

	switch sub.Phase {
	case models.AddressPhaseStreet:
		sub.Partial["street"] = utterance
		if hasCityState(utterance) {
			return e.assembleAddress(ctx, fw, flowDef, state, *step, sub)
		}
		sub.Phase = models.AddressPhaseCityState
		return &TurnResult{Reply: "And what city and state is that in?", Action: models.ActionCollectDetails}

	case models.AddressPhaseCityState:
		sub.Partial["city_state"] = utterance
		if step.Options != nil && step.Options.CollectUnit && sub.Partial["unit"] == "" {
			sub.Phase = models.AddressPhaseUnit
			return &TurnResult{Reply: "Is there an apartment or unit number?", Action: models.ActionCollectDetails}
		}
		return e.assembleAddress(ctx, fw, flowDef, state, *step, sub)

	case models.AddressPhaseUnit:
		if !IsDenial(utterance) && !strings.EqualFold(strings.TrimSpace(utterance), "none") {
			sub.Partial["unit"] = normalizeUnit(utterance)
		}
		return e.assembleAddress(ctx, fw, flowDef, state, *step, sub)
	}

	slog.Warn("Engine.handleAddressSubDialogue: unknown phase", "phase", sub.Phase, "sessionID", state.SessionID)
	state.SubDialogue = nil
	return nil
}

func (e *Engine) repeatAddressPhase(state *models.ConversationState, step models.Step, sub *models.SubDialogue) *TurnResult {
	n := state.IncrementAskCount(step.ID)
	if n > e.maxAttempts(step) {
		return e.escalate(state, step.ID)
	}
	var reply string
	switch sub.Phase {
	case models.AddressPhaseCityState:
		reply = "Sorry, what city and state is that in?"
	case models.AddressPhaseUnit:
		reply = "Sorry, is there an apartment or unit number?"
	default:
		reply = "Sorry, what's the street address?"
	}
	return &TurnResult{Reply: reply, Action: models.ActionCollectDetails}
}

// assembleAddress joins the collected parts, runs them past the geocoder when
// one is configured, and writes the result. Geocoding failures never block
// the booking; the spoken address is kept as-is.
func (e *Engine) assembleAddress(ctx context.Context, fw *slots.Firewall, flowDef *models.Flow, state *models.ConversationState, step models.Step, sub *models.SubDialogue) *TurnResult {
	raw := joinAddressParts(sub.Partial)
	final := raw

	if e.collab.Geocoder != nil && step.Options != nil && step.Options.GeocodeEnabled {
		res := e.collab.Geocoder.Validate(ctx, raw, GeocodeOptions{TenantID: state.TenantID, Enabled: true})
		switch {
		case res.Success && res.Validated && res.FormattedAddress != "" &&
			(res.Confidence == GeocodeConfidenceHigh || res.Confidence == GeocodeConfidenceMedium):
			final = res.FormattedAddress
			if res.PlaceID != "" {
				sub.Partial["place_id"] = res.PlaceID
			}
		default:
			slog.Debug("Engine.assembleAddress: keeping spoken address",
				"validated", res.Validated, "confidence", res.Confidence, "sessionID", state.SessionID)
		}
		if res.NeedsUnit && sub.Partial["unit"] == "" && step.Options.CollectUnit && sub.Phase != models.AddressPhaseUnit {
			sub.Phase = models.AddressPhaseUnit
			return &TurnResult{Reply: "Is there an apartment or unit number?", Action: models.ActionCollectDetails}
		}
	}

	outcome := fw.SetSlot(state, flowDef, step.FieldKey, final, slots.WriteOptions{
		Source:         models.SourceUtterance,
		Confidence:     assembledConfidence,
		BypassStepGate: true,
	})
	if placeID := sub.Partial["place_id"]; placeID != "" && outcome.Valid {
		state.Slots["place_id"] = &models.Slot{Value: placeID, Source: models.SourceDiscovery, Confirmed: true}
	}
	state.SubDialogue = nil
	if !outcome.Valid {
		slog.Warn("Engine.assembleAddress: assembled address rejected", "reason", outcome.Reason, "sessionID", state.SessionID)
	}
	return nil
}

func joinAddressParts(partial map[string]string) string {
	parts := make([]string, 0, 3)
	for _, key := range []string{"street", "city_state", "unit"} {
		if v := strings.TrimSpace(partial[key]); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// normalizeUnit prefixes a bare token like "4B" with "Unit"; fuller phrases
// such as "apartment 4B" pass through untouched.
func normalizeUnit(utterance string) string {
	trimmed := strings.TrimSpace(utterance)
	lower := strings.ToLower(trimmed)
	for _, prefix := range []string{"apt", "apartment", "unit", "suite", "ste", "#"} {
		if strings.HasPrefix(lower, prefix) {
			return trimmed
		}
	}
	if len(strings.Fields(trimmed)) == 1 {
		return "Unit " + trimmed
	}
	return trimmed
}
