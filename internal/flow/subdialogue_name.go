package flow

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/voicelane/bookline/internal/models"
	"github.com/voicelane/bookline/internal/slots"
)

// startSpellingConfirm opens a spelling disambiguation for the first token of
// the stored name. Variant-prone names get a forced choice between the two
// spellings; short names get a letter-by-letter readback.
func (e *Engine) startSpellingConfirm(state *models.ConversationState, step models.Step) *TurnResult {
	value := state.SlotValue(step.FieldKey)
	first := firstToken(value)
	candidates := []string{first}
	if alt, ok := spellingVariants[strings.ToLower(first)]; ok {
		candidates = append(candidates, titleCase(alt))
	}
	state.PendingSpellingConfirm = &models.PendingSpellingConfirm{
		StepID:     step.ID,
		FieldKey:   step.FieldKey,
		Candidates: candidates,
	}
	return &TurnResult{Reply: spellingPrompt(candidates), Action: models.ActionConfirmSpelling}
}

// handleSpellingResponse resolves a spelling question. The chosen spelling is
// written back with correction semantics so the decision procedure does not
// re-open the spelling question on the next pass.
func (e *Engine) handleSpellingResponse(fw *slots.Firewall, flowDef *models.Flow, state *models.ConversationState, utterance string) *TurnResult {
	pending := state.PendingSpellingConfirm
	step := flowDef.StepByID(pending.StepID)
	if step == nil {
		state.PendingSpellingConfirm = nil
		return nil
	}

	if utterance == "" {
		n := state.IncrementAskCount(step.ID)
		if n > e.maxAttempts(*step) {
			return e.escalate(state, step.ID)
		}
		return &TurnResult{Reply: spellingPrompt(pending.Candidates), Action: models.ActionConfirmSpelling}
	}

	if len(pending.Candidates) == 2 {
		chosen, ok := pickSpelling(pending.Candidates, utterance)
		if !ok {
			n := state.IncrementAskCount(step.ID)
			if n > e.maxAttempts(*step) {
				return e.escalate(state, step.ID)
			}
			return &TurnResult{Reply: spellingPrompt(pending.Candidates), Action: models.ActionConfirmSpelling}
		}
		e.applySpelling(fw, flowDef, state, pending, chosen)
		return nil
	}

	// Single candidate: a yes keeps it, a no clears the slot, and a run of
	// letters replaces the spelling outright.
	switch {
	case IsAffirmation(utterance):
		slots.ConfirmSlot(state, pending.FieldKey, true)
		state.PendingSpellingConfirm = nil
		return nil
	case IsDenial(utterance):
		slots.ClearSlot(state, pending.FieldKey)
		state.PendingSpellingConfirm = nil
		return nil
	}
	if spelled := collapseSpelledLetters(utterance); spelled != "" {
		e.applySpelling(fw, flowDef, state, pending, titleCase(spelled))
		return nil
	}
	n := state.IncrementAskCount(step.ID)
	if n > e.maxAttempts(*step) {
		return e.escalate(state, step.ID)
	}
	return &TurnResult{Reply: spellingPrompt(pending.Candidates), Action: models.ActionConfirmSpelling}
}

// applySpelling swaps the first token of the stored name for the chosen
// spelling and marks the slot confirmed.
func (e *Engine) applySpelling(fw *slots.Firewall, flowDef *models.Flow, state *models.ConversationState, pending *models.PendingSpellingConfirm, chosen string) {
	value := state.SlotValue(pending.FieldKey)
	parts := strings.Fields(value)
	if len(parts) == 0 {
		parts = []string{chosen}
	} else {
		parts[0] = chosen
	}
	outcome := fw.SetSlot(state, flowDef, pending.FieldKey, strings.Join(parts, " "), slots.WriteOptions{
		Source:       models.SourceUtterance,
		Confidence:   utteranceConfidence,
		IsCorrection: true,
	})
	if !outcome.Valid {
		slog.Warn("Engine.applySpelling: spelling write rejected", "reason", outcome.Reason, "sessionID", state.SessionID)
	}
	state.PendingSpellingConfirm = nil
}

// pickSpelling matches the caller's answer against the two candidate
// spellings. Accepts the spelling itself, spelled-out letters, ordinal picks,
// or a plain yes for the first candidate.
func pickSpelling(candidates []string, utterance string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(utterance))
	collapsed := collapseSpelledLetters(utterance)
	for _, c := range candidates {
		cl := strings.ToLower(c)
		if lower == cl || collapsed == cl {
			return c, true
		}
		if strings.Contains(lower, "with a") || strings.Contains(lower, "with the") {
			// "the one with a C": match on the distinguishing letter.
			if letter := distinguishingLetter(candidates, c); letter != 0 && strings.ContainsRune(lower, letter) {
				return c, true
			}
		}
	}
	switch {
	case strings.Contains(lower, "first"):
		return candidates[0], true
	case strings.Contains(lower, "second"), strings.Contains(lower, "other"):
		return candidates[1], true
	case IsAffirmation(utterance):
		return candidates[0], true
	}
	return "", false
}

// distinguishingLetter returns the first letter of c that differs from the
// other candidate, lowercased, or 0 when the spellings do not diverge.
func distinguishingLetter(candidates []string, c string) rune {
	other := candidates[0]
	if strings.EqualFold(other, c) && len(candidates) > 1 {
		other = candidates[1]
	}
	cl := []rune(strings.ToLower(c))
	ol := []rune(strings.ToLower(other))
	for i, r := range cl {
		if i >= len(ol) || ol[i] != r {
			return r
		}
	}
	return 0
}

// collapseSpelledLetters turns "m a r c" or "M-A-R-C" into "marc". Returns ""
// when the utterance is not a run of single letters.
func collapseSpelledLetters(utterance string) string {
	fields := strings.FieldsFunc(utterance, func(r rune) bool {
		return r == ' ' || r == '-' || r == ',' || r == '.'
	})
	if len(fields) < 2 {
		return ""
	}
	var b strings.Builder
	for _, f := range fields {
		runes := []rune(f)
		if len(runes) != 1 || !unicode.IsLetter(runes[0]) {
			return ""
		}
		b.WriteRune(unicode.ToLower(runes[0]))
	}
	return b.String()
}

// startMissingPart asks for the last name when full-name collection is on and
// only one token was heard. A previously reclassified last name short-circuits
// the question.
func (e *Engine) startMissingPart(state *models.ConversationState, step models.Step) *TurnResult {
	first := state.SlotValue(step.FieldKey)
	if last := state.SlotValue("last_name"); last != "" {
		state.Slots[step.FieldKey] = &models.Slot{
			Value:      first + " " + last,
			Confidence: utteranceConfidence,
			Source:     models.SourceUtterance,
		}
		delete(state.Slots, "last_name")
		return nil
	}
	state.SubDialogue = &models.SubDialogue{
		Kind:   models.SubDialogueName,
		StepID: step.ID,
		Phase:  models.NamePhaseMissingPart,
		Partial: map[string]string{
			"first": first,
		},
	}
	return &TurnResult{
		Reply:  "Thanks, " + first + ". And your last name?",
		Action: models.ActionCollectDetails,
	}
}

// handleNameSubDialogue completes a name from its collected parts.
func (e *Engine) handleNameSubDialogue(fw *slots.Firewall, flowDef *models.Flow, state *models.ConversationState, utterance string) *TurnResult {
	sub := state.SubDialogue
	step := flowDef.StepByID(sub.StepID)
	if step == nil {
		state.SubDialogue = nil
		return nil
	}

	if utterance == "" {
		n := state.IncrementAskCount(step.ID)
		if n > e.maxAttempts(*step) {
			return e.escalate(state, step.ID)
		}
		return &TurnResult{Reply: "Sorry, I didn't catch that. What's your last name?", Action: models.ActionCollectDetails}
	}

	full := strings.TrimSpace(sub.Partial["first"] + " " + utterance)
	outcome := fw.SetSlot(state, flowDef, step.FieldKey, full, slots.WriteOptions{
		Source:         models.SourceUtterance,
		Confidence:     utteranceConfidence,
		BypassStepGate: true,
	})
	if !outcome.Valid {
		slog.Info("Engine.handleNameSubDialogue: last name rejected",
			"reason", outcome.Reason, "check", outcome.RejectedBy, "sessionID", state.SessionID)
		n := state.IncrementAskCount(step.ID)
		if n > e.maxAttempts(*step) {
			return e.escalate(state, step.ID)
		}
		return &TurnResult{Reply: "Sorry, I didn't catch that. What's your last name?", Action: models.ActionCollectDetails}
	}
	state.SubDialogue = nil
	return nil
}

func firstToken(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func titleCase(word string) string {
	if word == "" {
		return ""
	}
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
