package flow

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/voicelane/bookline/internal/models"
	"github.com/voicelane/bookline/internal/slots"
)

// affirmationTokens recognize a yes answer.
var affirmationTokens = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "yup": true, "correct": true,
	"right": true, "exactly": true, "sure": true, "affirmative": true,
	"that's right": true, "thats right": true, "that is right": true,
	"that's correct": true, "thats correct": true, "uh huh": true, "mhm": true,
	"ok": true, "okay": true, "perfect": true, "sounds good": true,
}

// denialTokens recognize a no answer.
var denialTokens = map[string]bool{
	"no": true, "nope": true, "nah": true, "wrong": true, "incorrect": true,
	"that's wrong": true, "thats wrong": true, "not right": true,
	"that's not right": true, "thats not right": true, "negative": true,
}

// IsAffirmation reports whether the utterance is a plain yes.
func IsAffirmation(utterance string) bool {
	norm := normalizeUtterance(utterance)
	if affirmationTokens[norm] {
		return true
	}
	// A leading yes-token still affirms ("yes, that's me").
	fields := tokensOf(norm)
	return len(fields) > 0 && affirmationTokens[fields[0]] && !containsDenial(norm)
}

// IsDenial reports whether the utterance is a plain or leading no.
func IsDenial(utterance string) bool {
	norm := normalizeUtterance(utterance)
	if denialTokens[norm] {
		return true
	}
	fields := tokensOf(norm)
	return len(fields) > 0 && denialTokens[fields[0]]
}

func containsDenial(norm string) bool {
	for _, f := range tokensOf(norm) {
		if denialTokens[f] {
			return true
		}
	}
	return false
}

// tokensOf splits a normalized utterance into words with trailing
// punctuation stripped, so "no," still reads as a denial token.
func tokensOf(norm string) []string {
	fields := strings.Fields(norm)
	for i, f := range fields {
		fields[i] = strings.Trim(f, ".!?,")
	}
	return fields
}

func normalizeUtterance(utterance string) string {
	norm := strings.ToLower(strings.TrimSpace(utterance))
	norm = strings.Trim(norm, ".!?,")
	return norm
}

// stepLabel returns a human label for a step, falling back to the field key.
func stepLabel(step models.Step) string {
	if step.Label != "" {
		return step.Label
	}
	return strings.ReplaceAll(step.FieldKey, "_", " ")
}

// collectPrompt returns the step's ask prompt. A missing prompt is a tenant
// configuration gap: degrade to the label and log, never abort the call.
func collectPrompt(step models.Step, askCount int) string {
	if askCount > 1 && step.Reprompt != "" {
		return step.Reprompt
	}
	if step.Prompt != "" {
		return step.Prompt
	}
	slog.Warn("flow.collectPrompt: step has no prompt configured, degrading to label",
		"stepID", step.ID, "fieldKey", step.FieldKey)
	return fmt.Sprintf("Could you tell me your %s?", stepLabel(step))
}

// confirmPrompt renders the yes/no confirmation question for a stored value.
func confirmPrompt(step models.Step, value string) string {
	if step.ConfirmTpl != "" {
		if strings.Contains(step.ConfirmTpl, "{value}") {
			return strings.ReplaceAll(step.ConfirmTpl, "{value}", value)
		}
		return step.ConfirmTpl
	}
	return fmt.Sprintf("I have your %s as %s. Is that right?", stepLabel(step), value)
}

// preconfirmPrompt renders the confirm-or-correct question for an inherited value.
func preconfirmPrompt(step models.Step, value string) string {
	switch step.Type {
	case models.FieldTypeName:
		return fmt.Sprintf("Before we book this, I have your name as %s. Did I get that right?", value)
	case models.FieldTypePhone:
		return fmt.Sprintf("I have %s as the best number to reach you. Is that correct?", FormatPhone(value))
	case models.FieldTypeAddress:
		return fmt.Sprintf("I have the service address as %s. Is that correct?", value)
	default:
		return fmt.Sprintf("I have your %s as %s. Is that correct?", stepLabel(step), value)
	}
}

// spellingPrompt renders the forced-choice or letter-by-letter question.
func spellingPrompt(candidates []string) string {
	if len(candidates) == 2 {
		return fmt.Sprintf("Just to get the spelling right, is that %s or %s?",
			spellOut(candidates[0]), spellOut(candidates[1]))
	}
	return fmt.Sprintf("Let me make sure I have that right. That's %s, correct?", spellOut(candidates[0]))
}

// spellOut renders a name letter by letter: "Mark" -> "M-a-r-k".
func spellOut(name string) string {
	runes := []rune(name)
	parts := make([]string, 0, len(runes))
	for i, r := range runes {
		if i == 0 {
			parts = append(parts, strings.ToUpper(string(r)))
		} else {
			parts = append(parts, strings.ToLower(string(r)))
		}
	}
	return strings.Join(parts, "-")
}

// FormatPhone renders ten digits as (XXX) XXX-XXXX; anything else is
// returned unchanged.
func FormatPhone(value string) string {
	digits := slots.DigitsOf(value)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return value
	}
	return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])
}

// summaryReply renders the terminal "let me confirm everything" utterance.
func summaryReply(flow *models.Flow, state *models.ConversationState) string {
	var parts []string
	for _, step := range flow.Sorted() {
		if !step.Required || !conditionSatisfied(step.Condition, state) {
			continue
		}
		value := state.SlotValue(step.FieldKey)
		if value == "" {
			continue
		}
		if step.Type == models.FieldTypePhone {
			value = FormatPhone(value)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", stepLabel(step), value))
	}
	return fmt.Sprintf("Let me confirm everything. %s. Is that all correct?", strings.Join(parts, "; "))
}
