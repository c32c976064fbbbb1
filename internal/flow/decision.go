package flow

import (
	"log/slog"
	"strings"

	"github.com/voicelane/bookline/internal/models"
	"github.com/voicelane/bookline/internal/slots"
)

// DecisionMode is the action the decision procedure selects for a step.
type DecisionMode string

const (
	// ModeCollect asks for a field that has no value.
	ModeCollect DecisionMode = "COLLECT"
	// ModeConfirm asks a yes/no question about an existing value.
	ModeConfirm DecisionMode = "CONFIRM"
	// ModeCollectDetails drills into a sub-dialogue for a partial value.
	ModeCollectDetails DecisionMode = "COLLECT_DETAILS"
)

// NextAction is the decision procedure's pick for the coming turn.
type NextAction struct {
	Step   models.Step
	Mode   DecisionMode
	Reason models.DetailReason
}

// spellingVariants maps near-homophone first names to their alternate
// spelling. An inherited name hitting this map gets a forced-choice
// confirmation before it can count as collected.
var spellingVariants = map[string]string{
	"mark":    "marc",
	"marc":    "mark",
	"eric":    "erik",
	"erik":    "eric",
	"jon":     "john",
	"john":    "jon",
	"brian":   "bryan",
	"bryan":   "brian",
	"sara":    "sarah",
	"sarah":   "sara",
	"kristin": "kristen",
	"kristen": "kristin",
	"steven":  "stephen",
	"stephen": "steven",
	"carl":    "karl",
	"karl":    "carl",
	"geoff":   "jeff",
	"allen":   "alan",
	"alan":    "allen",
	"kaitlyn": "caitlin",
	"caitlin": "kaitlyn",
}

// usStateAbbrevs recognizes two-letter state tokens in address completeness checks.
var usStateAbbrevs = map[string]bool{
	"al": true, "ak": true, "az": true, "ar": true, "ca": true, "co": true,
	"ct": true, "de": true, "fl": true, "ga": true, "hi": true, "id": true,
	"il": true, "in": true, "ia": true, "ks": true, "ky": true, "la": true,
	"me": true, "md": true, "ma": true, "mi": true, "mn": true, "ms": true,
	"mo": true, "mt": true, "ne": true, "nv": true, "nh": true, "nj": true,
	"nm": true, "ny": true, "nc": true, "nd": true, "oh": true, "ok": true,
	"or": true, "pa": true, "ri": true, "sc": true, "sd": true, "tn": true,
	"tx": true, "ut": true, "vt": true, "va": true, "wa": true, "wv": true,
	"wi": true, "wy": true, "dc": true,
}

// NextAction scans the flow in order and picks the next step and mode, or nil
// when every required step is satisfied and the terminal confirmation can run.
//
// The scan is forward-only: a passed step that already holds a value is
// silently confirmed and never re-asked, regardless of how the value arrived.
func (e *Engine) NextAction(flow *models.Flow, state *models.ConversationState) *NextAction {
	steps := flow.Sorted()
	currentIdx := -1
	for i := range steps {
		if steps[i].ID == state.CurrentStepID {
			currentIdx = i
			break
		}
	}
	confirmed := state.ConfirmedFields()

	for i := range steps {
		step := steps[i]
		if !step.Required {
			continue
		}
		if !conditionSatisfied(step.Condition, state) {
			continue
		}
		if confirmed[step.FieldKey] {
			continue
		}

		slot := state.Slot(step.FieldKey)
		hasValue := slot != nil && slot.Value != ""

		// Forward-only rule: a step behind the cursor with a value is done.
		if currentIdx >= 0 && i < currentIdx && hasValue {
			slots.ConfirmSlot(state, step.FieldKey, false)
			slog.Debug("Engine.NextAction: silently confirmed passed step",
				"stepID", step.ID, "fieldKey", step.FieldKey)
			continue
		}

		if !hasValue {
			return &NextAction{Step: step, Mode: ModeCollect}
		}

		if reason, needs := e.needsDetail(step, slot, state); needs {
			return &NextAction{Step: step, Mode: ModeCollectDetails, Reason: reason}
		}

		// A direct, high-confidence statement does not warrant an extra
		// yes/no turn; passively inferred values do.
		if e.directStatement(slot) {
			slots.ConfirmSlot(state, step.FieldKey, false)
			slog.Debug("Engine.NextAction: auto-confirmed high-confidence utterance value",
				"stepID", step.ID, "fieldKey", step.FieldKey, "confidence", slot.Confidence)
			continue
		}

		return &NextAction{Step: step, Mode: ModeConfirm}
	}
	return nil
}

// conditionSatisfied evaluates a step's participation condition against state.
func conditionSatisfied(cond *models.StepCondition, state *models.ConversationState) bool {
	if cond == nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(state.SlotValue(cond.FieldKey)), cond.Equals)
}

// directStatement reports whether a value came straight from the caller's own
// words at a confidence the engine accepts without a yes/no turn. The caller
// saying "my name is Mark" settles the spelling question too.
func (e *Engine) directStatement(slot *models.Slot) bool {
	return slot.Source == models.SourceUtterance && slot.Confidence >= e.cfg.AutoConfirmThreshold
}

// needsDetail decides whether an existing value requires a sub-dialogue:
// a missing last-name part, a spelling disambiguation, a short phone number,
// or an address without city/state. Spelling disambiguation applies only to
// values the engine did not hear stated directly.
func (e *Engine) needsDetail(step models.Step, slot *models.Slot, state *models.ConversationState) (models.DetailReason, bool) {
	switch step.Type {
	case models.FieldTypeName:
		tokens := strings.Fields(slot.Value)
		if step.Options != nil && step.Options.AskFullName && len(tokens) == 1 {
			return models.DetailReasonMissingLastName, true
		}
		if len(tokens) > 0 && nameNeedsSpelling(tokens[0]) && !slot.Confirmed && !e.directStatement(slot) {
			return models.DetailReasonSpelling, true
		}
	case models.FieldTypePhone:
		if len(slots.DigitsOf(slot.Value)) < 10 {
			return models.DetailReasonShortPhone, true
		}
	case models.FieldTypeAddress:
		if !hasCityState(slot.Value) {
			return models.DetailReasonIncompleteAddress, true
		}
	}
	return "", false
}

// nameNeedsSpelling reports whether a first name warrants disambiguation:
// it has a known alternate spelling, or is short enough that letter-by-letter
// confirmation is cheaper than a misheard booking.
func nameNeedsSpelling(firstName string) bool {
	lower := strings.ToLower(firstName)
	if _, ok := spellingVariants[lower]; ok {
		return true
	}
	return len([]rune(lower)) <= 3
}

// hasCityState reports whether an address string already carries city/state
// components: a comma-separated tail or a recognizable state token.
func hasCityState(address string) bool {
	if strings.Contains(address, ",") {
		return true
	}
	for _, tok := range strings.Fields(strings.ToLower(address)) {
		tok = strings.Trim(tok, ".,")
		if usStateAbbrevs[tok] {
			return true
		}
	}
	return false
}
