package slots

import (
	"log/slog"
	"time"

	"github.com/voicelane/bookline/internal/models"
)

// nameAliasGroup holds field keys that are mutually aliased for step-gating:
// an utterance answering one of them may legitimately populate another.
var nameAliasGroup = map[string]bool{
	"name":       true,
	"first_name": true,
	"last_name":  true,
	"full_name":  true,
}

// FieldsAliased reports whether two field keys belong to the same alias group.
func FieldsAliased(a, b string) bool {
	if a == b {
		return true
	}
	return nameAliasGroup[a] && nameAliasGroup[b]
}

// nameLikeField reports whether identity protection applies to a field.
func nameLikeField(fieldType models.FieldType, fieldKey string) bool {
	return fieldType == models.FieldTypeName || nameAliasGroup[fieldKey]
}

// WriteOptions carries the provenance and routing flags for one write attempt.
type WriteOptions struct {
	Source         models.SlotSource
	Confidence     float64
	IsCorrection   bool
	BypassStepGate bool
}

// Config is the per-tenant firewall configuration. It is passed in
// explicitly per call; there is no module-level state.
type Config struct {
	TenantID string
	// ExtraStopWords extends the built-in affirmation/filler list.
	ExtraStopWords []string
}

// Firewall gates every mutation of the canonical slot store. All checks
// return tagged outcomes; nothing in this path raises an error.
type Firewall struct {
	cfg     Config
	stopSet map[string]bool
}

// NewFirewall creates a firewall for one tenant, resolving its stop-word set
// through the given cache.
func NewFirewall(cfg Config, cache *StopWordCache) *Firewall {
	var stopSet map[string]bool
	if cache != nil {
		stopSet = cache.Get(cfg.TenantID, cfg.ExtraStopWords)
	} else {
		stopSet = MergeStopWords(cfg.ExtraStopWords)
	}
	return &Firewall{cfg: cfg, stopSet: stopSet}
}

// SetSlot attempts one slot write. Checks run in order and the first failure
// wins: type plausibility, step gate, identity protection, immutability.
// A rejected write never mutates the store; an accepted write retains the
// previous value for audit.
func (fw *Firewall) SetSlot(state *models.ConversationState, flow *models.Flow, fieldKey, rawValue string, opts WriteOptions) models.ValidationOutcome {
	if rawValue == "" {
		return models.Rejected(models.RejectReasonEmptyValue, models.CheckTypePlausibility)
	}

	fieldType := fw.resolveFieldType(flow, fieldKey)

	// Check 1: type plausibility.
	if outcome := checkTypePlausibility(fieldType, rawValue, state.SlotValue("address")); !outcome.Valid {
		slog.Debug("Firewall.SetSlot: type plausibility rejected write",
			"tenantID", fw.cfg.TenantID, "fieldKey", fieldKey, "reason", outcome.Reason)
		return outcome
	}

	// Per-step minimum length, when the tenant configured one.
	if flow != nil {
		if step := flow.StepByField(fieldKey); step != nil && step.Validation != nil && step.Validation.MinLength > 0 {
			if len([]rune(rawValue)) < step.Validation.MinLength {
				slog.Debug("Firewall.SetSlot: value below minimum length",
					"tenantID", fw.cfg.TenantID, "fieldKey", fieldKey, "minLength", step.Validation.MinLength)
				return models.Rejected(models.RejectReasonTooShort, models.CheckTypePlausibility)
			}
		}
	}

	// Check 2: step gate. Mid-flow, a write to a field other than the one
	// currently being asked about is a misfired extraction unless flagged.
	if outcome := fw.checkStepGate(state, flow, fieldKey, opts); !outcome.Valid {
		slog.Debug("Firewall.SetSlot: step gate rejected write",
			"tenantID", fw.cfg.TenantID, "fieldKey", fieldKey, "currentStepID", state.CurrentStepID)
		return outcome
	}

	// Check 3: identity protection for name-like fields.
	if nameLikeField(fieldType, fieldKey) {
		if outcome := fw.checkIdentity(rawValue); !outcome.Valid {
			slog.Debug("Firewall.SetSlot: identity protection rejected write",
				"tenantID", fw.cfg.TenantID, "fieldKey", fieldKey, "reason", outcome.Reason)
			return outcome
		}
	}

	// Check 4: immutability.
	if existing := state.Slot(fieldKey); existing != nil && existing.Confirmed && existing.Immutable && !opts.IsCorrection {
		slog.Debug("Firewall.SetSlot: immutability rejected write",
			"tenantID", fw.cfg.TenantID, "fieldKey", fieldKey)
		return models.Rejected(models.RejectReasonImmutable, models.CheckImmutability)
	}

	fw.write(state, fieldKey, rawValue, opts)
	return models.Accepted()
}

// write applies an accepted mutation.
func (fw *Firewall) write(state *models.ConversationState, fieldKey, rawValue string, opts WriteOptions) {
	if state.Slots == nil {
		state.Slots = make(map[string]*models.Slot)
	}

	source := opts.Source
	if opts.IsCorrection {
		source = models.SourceCorrection
	}

	previous := ""
	if existing := state.Slots[fieldKey]; existing != nil {
		previous = existing.Value
	}

	slot := &models.Slot{
		Value:         rawValue,
		Confidence:    opts.Confidence,
		Source:        source,
		PreviousValue: previous,
		UpdatedAt:     time.Now(),
	}
	// An explicit correction is a direct user statement: confirmed and
	// locked against passive re-extraction.
	if opts.IsCorrection {
		slot.Confirmed = true
		slot.Immutable = true
	}
	state.Slots[fieldKey] = slot
	state.UpdatedAt = slot.UpdatedAt

	slog.Info("Firewall.write: slot accepted",
		"tenantID", fw.cfg.TenantID, "fieldKey", fieldKey,
		"source", source, "confidence", opts.Confidence, "hadPrevious", previous != "")
}

// checkStepGate enforces that mid-flow writes target the current step's field.
func (fw *Firewall) checkStepGate(state *models.ConversationState, flow *models.Flow, fieldKey string, opts WriteOptions) models.ValidationOutcome {
	if opts.BypassStepGate || opts.IsCorrection {
		return models.Accepted()
	}
	if state.CurrentStepID == "" || flow == nil {
		return models.Accepted()
	}
	current := flow.StepByID(state.CurrentStepID)
	if current == nil {
		return models.Accepted()
	}
	if FieldsAliased(current.FieldKey, fieldKey) {
		return models.Accepted()
	}
	return models.Rejected(models.RejectReasonStepGated, models.CheckStepGate)
}

// checkIdentity applies the name-field protections: phone-shaped values,
// affirmation/filler stop words, and letterless strings are never names.
func (fw *Firewall) checkIdentity(value string) models.ValidationOutcome {
	if looksLikePhoneNumber(value) {
		return models.Rejected(models.RejectReasonLooksLikePhone, models.CheckIdentity)
	}
	if isStopWord(fw.stopSet, value) {
		return models.Rejected(models.RejectReasonStopWord, models.CheckIdentity)
	}
	if letterCount(value) == 0 {
		return models.Rejected(models.RejectReasonNoLetters, models.CheckIdentity)
	}
	return models.Accepted()
}

// resolveFieldType finds the field's type from the flow, falling back to
// key-name conventions for fields the flow does not configure.
func (fw *Firewall) resolveFieldType(flow *models.Flow, fieldKey string) models.FieldType {
	if flow != nil {
		if step := flow.StepByField(fieldKey); step != nil {
			return step.Type
		}
	}
	switch {
	case nameAliasGroup[fieldKey]:
		return models.FieldTypeName
	case fieldKey == "phone":
		return models.FieldTypePhone
	case fieldKey == "address":
		return models.FieldTypeAddress
	case fieldKey == "time":
		return models.FieldTypeTime
	default:
		return models.FieldTypeText
	}
}

// ConfirmSlot marks a stored value as user-confirmed. Immutable locks it
// against everything except an explicit correction. A missing slot is a no-op
// so callers do not need an existence pre-check.
func ConfirmSlot(state *models.ConversationState, fieldKey string, immutable bool) {
	slot := state.Slot(fieldKey)
	if slot == nil {
		return
	}
	slot.Confirmed = true
	if immutable {
		slot.Immutable = true
	}
	slot.UpdatedAt = time.Now()
	state.UpdatedAt = slot.UpdatedAt
}

// ClearSlot removes a stored value, retaining nothing. Used when the caller
// denies an inherited value or a terminal re-validation fails.
func ClearSlot(state *models.ConversationState, fieldKey string) {
	if state.Slots == nil {
		return
	}
	delete(state.Slots, fieldKey)
	state.UpdatedAt = time.Now()
}

// Revalidate re-runs the type plausibility rule against a slot's final
// stored value. Used by the terminal invariant check.
func Revalidate(state *models.ConversationState, fieldType models.FieldType, fieldKey string) models.ValidationOutcome {
	slot := state.Slot(fieldKey)
	if slot == nil || slot.Value == "" {
		return models.Rejected(models.RejectReasonEmptyValue, models.CheckTypePlausibility)
	}
	storedAddress := ""
	if fieldType == models.FieldTypeTime {
		storedAddress = state.SlotValue("address")
	}
	return checkTypePlausibility(fieldType, slot.Value, storedAddress)
}

// SimpleValues is the derived plain-string view over the canonical store.
// It is computed on demand; there is no second mutable copy to keep in sync.
func SimpleValues(state *models.ConversationState) map[string]string {
	values := make(map[string]string, len(state.Slots))
	for key, slot := range state.Slots {
		if slot != nil && slot.Value != "" {
			values[key] = slot.Value
		}
	}
	return values
}
