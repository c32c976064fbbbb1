package slots

import (
	"log/slog"
	"time"

	"github.com/voicelane/bookline/internal/models"
)

// IdentityOptions mirrors WriteOptions for callers outside the engine that
// only hold a slot map, not a full conversation state.
type IdentityOptions struct {
	Source       models.SlotSource
	Confidence   float64
	IsCorrection bool
	// ExtraStopWords extends the built-in list for this call.
	ExtraStopWords []string
}

// IdentityResult is the tagged outcome of SafeSetIdentitySlot.
type IdentityResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// SafeSetIdentitySlot is the shared policy entry point for writing name,
// phone, and address slots from outside the engine. It applies the same
// identity and plausibility rules as the firewall but operates directly on a
// slot map. It never returns an error; rejections are tagged results.
func SafeSetIdentitySlot(slotMap map[string]*models.Slot, fieldKey, value string, opts IdentityOptions) IdentityResult {
	if value == "" {
		return IdentityResult{Accepted: false, Reason: models.RejectReasonEmptyValue}
	}

	fieldType := fieldTypeForKey(fieldKey)
	storedAddress := ""
	if slot := slotMap["address"]; slot != nil {
		storedAddress = slot.Value
	}

	if outcome := checkTypePlausibility(fieldType, value, storedAddress); !outcome.Valid {
		slog.Debug("SafeSetIdentitySlot: plausibility rejected", "fieldKey", fieldKey, "reason", outcome.Reason)
		return IdentityResult{Accepted: false, Reason: outcome.Reason}
	}

	if nameLikeField(fieldType, fieldKey) {
		stopSet := MergeStopWords(opts.ExtraStopWords)
		if looksLikePhoneNumber(value) {
			return IdentityResult{Accepted: false, Reason: models.RejectReasonLooksLikePhone}
		}
		if isStopWord(stopSet, value) {
			return IdentityResult{Accepted: false, Reason: models.RejectReasonStopWord}
		}
		if letterCount(value) == 0 {
			return IdentityResult{Accepted: false, Reason: models.RejectReasonNoLetters}
		}
	}

	if existing := slotMap[fieldKey]; existing != nil && existing.Confirmed && existing.Immutable && !opts.IsCorrection {
		return IdentityResult{Accepted: false, Reason: models.RejectReasonImmutable}
	}

	source := opts.Source
	if opts.IsCorrection {
		source = models.SourceCorrection
	}
	previous := ""
	if existing := slotMap[fieldKey]; existing != nil {
		previous = existing.Value
	}
	slotMap[fieldKey] = &models.Slot{
		Value:         value,
		Confidence:    opts.Confidence,
		Source:        source,
		Confirmed:     opts.IsCorrection,
		Immutable:     opts.IsCorrection,
		PreviousValue: previous,
		UpdatedAt:     time.Now(),
	}
	return IdentityResult{Accepted: true}
}

func fieldTypeForKey(fieldKey string) models.FieldType {
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
