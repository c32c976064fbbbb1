// Package models defines the core data structures for Bookline.
//
// It includes the slot, step, and conversation-state types shared across the
// flow engine, the write firewall, the storage layer, and the HTTP API.
package models

import (
	"errors"
	"time"
)

// SlotSource identifies where a slot value came from.
type SlotSource string

const (
	// SourceUtterance means the caller stated the value directly in this flow.
	SourceUtterance SlotSource = "utterance"
	// SourceCallerID means the value was inferred from caller metadata.
	SourceCallerID SlotSource = "caller_id"
	// SourceDiscovery means the value was captured in the discovery phase before the engine ran.
	SourceDiscovery SlotSource = "discovery"
	// SourcePreExtracted means the value was supplied by an upstream extractor this turn.
	SourcePreExtracted SlotSource = "pre_extracted"
	// SourceCorrection means the value came from an explicit user correction.
	SourceCorrection SlotSource = "correction"
)

// IsValidSlotSource checks if the given slot source is supported.
func IsValidSlotSource(s SlotSource) bool {
	switch s {
	case SourceUtterance, SourceCallerID, SourceDiscovery, SourcePreExtracted, SourceCorrection:
		return true
	default:
		return false
	}
}

// ExternalSource reports whether the source originated outside the engine's
// own collection turns. Values from external sources must pass through the
// pre-confirmation queue before they count as collected.
func (s SlotSource) ExternalSource() bool {
	switch s {
	case SourceCallerID, SourceDiscovery, SourcePreExtracted:
		return true
	default:
		return false
	}
}

// FieldType describes which plausibility and collection rules apply to a step.
type FieldType string

const (
	// FieldTypeName collects a person name, with spelling disambiguation support.
	FieldTypeName FieldType = "name"
	// FieldTypePhone collects a phone number, with area-code breakdown support.
	FieldTypePhone FieldType = "phone"
	// FieldTypeAddress collects a service address, with street/city/unit breakdown.
	FieldTypeAddress FieldType = "address"
	// FieldTypeTime collects an appointment time preference.
	FieldTypeTime FieldType = "time"
	// FieldTypeYesNo collects a boolean answer.
	FieldTypeYesNo FieldType = "yes_no"
	// FieldTypeText collects free text with no structural rules.
	FieldTypeText FieldType = "text"
)

// IsValidFieldType checks if the given field type is supported.
func IsValidFieldType(ft FieldType) bool {
	switch ft {
	case FieldTypeName, FieldTypePhone, FieldTypeAddress, FieldTypeTime, FieldTypeYesNo, FieldTypeText:
		return true
	default:
		return false
	}
}

// TurnAction identifies what the engine did (or decided) on a turn.
type TurnAction string

const (
	// ActionCollect means the engine asked for a field with no value.
	ActionCollect TurnAction = "COLLECT"
	// ActionConfirm means the engine asked the caller to confirm an existing value.
	ActionConfirm TurnAction = "CONFIRM"
	// ActionCollectDetails means the engine entered a sub-dialogue for a partial value.
	ActionCollectDetails TurnAction = "COLLECT_DETAILS"
	// ActionConfirmSpelling means the engine asked a spelling disambiguation question.
	ActionConfirmSpelling TurnAction = "CONFIRM_SPELLING"
	// ActionContinue means the turn advanced state without changing the open question.
	ActionContinue TurnAction = "CONTINUE"
	// ActionComplete means every required step is satisfied and the summary was emitted.
	ActionComplete TurnAction = "COMPLETE"
	// ActionEscalate means a step exhausted its attempts and the flow unlocked for handoff.
	ActionEscalate TurnAction = "ESCALATE"
	// ActionError means the turn failed in a way the engine could not absorb.
	ActionError TurnAction = "ERROR"
)

// DetailReason tags why a step needs a detail sub-dialogue.
type DetailReason string

const (
	// DetailReasonSpelling indicates a short or variant-prone name needs spelling confirmation.
	DetailReasonSpelling DetailReason = "spelling_disambiguation"
	// DetailReasonMissingLastName indicates full-name collection is configured and only one token was given.
	DetailReasonMissingLastName DetailReason = "missing_last_name"
	// DetailReasonIncompleteAddress indicates the address lacks city/state components.
	DetailReasonIncompleteAddress DetailReason = "incomplete_address"
	// DetailReasonShortPhone indicates fewer than ten digits were captured.
	DetailReasonShortPhone DetailReason = "short_phone"
)

// Rejection reason tags returned in ValidationOutcome.Reason.
const (
	RejectReasonImplausibleValue = "implausible_value"
	RejectReasonStepGated        = "step_gated"
	RejectReasonLooksLikePhone   = "looks_like_phone_number"
	RejectReasonStopWord         = "stop_word"
	RejectReasonNoLetters        = "no_letters"
	RejectReasonImmutable        = "immutable_slot"
	RejectReasonAddressLeak      = "address_text_in_time_field"
	RejectReasonBareNumeric      = "bare_numeric"
	RejectReasonEmptyValue       = "empty_value"
	RejectReasonTooShort         = "below_min_length"
	RejectReasonUnknownField     = "unknown_field"
)

// Firewall check identifiers returned in ValidationOutcome.RejectedBy.
const (
	CheckTypePlausibility = "type_plausibility"
	CheckStepGate         = "step_gate"
	CheckIdentity         = "identity_protection"
	CheckImmutability     = "immutability"
)

// ValidationOutcome is the result of a single slot write attempt. Rejections
// are ordinary control-flow values, never errors.
type ValidationOutcome struct {
	Valid      bool   `json:"valid"`
	Reason     string `json:"reason,omitempty"`
	RejectedBy string `json:"rejected_by,omitempty"`
}

// Accepted returns an outcome for a successful write.
func Accepted() ValidationOutcome {
	return ValidationOutcome{Valid: true}
}

// Rejected returns an outcome for a failed write, tagged with the reason and
// the check that rejected it.
func Rejected(reason, rejectedBy string) ValidationOutcome {
	return ValidationOutcome{Valid: false, Reason: reason, RejectedBy: rejectedBy}
}

// Slot is one collected value with provenance. Confirmed+immutable slots can
// only change through an explicit correction.
type Slot struct {
	Value         string     `json:"value"`
	Confidence    float64    `json:"confidence"`
	Source        SlotSource `json:"source"`
	Confirmed     bool       `json:"confirmed"`
	Immutable     bool       `json:"immutable"`
	PreviousValue string     `json:"previous_value,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Error variables shared across modules.
var (
	ErrEmptyTenantID      = errors.New("tenant id cannot be empty")
	ErrEmptySessionID     = errors.New("session id cannot be empty")
	ErrUnconfiguredFlow   = errors.New("tenant flow is not configured")
	ErrUnknownStep        = errors.New("step not found in flow")
	ErrInvalidFieldType   = errors.New("invalid field type")
	ErrInvalidSlotSource  = errors.New("invalid slot source")
	ErrMissingFieldKey    = errors.New("field key is required")
	ErrDuplicateStepOrder = errors.New("duplicate step order in flow")
	ErrBookingNotFound    = errors.New("booking not found")
)
