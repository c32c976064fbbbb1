// Package models defines the conversation state snapshot owned by the engine
// for the duration of one call. Durability belongs to the caller.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SubDialogueKind identifies which nested collection machine is active.
type SubDialogueKind string

const (
	// SubDialogueAddress breaks an address into street, city/state, and unit phases.
	SubDialogueAddress SubDialogueKind = "address"
	// SubDialoguePhone collects a missing area code and remainder.
	SubDialoguePhone SubDialogueKind = "phone"
	// SubDialogueName collects spelling confirmation or a missing name part.
	SubDialogueName SubDialogueKind = "name"
)

// Address breakdown phases.
const (
	AddressPhaseStreet    = "street"
	AddressPhaseCityState = "city_state"
	AddressPhaseUnit      = "unit"
)

// Phone breakdown phases.
const (
	PhonePhaseAreaCode  = "area_code"
	PhonePhaseRemainder = "remainder"
)

// Name breakdown phases.
const (
	NamePhaseSpelling    = "spelling"
	NamePhaseMissingPart = "missing_part"
)

// SubDialogue tracks a nested micro-state-machine layered over one step.
// Partial components live here until assembly; only the assembled value is
// written to the canonical slot store.
type SubDialogue struct {
	Kind    SubDialogueKind   `json:"kind"`
	StepID  string            `json:"step_id"`
	Phase   string            `json:"phase"`
	Partial map[string]string `json:"partial,omitempty"`
}

// PendingConfirmation marks an open yes/no question about a stored value.
type PendingConfirmation struct {
	StepID   string `json:"step_id"`
	FieldKey string `json:"field_key"`
	Value    string `json:"value"`
}

// PendingPreconfirm marks an open confirm-or-correct question about a value
// inherited from outside the engine.
type PendingPreconfirm struct {
	FieldKey string     `json:"field_key"`
	Value    string     `json:"value"`
	Source   SlotSource `json:"source"`
}

// PendingSpellingConfirm marks an open spelling forced-choice question.
type PendingSpellingConfirm struct {
	StepID     string   `json:"step_id"`
	FieldKey   string   `json:"field_key"`
	Candidates []string `json:"candidates"`
}

// ConversationState is the engine-owned snapshot for one call. The caller
// loads and saves it between turns; the engine never persists it itself.
type ConversationState struct {
	SessionID     string `json:"session_id"`
	TenantID      string `json:"tenant_id"`
	CurrentStepID string `json:"current_step_id,omitempty"`

	Slots    map[string]*Slot `json:"slots"`
	AskCount map[string]int   `json:"ask_count,omitempty"`

	PendingConfirmation    *PendingConfirmation    `json:"pending_confirmation,omitempty"`
	PendingPreconfirm      *PendingPreconfirm      `json:"pending_preconfirm,omitempty"`
	PendingSpellingConfirm *PendingSpellingConfirm `json:"pending_spelling_confirm,omitempty"`
	SubDialogue            *SubDialogue            `json:"sub_dialogue,omitempty"`

	// PreconfirmDone records that the pre-confirmation queue already ran for
	// this call; it runs at most once.
	PreconfirmDone bool `json:"preconfirm_done,omitempty"`

	// Escalated marks the flow as unlocked for human handoff.
	Escalated bool `json:"escalated,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState creates an empty snapshot for one call.
func NewConversationState(sessionID, tenantID string) *ConversationState {
	now := time.Now()
	return &ConversationState{
		SessionID: sessionID,
		TenantID:  tenantID,
		Slots:     make(map[string]*Slot),
		AskCount:  make(map[string]int),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Slot returns the slot for a field key, or nil.
func (s *ConversationState) Slot(fieldKey string) *Slot {
	if s.Slots == nil {
		return nil
	}
	return s.Slots[fieldKey]
}

// SlotValue returns the stored value for a field key, or "".
func (s *ConversationState) SlotValue(fieldKey string) string {
	if sl := s.Slot(fieldKey); sl != nil {
		return sl.Value
	}
	return ""
}

// ConfirmedFields recomputes the set of confirmed field keys from slot
// metadata. It is never carried as session state: a field validated earlier
// in the call can be invalidated by a later correction.
func (s *ConversationState) ConfirmedFields() map[string]bool {
	confirmed := make(map[string]bool, len(s.Slots))
	for key, slot := range s.Slots {
		if slot != nil && slot.Confirmed {
			confirmed[key] = true
		}
	}
	return confirmed
}

// IncrementAskCount bumps and returns the ask counter for a step.
func (s *ConversationState) IncrementAskCount(stepID string) int {
	if s.AskCount == nil {
		s.AskCount = make(map[string]int)
	}
	s.AskCount[stepID]++
	return s.AskCount[stepID]
}

// ResetAskCount restarts the ask counter for a step at one, giving a
// rewound step a fresh attempt budget.
func (s *ConversationState) ResetAskCount(stepID string) {
	if s.AskCount == nil {
		s.AskCount = make(map[string]int)
	}
	s.AskCount[stepID] = 1
}

// Snapshot serializes the state for storage by the host.
func (s *ConversationState) Snapshot() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	return string(data), nil
}

// RestoreConversationState parses a snapshot produced by Snapshot.
func RestoreConversationState(snapshot string) (*ConversationState, error) {
	var state ConversationState
	if err := json.Unmarshal([]byte(snapshot), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation state: %w", err)
	}
	if state.Slots == nil {
		state.Slots = make(map[string]*Slot)
	}
	if state.AskCount == nil {
		state.AskCount = make(map[string]int)
	}
	return &state, nil
}
