// Package models defines the flow and step types consumed read-only by the engine.
package models

import "fmt"

// StepCondition makes a step's participation depend on another field's value.
// The step is skipped unless the referenced field currently equals Equals.
type StepCondition struct {
	FieldKey string `json:"field_key"`
	Equals   string `json:"equals"`
}

// StepValidation carries per-step validation tuning.
type StepValidation struct {
	// MaxAttempts bounds re-asks for this step. Zero means the engine default.
	MaxAttempts int `json:"max_attempts,omitempty"`
	// MinLength rejects accepted values shorter than this many characters.
	MinLength int `json:"min_length,omitempty"`
}

// StepOptions carries per-type collection options.
type StepOptions struct {
	// AskFullName requests both name parts for name steps.
	AskFullName bool `json:"ask_full_name,omitempty"`
	// CollectUnit adds a unit/apartment phase to address breakdown.
	CollectUnit bool `json:"collect_unit,omitempty"`
	// GeocodeEnabled passes assembled addresses to the address validator.
	GeocodeEnabled bool `json:"geocode_enabled,omitempty"`
	// ServiceType is forwarded to the calendar lookup for time steps.
	ServiceType string `json:"service_type,omitempty"`
}

// Step is one field the flow must collect, in tenant-configured order.
type Step struct {
	ID         string          `json:"id"`
	FieldKey   string          `json:"field_key"`
	Type       FieldType       `json:"type"`
	Prompt     string          `json:"prompt"`
	Reprompt   string          `json:"reprompt,omitempty"`
	ConfirmTpl string          `json:"confirm_template,omitempty"`
	Label      string          `json:"label,omitempty"`
	Required   bool            `json:"required"`
	Order      int             `json:"order"`
	Validation *StepValidation `json:"validation,omitempty"`
	Options    *StepOptions    `json:"options,omitempty"`
	Condition  *StepCondition  `json:"condition,omitempty"`
}

// Validate checks structural requirements for a step.
func (s *Step) Validate() error {
	if s.FieldKey == "" {
		return ErrMissingFieldKey
	}
	if !IsValidFieldType(s.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidFieldType, s.Type)
	}
	return nil
}

// Flow is an immutable, ordered list of steps resolved from tenant
// configuration. Unconfigured marks a fail-closed resolution with zero steps.
type Flow struct {
	TenantID     string `json:"tenant_id"`
	Steps        []Step `json:"steps"`
	Unconfigured bool   `json:"unconfigured,omitempty"`
}

// Validate checks the flow's steps and order invariants.
func (f *Flow) Validate() error {
	if f.TenantID == "" {
		return ErrEmptyTenantID
	}
	seen := make(map[int]bool, len(f.Steps))
	for i := range f.Steps {
		if err := f.Steps[i].Validate(); err != nil {
			return fmt.Errorf("step %s: %w", f.Steps[i].ID, err)
		}
		if seen[f.Steps[i].Order] {
			return fmt.Errorf("%w: order %d", ErrDuplicateStepOrder, f.Steps[i].Order)
		}
		seen[f.Steps[i].Order] = true
	}
	return nil
}

// StepByID returns the step with the given id, or nil.
func (f *Flow) StepByID(id string) *Step {
	for i := range f.Steps {
		if f.Steps[i].ID == id {
			return &f.Steps[i]
		}
	}
	return nil
}

// StepByField returns the first step collecting the given field key, or nil.
func (f *Flow) StepByField(fieldKey string) *Step {
	for i := range f.Steps {
		if f.Steps[i].FieldKey == fieldKey {
			return &f.Steps[i]
		}
	}
	return nil
}

// StepIndex returns the position of the step id in order, or -1.
func (f *Flow) StepIndex(id string) int {
	for i := range f.Steps {
		if f.Steps[i].ID == id {
			return i
		}
	}
	return -1
}

// Sorted returns the steps ordered by their Order value. The flow itself is
// not mutated; resolvers are expected to store steps pre-sorted and this is
// the normalization point for ones that do not.
func (f *Flow) Sorted() []Step {
	steps := make([]Step, len(f.Steps))
	copy(steps, f.Steps)
	for i := 1; i < len(steps); i++ {
		for j := i; j > 0 && steps[j-1].Order > steps[j].Order; j-- {
			steps[j-1], steps[j] = steps[j], steps[j-1]
		}
	}
	return steps
}
