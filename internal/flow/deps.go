// Package flow implements the deterministic slot-filling engine: the per-turn
// decision procedure, the pre-confirmation queue, the nested sub-dialogues,
// and the terminal invariant check.
package flow

import (
	"context"
	"time"
)

// GeocodeConfidence is the confidence tier returned by the address validator.
type GeocodeConfidence string

const (
	// GeocodeConfidenceHigh means the address resolved to a single rooftop match.
	GeocodeConfidenceHigh GeocodeConfidence = "HIGH"
	// GeocodeConfidenceMedium means the address resolved with interpolation.
	GeocodeConfidenceMedium GeocodeConfidence = "MEDIUM"
	// GeocodeConfidenceLow means the match is a guess; the raw value is kept.
	GeocodeConfidenceLow GeocodeConfidence = "LOW"
)

// GeocodeResult is the address validator's never-throws response shape.
// Success false is a skip/failure, not an error.
type GeocodeResult struct {
	Success          bool              `json:"success"`
	Validated        bool              `json:"validated"`
	Confidence       GeocodeConfidence `json:"confidence,omitempty"`
	Normalized       bool              `json:"normalized,omitempty"`
	FormattedAddress string            `json:"formatted_address,omitempty"`
	Components       map[string]string `json:"components,omitempty"`
	NeedsUnit        bool              `json:"needs_unit,omitempty"`
	PlaceID          string            `json:"place_id,omitempty"`
}

// GeocodeOptions scopes one validation call.
type GeocodeOptions struct {
	TenantID string
	Enabled  bool
}

// AddressValidator normalizes and scores an assembled address.
type AddressValidator interface {
	Validate(ctx context.Context, rawAddress string, opts GeocodeOptions) GeocodeResult
}

// CalendarSlot is one offerable appointment window.
type CalendarSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// CalendarResult carries available slots, or a fallback marker when lookup
// is unavailable and the engine degrades to open-ended preference capture.
type CalendarResult struct {
	Slots    []CalendarSlot `json:"slots,omitempty"`
	Fallback bool           `json:"fallback,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// CalendarLookup finds bookable windows for a tenant.
type CalendarLookup interface {
	FindAvailableSlots(ctx context.Context, tenantID string, from time.Time, serviceType string) CalendarResult
}

// NotifyResult reports how a booking confirmation was delivered.
type NotifyResult struct {
	Success bool   `json:"success"`
	Method  string `json:"method,omitempty"`
}

// Notifier delivers booking confirmations. Implementations must be safe to
// call fire-and-forget; the engine never blocks a turn on delivery.
type Notifier interface {
	SendBookingConfirmation(ctx context.Context, tenantID string, booking BookingData) NotifyResult
}

// BookingData is the notification payload for a completed booking.
type BookingData struct {
	BookingID  string `json:"booking_id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	TimeWindow string `json:"time_window"`
}

// Collaborators bundles the external services one engine instance consults.
// Any of them may be nil; every failure path degrades instead of aborting.
type Collaborators struct {
	Geocoder AddressValidator
	Calendar CalendarLookup
	Notifier Notifier
}
