// Package models defines booking and API payload types.
package models

import (
	"errors"
	"time"
)

// BookingStatus represents the lifecycle of a handed-off booking.
type BookingStatus string

const (
	// BookingStatusPending indicates the booking was assembled but not yet confirmed downstream.
	BookingStatusPending BookingStatus = "pending"
	// BookingStatusConfirmed indicates the summary confirmation was accepted by the caller.
	BookingStatusConfirmed BookingStatus = "confirmed"
	// BookingStatusEscalated indicates the flow unlocked and a human completed the handoff.
	BookingStatusEscalated BookingStatus = "escalated"
)

// Booking is the completed hand-off produced when a flow finishes.
type Booking struct {
	ID          string        `json:"id"`
	SessionID   string        `json:"session_id"`
	TenantID    string        `json:"tenant_id"`
	Status      BookingStatus `json:"status"`
	Name        string        `json:"name"`
	Phone       string        `json:"phone"`
	Address     string        `json:"address"`
	TimeWindow  string        `json:"time_window"`
	ServiceType string        `json:"service_type,omitempty"`
	PlaceID     string        `json:"place_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Validate checks the fields required for hand-off.
func (b *Booking) Validate() error {
	if b.TenantID == "" {
		return ErrEmptyTenantID
	}
	if b.SessionID == "" {
		return ErrEmptySessionID
	}
	if b.Phone == "" {
		return errors.New("booking phone is required")
	}
	return nil
}

// PreExtractedValue is one value supplied by an upstream extractor for this
// turn. It is merged through the write firewall before the decision procedure
// runs; nothing captured passively is treated as final.
type PreExtractedValue struct {
	FieldKey   string     `json:"field_key"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	Source     SlotSource `json:"source,omitempty"`
}

// TurnRequest is the payload for running one engine turn over a session.
type TurnRequest struct {
	TenantID     string              `json:"tenant_id"`
	Utterance    string              `json:"utterance"`
	CallerID     string              `json:"caller_id,omitempty"`
	PreExtracted []PreExtractedValue `json:"pre_extracted,omitempty"`
}

// Validate checks the turn request payload.
func (r *TurnRequest) Validate() error {
	if r.TenantID == "" {
		return ErrEmptyTenantID
	}
	for _, pe := range r.PreExtracted {
		if pe.FieldKey == "" {
			return ErrMissingFieldKey
		}
		if pe.Source != "" && !IsValidSlotSource(pe.Source) {
			return ErrInvalidSlotSource
		}
	}
	return nil
}

// TurnResponse is the API shape of one completed turn.
type TurnResponse struct {
	SessionID  string     `json:"session_id"`
	Reply      string     `json:"reply"`
	Action     TurnAction `json:"action"`
	IsComplete bool       `json:"is_complete"`
	Booking    *Booking   `json:"booking,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
