// Package testutil provides common fixtures and helpers for Bookline tests.
package testutil

import (
	"encoding/json"
	"testing"

	"github.com/voicelane/bookline/internal/models"
)

// BookingFlow returns the canonical three-step booking flow used across
// package tests: name, phone and time, all required.
func BookingFlow(tenantID string) models.Flow {
	return models.Flow{
		TenantID: tenantID,
		Steps: []models.Step{
			{ID: "s_name", FieldKey: "name", Type: models.FieldTypeName, Prompt: "Can I get your name?", Required: true, Order: 1},
			{ID: "s_phone", FieldKey: "phone", Type: models.FieldTypePhone, Prompt: "What's the best number to reach you?", Required: true, Order: 2},
			{ID: "s_time", FieldKey: "time", Type: models.FieldTypeTime, Prompt: "When works best for you?", Required: true, Order: 3},
		},
	}
}

// MustMarshalJSON marshals an object to JSON and fails the test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails the test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
