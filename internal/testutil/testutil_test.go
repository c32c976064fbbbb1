package testutil

import (
	"testing"

	"github.com/voicelane/bookline/internal/models"
)

func TestBookingFlowIsValid(t *testing.T) {
	fl := BookingFlow("tenant_a")

	if err := fl.Validate(); err != nil {
		t.Fatalf("BookingFlow should validate, got %v", err)
	}

	if len(fl.Steps) != 3 {
		t.Errorf("expected 3 steps, got %d", len(fl.Steps))
	}

	if step := fl.StepByField("phone"); step == nil || step.Type != models.FieldTypePhone {
		t.Errorf("expected a phone step in the fixture, got %+v", step)
	}
}

func TestMustMarshalRoundTrip(t *testing.T) {
	fl := BookingFlow("tenant_a")

	data := MustMarshalJSON(t, fl)

	var got models.Flow
	MustUnmarshalJSON(t, data, &got)

	if got.TenantID != fl.TenantID || len(got.Steps) != len(fl.Steps) {
		t.Errorf("round trip mismatch: got %+v", got)
	}
}
