package slots

import (
	"testing"

	"github.com/voicelane/bookline/internal/models"
)

func testFlow() *models.Flow {
	return &models.Flow{
		TenantID: "tenant-1",
		Steps: []models.Step{
			{ID: "s_name", FieldKey: "name", Type: models.FieldTypeName, Required: true, Order: 1},
			{ID: "s_phone", FieldKey: "phone", Type: models.FieldTypePhone, Required: true, Order: 2},
			{ID: "s_address", FieldKey: "address", Type: models.FieldTypeAddress, Required: true, Order: 3},
			{ID: "s_time", FieldKey: "time", Type: models.FieldTypeTime, Required: true, Order: 4},
		},
	}
}

func newTestFirewall() *Firewall {
	return NewFirewall(Config{TenantID: "tenant-1"}, NewStopWordCache())
}

func TestSetSlotRejectsPhoneShapedName(t *testing.T) {
	fw := newTestFirewall()
	state := models.NewConversationState("sess-1", "tenant-1")
	state.CurrentStepID = "s_name"

	outcome := fw.SetSlot(state, testFlow(), "name", "555-123-4567", WriteOptions{
		Source: models.SourceUtterance, Confidence: 0.9,
	})
	if outcome.Valid {
		t.Fatal("phone-shaped value accepted as name")
	}
	if outcome.Reason != models.RejectReasonLooksLikePhone {
		t.Errorf("reason = %q, want %q", outcome.Reason, models.RejectReasonLooksLikePhone)
	}
	if outcome.RejectedBy != models.CheckIdentity {
		t.Errorf("rejectedBy = %q, want %q", outcome.RejectedBy, models.CheckIdentity)
	}
	if state.Slot("name") != nil {
		t.Error("rejected write mutated the store")
	}
}

func TestSetSlotRejectsStopWordName(t *testing.T) {
	fw := newTestFirewall()
	state := models.NewConversationState("sess-1", "tenant-1")
	state.CurrentStepID = "s_name"

	for _, v := range []string{"yeah", "Okay", "uh huh"} {
		outcome := fw.SetSlot(state, testFlow(), "name", v, WriteOptions{Source: models.SourceUtterance})
		if outcome.Valid {
			t.Errorf("stop word %q accepted as name", v)
		}
	}
}

func TestSetSlotStepGateBlocksCrossFieldWrite(t *testing.T) {
	fw := newTestFirewall()
	state := models.NewConversationState("sess-1", "tenant-1")
	state.CurrentStepID = "s_address"

	outcome := fw.SetSlot(state, testFlow(), "name", "Maple", WriteOptions{
		Source: models.SourcePreExtracted, Confidence: 0.7,
	})
	if outcome.Valid {
		t.Fatal("cross-field write accepted while another step is open")
	}
	if outcome.RejectedBy != models.CheckStepGate {
		t.Errorf("rejectedBy = %q, want %q", outcome.RejectedBy, models.CheckStepGate)
	}
}

func TestSetSlotStepGateAllowsNameAliases(t *testing.T) {
	fw := newTestFirewall()
	state := models.NewConversationState("sess-1", "tenant-1")
	flow := testFlow()
	state.CurrentStepID = "s_name"

	outcome := fw.SetSlot(state, flow, "last_name", "Rivera", WriteOptions{Source: models.SourceUtterance, Confidence: 0.9})
	if !outcome.Valid {
		t.Fatalf("alias write rejected: %q", outcome.Reason)
	}
	if got := state.SlotValue("last_name"); got != "Rivera" {
		t.Errorf("last_name = %q, want Rivera", got)
	}
}

func TestSetSlotImmutabilityRequiresCorrection(t *testing.T) {
	fw := newTestFirewall()
	state := models.NewConversationState("sess-1", "tenant-1")
	flow := testFlow()
	state.CurrentStepID = "s_name"

	if outcome := fw.SetSlot(state, flow, "name", "Mark Rivera", WriteOptions{Source: models.SourceUtterance, Confidence: 0.9}); !outcome.Valid {
		t.Fatalf("initial write rejected: %q", outcome.Reason)
	}
	ConfirmSlot(state, "name", true)

	outcome := fw.SetSlot(state, flow, "name", "Marc Rivera", WriteOptions{Source: models.SourcePreExtracted, Confidence: 0.8})
	if outcome.Valid {
		t.Fatal("passive write overwrote a confirmed immutable slot")
	}
	if outcome.RejectedBy != models.CheckImmutability {
		t.Errorf("rejectedBy = %q, want %q", outcome.RejectedBy, models.CheckImmutability)
	}
	if got := state.SlotValue("name"); got != "Mark Rivera" {
		t.Errorf("name = %q, want original value intact", got)
	}

	correction := fw.SetSlot(state, flow, "name", "Marc Rivera", WriteOptions{Source: models.SourceUtterance, IsCorrection: true, Confidence: 0.9})
	if !correction.Valid {
		t.Fatalf("explicit correction rejected: %q", correction.Reason)
	}
	slot := state.Slot("name")
	if slot.Value != "Marc Rivera" {
		t.Errorf("corrected value = %q", slot.Value)
	}
	if slot.PreviousValue != "Mark Rivera" {
		t.Errorf("previousValue = %q, want prior value retained", slot.PreviousValue)
	}
	if !slot.Confirmed || !slot.Immutable {
		t.Error("correction should land confirmed and immutable")
	}
	if slot.Source != models.SourceCorrection {
		t.Errorf("source = %q, want %q", slot.Source, models.SourceCorrection)
	}
}

func TestSetSlotRejectsAddressShapedTime(t *testing.T) {
	fw := newTestFirewall()
	state := models.NewConversationState("sess-1", "tenant-1")
	state.CurrentStepID = "s_time"

	outcome := fw.SetSlot(state, testFlow(), "time", "12155 Metro Parkway", WriteOptions{Source: models.SourceUtterance, Confidence: 0.9})
	if outcome.Valid {
		t.Fatal("street address accepted as time window")
	}
	if outcome.Reason != models.RejectReasonAddressLeak {
		t.Errorf("reason = %q, want %q", outcome.Reason, models.RejectReasonAddressLeak)
	}
}

func TestRevalidateCatchesLateCorruption(t *testing.T) {
	state := models.NewConversationState("sess-1", "tenant-1")
	state.Slots["time"] = &models.Slot{Value: "12155 Metro Parkway", Source: models.SourceUtterance, Confirmed: true}

	outcome := Revalidate(state, models.FieldTypeTime, "time")
	if outcome.Valid {
		t.Fatal("address-shaped time survived terminal re-validation")
	}

	state.Slots["time"] = &models.Slot{Value: "tomorrow morning", Source: models.SourceUtterance, Confirmed: true}
	if outcome := Revalidate(state, models.FieldTypeTime, "time"); !outcome.Valid {
		t.Errorf("valid time rejected at terminal check: %q", outcome.Reason)
	}
}

func TestClearSlotAndConfirmSlotMissingField(t *testing.T) {
	state := models.NewConversationState("sess-1", "tenant-1")
	ConfirmSlot(state, "name", true) // no-op, must not panic
	ClearSlot(state, "name")

	state.Slots["phone"] = &models.Slot{Value: "2395550144", Source: models.SourceCallerID}
	ConfirmSlot(state, "phone", false)
	if slot := state.Slot("phone"); !slot.Confirmed || slot.Immutable {
		t.Error("ConfirmSlot(immutable=false) should confirm without locking")
	}
	ClearSlot(state, "phone")
	if state.Slot("phone") != nil {
		t.Error("ClearSlot left the slot behind")
	}
}

func TestConfirmedFieldsDerivedFromSlots(t *testing.T) {
	state := models.NewConversationState("sess-1", "tenant-1")
	state.Slots["name"] = &models.Slot{Value: "Mark", Confirmed: true}
	state.Slots["phone"] = &models.Slot{Value: "2395550144"}

	confirmed := state.ConfirmedFields()
	if !confirmed["name"] || confirmed["phone"] {
		t.Errorf("ConfirmedFields = %v, want name only", confirmed)
	}

	ClearSlot(state, "name")
	if state.ConfirmedFields()["name"] {
		t.Error("confirmation status survived slot removal")
	}
}

func TestSafeSetIdentitySlotSharedPolicy(t *testing.T) {
	slotMap := map[string]*models.Slot{}

	if res := SafeSetIdentitySlot(slotMap, "name", "555-123-4567", IdentityOptions{Source: models.SourceDiscovery}); res.Accepted {
		t.Error("shared policy accepted phone-shaped name")
	}
	if res := SafeSetIdentitySlot(slotMap, "name", "yeah", IdentityOptions{Source: models.SourceDiscovery}); res.Accepted {
		t.Error("shared policy accepted stop word as name")
	}
	res := SafeSetIdentitySlot(slotMap, "name", "Dana Whitfield", IdentityOptions{Source: models.SourceDiscovery, Confidence: 0.8})
	if !res.Accepted {
		t.Fatalf("valid name rejected: %q", res.Reason)
	}
	if slotMap["name"].Value != "Dana Whitfield" {
		t.Errorf("stored value = %q", slotMap["name"].Value)
	}
}

func TestSetSlotEnforcesMinLength(t *testing.T) {
	fw := newTestFirewall()
	flow := testFlow()
	flow.Steps[0].Validation = &models.StepValidation{MinLength: 4}
	state := models.NewConversationState("sess-1", "tenant-1")
	state.CurrentStepID = "s_name"

	outcome := fw.SetSlot(state, flow, "name", "Al", WriteOptions{Source: models.SourceUtterance, Confidence: 0.9})
	if outcome.Valid {
		t.Fatal("value below configured minimum length accepted")
	}
	if outcome.Reason != models.RejectReasonTooShort {
		t.Errorf("reason = %q, want %q", outcome.Reason, models.RejectReasonTooShort)
	}

	outcome = fw.SetSlot(state, flow, "name", "Alan", WriteOptions{Source: models.SourceUtterance, Confidence: 0.9})
	if !outcome.Valid {
		t.Errorf("value meeting minimum length rejected: %+v", outcome)
	}
}
