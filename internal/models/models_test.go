package models

import (
	"errors"
	"testing"
)

func TestIsValidSlotSource(t *testing.T) {
	for _, s := range []SlotSource{SourceUtterance, SourceCallerID, SourceDiscovery, SourcePreExtracted, SourceCorrection} {
		if !IsValidSlotSource(s) {
			t.Errorf("expected %q to be a valid slot source", s)
		}
	}
	if IsValidSlotSource("psychic") {
		t.Error("unknown slot source should be invalid")
	}
}

func TestExternalSource(t *testing.T) {
	external := []SlotSource{SourceCallerID, SourceDiscovery, SourcePreExtracted}
	for _, s := range external {
		if !s.ExternalSource() {
			t.Errorf("%q should be an external source", s)
		}
	}
	if SourceUtterance.ExternalSource() || SourceCorrection.ExternalSource() {
		t.Error("utterance and correction are in-engine sources")
	}
}

func TestIsValidFieldType(t *testing.T) {
	for _, ft := range []FieldType{FieldTypeName, FieldTypePhone, FieldTypeAddress, FieldTypeTime} {
		if !IsValidFieldType(ft) {
			t.Errorf("expected %q to be a valid field type", ft)
		}
	}
	if IsValidFieldType("email") {
		t.Error("unknown field type should be invalid")
	}
}

func TestFlowValidate(t *testing.T) {
	fl := Flow{
		TenantID: "tenant_a",
		Steps: []Step{
			{ID: "s1", FieldKey: "name", Type: FieldTypeName, Order: 1},
			{ID: "s2", FieldKey: "time", Type: FieldTypeTime, Order: 2},
		},
	}
	if err := fl.Validate(); err != nil {
		t.Fatalf("valid flow should pass, got %v", err)
	}

	fl.TenantID = ""
	if err := fl.Validate(); !errors.Is(err, ErrEmptyTenantID) {
		t.Errorf("expected ErrEmptyTenantID, got %v", err)
	}

	fl.TenantID = "tenant_a"
	fl.Steps[1].Order = 1
	if err := fl.Validate(); !errors.Is(err, ErrDuplicateStepOrder) {
		t.Errorf("expected ErrDuplicateStepOrder, got %v", err)
	}

	fl.Steps[1].Order = 2
	fl.Steps[0].Type = "email"
	if err := fl.Validate(); !errors.Is(err, ErrInvalidFieldType) {
		t.Errorf("expected ErrInvalidFieldType, got %v", err)
	}
}

func TestTurnRequestValidate(t *testing.T) {
	req := TurnRequest{TenantID: "tenant_a", Utterance: "hello"}
	if err := req.Validate(); err != nil {
		t.Fatalf("valid request should pass, got %v", err)
	}

	req.TenantID = ""
	if err := req.Validate(); !errors.Is(err, ErrEmptyTenantID) {
		t.Errorf("expected ErrEmptyTenantID, got %v", err)
	}

	req.TenantID = "tenant_a"
	req.PreExtracted = []PreExtractedValue{{FieldKey: "", Value: "Dana"}}
	if err := req.Validate(); !errors.Is(err, ErrMissingFieldKey) {
		t.Errorf("expected ErrMissingFieldKey, got %v", err)
	}

	req.PreExtracted = []PreExtractedValue{{FieldKey: "name", Value: "Dana", Source: "psychic"}}
	if err := req.Validate(); !errors.Is(err, ErrInvalidSlotSource) {
		t.Errorf("expected ErrInvalidSlotSource, got %v", err)
	}
}

func TestConversationStateSnapshotRoundTrip(t *testing.T) {
	state := NewConversationState("sess_1", "tenant_a")
	state.CurrentStepID = "s_phone"
	state.Slots["name"] = &Slot{Value: "Dana Reeves", Confidence: 0.9, Source: SourceUtterance, Confirmed: true}
	state.IncrementAskCount("s_phone")

	snap, err := state.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	got, err := RestoreConversationState(snap)
	if err != nil {
		t.Fatalf("RestoreConversationState failed: %v", err)
	}

	if got.SessionID != "sess_1" || got.TenantID != "tenant_a" || got.CurrentStepID != "s_phone" {
		t.Errorf("restored state header mismatch: %+v", got)
	}
	if slot := got.Slot("name"); slot == nil || slot.Value != "Dana Reeves" || !slot.Confirmed {
		t.Errorf("restored slot mismatch: %+v", got.Slots)
	}
	if got.AskCount["s_phone"] != 1 {
		t.Errorf("restored ask count mismatch: %v", got.AskCount)
	}
}

func TestAPIResponseBuilders(t *testing.T) {
	ok := Success(map[string]string{"k": "v"})
	if ok.Status != string(APIStatusOK) || ok.Result == nil {
		t.Errorf("Success builder mismatch: %+v", ok)
	}

	withMsg := SuccessWithMessage("done", nil)
	if withMsg.Status != string(APIStatusOK) || withMsg.Message != "done" {
		t.Errorf("SuccessWithMessage builder mismatch: %+v", withMsg)
	}

	errResp := Error("boom")
	if errResp.Status != string(APIStatusError) || errResp.Message != "boom" {
		t.Errorf("Error builder mismatch: %+v", errResp)
	}
}
