package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/voicelane/bookline/internal/models"
)

func bookingFlow() *models.Flow {
	return &models.Flow{
		TenantID: "tenant-1",
		Steps: []models.Step{
			{ID: "s_name", FieldKey: "name", Type: models.FieldTypeName, Required: true, Order: 1,
				Prompt: "Can I get your name?", Label: "name"},
			{ID: "s_phone", FieldKey: "phone", Type: models.FieldTypePhone, Required: true, Order: 2,
				Prompt: "What's the best number to reach you?", Label: "phone number"},
			{ID: "s_address", FieldKey: "address", Type: models.FieldTypeAddress, Required: true, Order: 3,
				Prompt: "What's the service address?", Label: "address"},
			{ID: "s_time", FieldKey: "time", Type: models.FieldTypeTime, Required: true, Order: 4,
				Prompt: "When works best for you?", Label: "time window"},
		},
	}
}

func runTurn(t *testing.T, e *Engine, flow *models.Flow, state *models.ConversationState, utterance string) TurnResult {
	t.Helper()
	res, err := e.RunTurn(context.Background(), flow, state, TurnInput{Utterance: utterance})
	if err != nil {
		t.Fatalf("RunTurn(%q) error: %v", utterance, err)
	}
	return res
}

func TestRunTurnHappyPathToBooking(t *testing.T) {
	e := NewEngine(Config{})
	flow := bookingFlow()
	state := models.NewConversationState("sess-1", "tenant-1")

	res := runTurn(t, e, flow, state, "")
	if res.Action != models.ActionCollect || res.Reply != "Can I get your name?" {
		t.Fatalf("turn 1 = %q (%s), want name prompt", res.Reply, res.Action)
	}

	res = runTurn(t, e, flow, state, "Dana Whitfield")
	if res.Action != models.ActionCollect || res.Reply != "What's the best number to reach you?" {
		t.Fatalf("turn 2 = %q (%s), want phone prompt after auto-confirm", res.Reply, res.Action)
	}
	if slot := state.Slot("name"); slot == nil || !slot.Confirmed {
		t.Fatal("directly stated name should be auto-confirmed")
	}

	res = runTurn(t, e, flow, state, "239-555-0144")
	if res.Action != models.ActionCollect || res.Reply != "What's the service address?" {
		t.Fatalf("turn 3 = %q (%s), want address prompt", res.Reply, res.Action)
	}

	res = runTurn(t, e, flow, state, "12155 Metro Parkway")
	if res.Action != models.ActionCollectDetails || !strings.Contains(res.Reply, "city and state") {
		t.Fatalf("turn 4 = %q (%s), want city/state sub-dialogue", res.Reply, res.Action)
	}

	res = runTurn(t, e, flow, state, "Austin, TX")
	if res.Action != models.ActionCollect || res.Reply != "When works best for you?" {
		t.Fatalf("turn 5 = %q (%s), want time prompt", res.Reply, res.Action)
	}
	if got := state.SlotValue("address"); got != "12155 Metro Parkway, Austin, TX" {
		t.Fatalf("assembled address = %q", got)
	}

	res = runTurn(t, e, flow, state, "tomorrow morning")
	if !res.IsComplete || res.Action != models.ActionComplete {
		t.Fatalf("final turn = %q (%s), want completion", res.Reply, res.Action)
	}
	if !strings.Contains(res.Reply, "Let me confirm everything.") {
		t.Errorf("summary reply = %q", res.Reply)
	}
	if res.Booking == nil {
		t.Fatal("completed turn carries no booking")
	}
	if res.Booking.Phone != "(239) 555-0144" {
		t.Errorf("booking phone = %q", res.Booking.Phone)
	}
	if res.Booking.Name != "Dana Whitfield" || res.Booking.TimeWindow != "tomorrow morning" {
		t.Errorf("booking = %+v", res.Booking)
	}
}

func TestRunTurnRejectsAddressAsTimeAndReprompts(t *testing.T) {
	e := NewEngine(Config{})
	flow := bookingFlow()
	state := models.NewConversationState("sess-2", "tenant-1")
	state.Slots["name"] = &models.Slot{Value: "Dana Whitfield", Source: models.SourceUtterance, Confirmed: true}
	state.Slots["phone"] = &models.Slot{Value: "(239) 555-0144", Source: models.SourceUtterance, Confirmed: true}
	state.Slots["address"] = &models.Slot{Value: "12155 Metro Parkway, Austin, TX", Source: models.SourceUtterance, Confirmed: true}
	state.PreconfirmDone = true
	state.CurrentStepID = "s_time"
	state.AskCount["s_time"] = 1

	res := runTurn(t, e, flow, state, "12155 Metro Parkway")
	if res.Action != models.ActionCollect {
		t.Fatalf("action = %s, want COLLECT reprompt", res.Action)
	}
	if state.Slot("time") != nil {
		t.Fatal("address-shaped value leaked into the time slot")
	}
}

func TestRunTurnEmptyUtteranceIsIdempotentThenEscalates(t *testing.T) {
	e := NewEngine(Config{})
	flow := bookingFlow()
	state := models.NewConversationState("sess-3", "tenant-1")

	first := runTurn(t, e, flow, state, "")
	second := runTurn(t, e, flow, state, "")
	third := runTurn(t, e, flow, state, "")
	if second.Reply != third.Reply {
		t.Errorf("repeated silent turns diverged: %q then %q", second.Reply, third.Reply)
	}
	if first.Action != models.ActionCollect || second.Action != models.ActionCollect {
		t.Errorf("silent turns should stay on COLLECT, got %s then %s", first.Action, second.Action)
	}

	res := runTurn(t, e, flow, state, "")
	if res.Action != models.ActionEscalate {
		t.Fatalf("fourth silent turn = %s, want ESCALATE", res.Action)
	}
	if !state.Escalated {
		t.Error("state not marked escalated")
	}

	after := runTurn(t, e, flow, state, "hello?")
	if after.Action != models.ActionEscalate {
		t.Errorf("post-escalation turn = %s, want ESCALATE short-circuit", after.Action)
	}
}

func TestRunTurnPreconfirmsDiscoveredNameFirst(t *testing.T) {
	e := NewEngine(Config{})
	flow := bookingFlow()
	state := models.NewConversationState("sess-4", "tenant-1")
	state.Slots["name"] = &models.Slot{Value: "Dana Whitfield", Source: models.SourceDiscovery, Confidence: 0.7}
	state.Slots["phone"] = &models.Slot{Value: "(239) 555-0144", Source: models.SourceCallerID, Confidence: 0.6}

	res := runTurn(t, e, flow, state, "")
	if res.Action != models.ActionConfirm || !strings.Contains(res.Reply, "Dana Whitfield") {
		t.Fatalf("turn 1 = %q (%s), want name preconfirm before phone", res.Reply, res.Action)
	}

	res = runTurn(t, e, flow, state, "yes")
	if res.Action != models.ActionConfirm || !strings.Contains(res.Reply, "(239) 555-0144") {
		t.Fatalf("turn 2 = %q (%s), want phone preconfirm next", res.Reply, res.Action)
	}
	if slot := state.Slot("name"); !slot.Confirmed || !slot.Immutable {
		t.Error("affirmed preconfirm should confirm and lock the slot")
	}

	res = runTurn(t, e, flow, state, "yes")
	if res.Action != models.ActionCollect || res.Reply != "What's the service address?" {
		t.Fatalf("turn 3 = %q (%s), want collection to resume at address", res.Reply, res.Action)
	}
}

func TestRunTurnReclassifiesDeniedNameAsLastName(t *testing.T) {
	e := NewEngine(Config{})
	flow := bookingFlow()
	flow.Steps[0].Options = &models.StepOptions{AskFullName: true}
	state := models.NewConversationState("sess-5", "tenant-1")
	state.Slots["name"] = &models.Slot{Value: "Whitfield", Source: models.SourceDiscovery, Confidence: 0.7}

	res := runTurn(t, e, flow, state, "")
	if res.Action != models.ActionConfirm {
		t.Fatalf("turn 1 action = %s, want preconfirm", res.Action)
	}

	res = runTurn(t, e, flow, state, "no, that's my last name")
	if res.Action != models.ActionCollect || res.Reply != "Can I get your name?" {
		t.Fatalf("turn 2 = %q (%s), want fresh name collection", res.Reply, res.Action)
	}
	if got := state.SlotValue("last_name"); got != "Whitfield" {
		t.Fatalf("last_name = %q, want reclassified value", got)
	}

	res = runTurn(t, e, flow, state, "Dana")
	if res.Action != models.ActionCollect || res.Reply != "What's the best number to reach you?" {
		t.Fatalf("turn 3 = %q (%s), want merge and advance to phone", res.Reply, res.Action)
	}
	if got := state.SlotValue("name"); got != "Dana Whitfield" {
		t.Errorf("merged name = %q, want Dana Whitfield", got)
	}
}

func TestRunTurnSpellingDisambiguation(t *testing.T) {
	e := NewEngine(Config{})
	flow := bookingFlow()
	state := models.NewConversationState("sess-6", "tenant-1")
	state.Slots["name"] = &models.Slot{Value: "Marc Whitfield", Source: models.SourcePreExtracted, Confidence: 0.7}
	state.PreconfirmDone = true

	res := runTurn(t, e, flow, state, "")
	if res.Action != models.ActionConfirmSpelling {
		t.Fatalf("inherited variant-prone name gave %s, want CONFIRM_SPELLING", res.Action)
	}
	if !strings.Contains(res.Reply, "M-a-r-c") || !strings.Contains(res.Reply, "M-a-r-k") {
		t.Fatalf("spelling prompt = %q", res.Reply)
	}

	res = runTurn(t, e, flow, state, "the second one")
	if res.Action != models.ActionCollect || res.Reply != "What's the best number to reach you?" {
		t.Fatalf("post-spelling turn = %q (%s), want phone prompt", res.Reply, res.Action)
	}
	slot := state.Slot("name")
	if slot.Value != "Mark Whitfield" {
		t.Errorf("resolved name = %q, want Mark Whitfield", slot.Value)
	}
	if !slot.Confirmed || !slot.Immutable {
		t.Error("resolved spelling should be confirmed and locked")
	}
}

func TestRunTurnStripsSpokenLeadIns(t *testing.T) {
	e := NewEngine(Config{})
	flow := bookingFlow()
	state := models.NewConversationState("sess-13", "tenant-1")

	res := runTurn(t, e, flow, state, "")
	if res.Action != models.ActionCollect || res.Reply != "Can I get your name?" {
		t.Fatalf("turn 1 = %q (%s), want name prompt", res.Reply, res.Action)
	}

	res = runTurn(t, e, flow, state, "my name is Mark")
	if res.Action != models.ActionCollect || res.Reply != "What's the best number to reach you?" {
		t.Fatalf("turn 2 = %q (%s), want phone prompt", res.Reply, res.Action)
	}
	slot := state.Slot("name")
	if slot == nil || slot.Value != "Mark" {
		t.Fatalf("name slot = %+v, want bare value Mark", slot)
	}
	if !slot.Confirmed {
		t.Error("directly stated name should be auto-confirmed")
	}

	res = runTurn(t, e, flow, state, "you can reach me at 239-555-0144")
	if res.Action != models.ActionCollect || res.Reply != "What's the service address?" {
		t.Fatalf("turn 3 = %q (%s), want address prompt", res.Reply, res.Action)
	}
	if got := state.SlotValue("phone"); got != "239-555-0144" {
		t.Errorf("phone slot = %q", got)
	}
}

func TestRunTurnShortPhoneSubDialogue(t *testing.T) {
	e := NewEngine(Config{})
	flow := bookingFlow()
	state := models.NewConversationState("sess-7", "tenant-1")
	state.Slots["name"] = &models.Slot{Value: "Dana Whitfield", Source: models.SourceUtterance, Confirmed: true}
	state.PreconfirmDone = true
	state.CurrentStepID = "s_phone"
	state.AskCount["s_phone"] = 1

	res := runTurn(t, e, flow, state, "555-0144")
	if res.Action != models.ActionCollectDetails || !strings.Contains(res.Reply, "area code") {
		t.Fatalf("short phone gave %q (%s), want area code question", res.Reply, res.Action)
	}

	res = runTurn(t, e, flow, state, "it's 239")
	if res.Action != models.ActionCollect || res.Reply != "What's the service address?" {
		t.Fatalf("post-repair turn = %q (%s), want address prompt", res.Reply, res.Action)
	}
	if got := state.SlotValue("phone"); got != "(239) 555-0144" {
		t.Errorf("assembled phone = %q", got)
	}
}

func TestRunTurnTerminalCheckRewindsCorruptedSlot(t *testing.T) {
	e := NewEngine(Config{})
	flow := bookingFlow()
	state := models.NewConversationState("sess-8", "tenant-1")
	state.PreconfirmDone = true
	state.Slots["name"] = &models.Slot{Value: "Dana Whitfield", Source: models.SourceUtterance, Confirmed: true}
	state.Slots["phone"] = &models.Slot{Value: "(239) 555-0144", Source: models.SourceUtterance, Confirmed: true}
	state.Slots["address"] = &models.Slot{Value: "12155 Metro Parkway, Austin, TX", Source: models.SourceUtterance, Confirmed: true}
	// Corrupted upstream of the firewall: an address stored as the time window.
	state.Slots["time"] = &models.Slot{Value: "12155 Metro Parkway", Source: models.SourcePreExtracted, Confirmed: true}

	res := runTurn(t, e, flow, state, "")
	if res.IsComplete {
		t.Fatal("booking completed with an address in the time slot")
	}
	if res.Action != models.ActionCollect || res.Reply != "When works best for you?" {
		t.Fatalf("rewind turn = %q (%s), want time re-collection", res.Reply, res.Action)
	}
	if state.Slot("time") != nil {
		t.Error("corrupted time slot should be cleared")
	}
	if state.CurrentStepID != "s_time" {
		t.Errorf("currentStepID = %q, want s_time", state.CurrentStepID)
	}

	res = runTurn(t, e, flow, state, "Friday afternoon")
	if !res.IsComplete {
		t.Fatalf("recollected time did not complete: %q (%s)", res.Reply, res.Action)
	}
	if res.Booking.TimeWindow != "Friday afternoon" {
		t.Errorf("booking time = %q", res.Booking.TimeWindow)
	}
}

func TestRunTurnTerminalRewindOnHostBuiltState(t *testing.T) {
	// A host may hand over a deserialized state whose maps were never
	// initialized; the rewind path must not panic on a nil ask counter.
	e := NewEngine(Config{})
	flow := bookingFlow()
	state := &models.ConversationState{
		SessionID:      "sess-14",
		TenantID:       "tenant-1",
		PreconfirmDone: true,
		Slots: map[string]*models.Slot{
			"name":    {Value: "Dana Whitfield", Source: models.SourceUtterance, Confirmed: true},
			"phone":   {Value: "(239) 555-0144", Source: models.SourceUtterance, Confirmed: true},
			"address": {Value: "12155 Metro Parkway, Austin, TX", Source: models.SourceUtterance, Confirmed: true},
			"time":    {Value: "12155 Metro Parkway", Source: models.SourcePreExtracted, Confirmed: true},
		},
	}

	res := runTurn(t, e, flow, state, "")
	if res.Action != models.ActionCollect || res.Reply != "When works best for you?" {
		t.Fatalf("rewind turn = %q (%s), want time re-collection", res.Reply, res.Action)
	}
	if got := state.AskCount["s_time"]; got != 1 {
		t.Errorf("ask count after rewind = %d, want 1", got)
	}
}

func TestRunTurnStepGateBlocksPreExtractedCrossWrite(t *testing.T) {
	e := NewEngine(Config{})
	flow := bookingFlow()
	state := models.NewConversationState("sess-9", "tenant-1")
	state.PreconfirmDone = true
	state.Slots["name"] = &models.Slot{Value: "Dana Whitfield", Source: models.SourceUtterance, Confirmed: true}
	state.Slots["phone"] = &models.Slot{Value: "(239) 555-0144", Source: models.SourceUtterance, Confirmed: true}
	state.CurrentStepID = "s_address"
	state.AskCount["s_address"] = 1

	runTurn(t, e, flow, state, "42 Oak Street, Austin, TX")
	if got := state.SlotValue("address"); got != "42 Oak Street, Austin, TX" {
		t.Fatalf("address = %q", got)
	}

	// The time step is now open; a stray extraction for the name field
	// must bounce off the step gate.
	_, err := e.RunTurn(context.Background(), flow, state, TurnInput{
		Utterance: "",
		PreExtracted: []models.PreExtractedValue{
			{FieldKey: "name", Value: "Oak Street", Confidence: 0.9, Source: models.SourcePreExtracted},
		},
	})
	if err != nil {
		t.Fatalf("RunTurn error: %v", err)
	}
	if got := state.SlotValue("name"); got != "Dana Whitfield" {
		t.Errorf("name = %q, step gate let a cross-field extraction through", got)
	}
}

func TestRunTurnUnconfiguredFlowFailsClosed(t *testing.T) {
	e := NewEngine(Config{})
	state := models.NewConversationState("sess-10", "tenant-x")

	res, err := e.RunTurn(context.Background(), UnconfiguredFlow("tenant-x"), state, TurnInput{Utterance: "hi"})
	if err != nil {
		t.Fatalf("RunTurn error: %v", err)
	}
	if res.Action != models.ActionEscalate {
		t.Fatalf("action = %s, want ESCALATE for unconfigured tenant", res.Action)
	}
	if !state.Escalated {
		t.Error("state not marked escalated")
	}
}

func TestRunTurnConfirmationDenialRecollects(t *testing.T) {
	e := NewEngine(Config{})
	flow := bookingFlow()
	state := models.NewConversationState("sess-11", "tenant-1")
	state.PreconfirmDone = true
	state.CurrentStepID = "s_name"
	state.AskCount["s_name"] = 1
	state.PendingConfirmation = &models.PendingConfirmation{StepID: "s_name", FieldKey: "name", Value: "Dana Whitfield"}
	state.Slots["name"] = &models.Slot{Value: "Dana Whitfield", Source: models.SourcePreExtracted, Confidence: 0.7}

	res := runTurn(t, e, flow, state, "no")
	if res.Action != models.ActionCollect || res.Reply != "Can I get your name?" {
		t.Fatalf("denied confirmation gave %q (%s), want re-collection", res.Reply, res.Action)
	}
	if state.Slot("name") != nil {
		t.Error("denied value should be cleared")
	}
}

type fakeGeocoder struct {
	calls   []string
	results []GeocodeResult
}

func (g *fakeGeocoder) Validate(ctx context.Context, rawAddress string, opts GeocodeOptions) GeocodeResult {
	g.calls = append(g.calls, rawAddress)
	res := g.results[0]
	if len(g.results) > 1 {
		g.results = g.results[1:]
	}
	return res
}

func TestRunTurnGeocodedAddressWithUnit(t *testing.T) {
	geo := &fakeGeocoder{results: []GeocodeResult{
		{Success: true, Validated: true, Confidence: GeocodeConfidenceHigh,
			FormattedAddress: "12155 Metro Pkwy Unit 4B, Austin, TX 78758", PlaceID: "plc_1"},
	}}
	e := NewEngine(Config{}, WithCollaborators(Collaborators{Geocoder: geo}))
	flow := bookingFlow()
	flow.Steps[2].Options = &models.StepOptions{GeocodeEnabled: true, CollectUnit: true}
	state := models.NewConversationState("sess-12", "tenant-1")
	state.Slots["name"] = &models.Slot{Value: "Dana Whitfield", Source: models.SourceUtterance, Confirmed: true}
	state.Slots["phone"] = &models.Slot{Value: "(239) 555-0144", Source: models.SourceUtterance, Confirmed: true}
	state.PreconfirmDone = true
	state.CurrentStepID = "s_address"
	state.AskCount["s_address"] = 1

	res := runTurn(t, e, flow, state, "12155 Metro Parkway")
	if res.Action != models.ActionCollectDetails || !strings.Contains(res.Reply, "city and state") {
		t.Fatalf("street turn = %q (%s), want city/state question", res.Reply, res.Action)
	}

	res = runTurn(t, e, flow, state, "Austin, TX")
	if res.Action != models.ActionCollectDetails || !strings.Contains(res.Reply, "unit") {
		t.Fatalf("city/state turn = %q (%s), want unit question", res.Reply, res.Action)
	}

	res = runTurn(t, e, flow, state, "4B")
	if res.Action != models.ActionCollect || res.Reply != "When works best for you?" {
		t.Fatalf("unit turn = %q (%s), want time prompt after assembly", res.Reply, res.Action)
	}

	if got := state.SlotValue("address"); got != "12155 Metro Pkwy Unit 4B, Austin, TX 78758" {
		t.Errorf("address = %q, want the geocoder's formatted address", got)
	}
	if got := state.SlotValue("place_id"); got != "plc_1" {
		t.Errorf("place_id = %q, want plc_1", got)
	}
	if len(geo.calls) != 1 || !strings.Contains(geo.calls[0], "Unit 4B") {
		t.Errorf("geocoder calls = %v, want one call carrying the unit", geo.calls)
	}
}
