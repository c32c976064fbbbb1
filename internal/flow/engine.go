// Package flow implements the booking dialogue engine: deciding what to ask
// next, guarding slot writes through the firewall, and driving confirmations,
// sub-dialogues and the final booking hand-off.
package flow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/voicelane/bookline/internal/models"
	"github.com/voicelane/bookline/internal/slots"
	"github.com/voicelane/bookline/internal/util"
)

const (
	// DefaultAutoConfirmThreshold is the utterance confidence at or above
	// which a freshly heard value is accepted without an explicit
	// confirmation question.
	DefaultAutoConfirmThreshold = 0.85

	// DefaultMaxAttempts is how many times a single step is asked before
	// the call is escalated to a human.
	DefaultMaxAttempts = 3

	callerIDConfidence  = 0.6
	utteranceConfidence = 0.9
	assembledConfidence = 0.95
)

const escalationReply = "Let me get you over to one of our team members who can finish setting this up. One moment please."

// Config carries the tunable knobs of the engine. Zero values are replaced
// with the package defaults.
type Config struct {
	AutoConfirmThreshold float64
	MaxAttempts          int
	ExtraStopWords       []string
}

// Engine runs booking dialogue turns. It is stateless across calls; all
// per-conversation data lives in models.ConversationState, so a single Engine
// is safe for concurrent use across sessions and tenants.
type Engine struct {
	cfg       Config
	collab    Collaborators
	stopCache *slots.StopWordCache
}

// Option configures an Engine.
type Option func(*Engine)

// WithCollaborators sets the external collaborators (geocoder, calendar,
// notifier). Any of them may be nil; the engine degrades gracefully.
func WithCollaborators(c Collaborators) Option {
	return func(e *Engine) { e.collab = c }
}

// NewEngine creates a dialogue engine with the given configuration.
func NewEngine(cfg Config, opts ...Option) *Engine {
	if cfg.AutoConfirmThreshold <= 0 {
		cfg.AutoConfirmThreshold = DefaultAutoConfirmThreshold
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	e := &Engine{
		cfg:       cfg,
		stopCache: slots.NewStopWordCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TurnInput is one caller turn as delivered by the transport layer.
type TurnInput struct {
	Utterance    string
	CallerID     string
	PreExtracted []models.PreExtractedValue
}

// TurnResult is the engine's reply for one turn.
type TurnResult struct {
	Reply      string
	Action     models.TurnAction
	IsComplete bool
	Booking    *models.Booking
}

// RunTurn processes a single caller turn against the tenant's flow and the
// conversation state, mutating the state in place. It never panics on bad
// input; configuration problems surface as an escalation result rather than
// an error so the caller always has something to say.
func (e *Engine) RunTurn(ctx context.Context, flowDef *models.Flow, state *models.ConversationState, input TurnInput) (TurnResult, error) {
	if state == nil {
		return TurnResult{}, models.ErrEmptySessionID
	}
	if flowDef == nil || flowDef.Unconfigured || len(flowDef.Steps) == 0 {
		slog.Warn("Engine.RunTurn: flow unconfigured, escalating", "tenantID", state.TenantID, "sessionID", state.SessionID)
		state.Escalated = true
		return TurnResult{Reply: escalationReply, Action: models.ActionEscalate}, nil
	}

	fw := slots.NewFirewall(slots.Config{
		TenantID:       state.TenantID,
		ExtraStopWords: e.cfg.ExtraStopWords,
	}, e.stopCache)

	e.seedCallerID(flowDef, state, input.CallerID, fw)
	e.mergePreExtracted(flowDef, state, input.PreExtracted, fw)

	if state.Escalated {
		return TurnResult{Reply: escalationReply, Action: models.ActionEscalate}, nil
	}

	utterance := strings.TrimSpace(input.Utterance)

	// A pending question owns the utterance. Handlers return a result when
	// the turn ends there, or nil to fall through into the decision loop
	// with the utterance consumed.
	consumed := false
	if state.PendingPreconfirm != nil {
		consumed = true
		if res := e.handlePreconfirmResponse(ctx, fw, flowDef, state, utterance); res != nil {
			return *res, nil
		}
	} else if state.PendingSpellingConfirm != nil {
		consumed = true
		if res := e.handleSpellingResponse(fw, flowDef, state, utterance); res != nil {
			return *res, nil
		}
	} else if state.PendingConfirmation != nil {
		consumed = true
		if res := e.handleConfirmationResponse(fw, flowDef, state, utterance); res != nil {
			return *res, nil
		}
	} else if state.SubDialogue != nil {
		consumed = true
		if res := e.handleSubDialogueTurn(ctx, fw, flowDef, state, utterance); res != nil {
			return *res, nil
		}
	}

	// Externally sourced values get a spoken confirmation pass before the
	// normal collection loop starts asking questions.
	if !state.PreconfirmDone {
		if res := e.nextPreconfirm(flowDef, state); res != nil {
			return *res, nil
		}
		state.PreconfirmDone = true
	}

	if !consumed {
		if res := e.applyUtterance(fw, flowDef, state, utterance); res != nil {
			return *res, nil
		}
	}

	return e.decide(ctx, fw, flowDef, state)
}

// seedCallerID offers the caller's line as a low-confidence phone value when
// the flow collects a phone and nothing is there yet.
func (e *Engine) seedCallerID(flowDef *models.Flow, state *models.ConversationState, callerID string, fw *slots.Firewall) {
	if callerID == "" {
		return
	}
	step := flowDef.StepByField("phone")
	if step == nil || state.Slot(step.FieldKey) != nil {
		return
	}
	digits := slots.DigitsOf(callerID)
	if len(digits) < 10 {
		return
	}
	outcome := fw.SetSlot(state, flowDef, step.FieldKey, FormatPhone(digits), slots.WriteOptions{
		Source:         models.SourceCallerID,
		Confidence:     callerIDConfidence,
		BypassStepGate: true,
	})
	if !outcome.Valid {
		slog.Debug("Engine.seedCallerID: caller ID rejected", "reason", outcome.Reason, "sessionID", state.SessionID)
	}
}

// mergePreExtracted writes values produced by upstream extraction (e.g. an
// IVR or speech pipeline) through the firewall. Step gating stays on so a
// phrase heard during the address step cannot overwrite the name.
func (e *Engine) mergePreExtracted(flowDef *models.Flow, state *models.ConversationState, values []models.PreExtractedValue, fw *slots.Firewall) {
	for _, v := range values {
		src := v.Source
		if !models.IsValidSlotSource(src) {
			src = models.SourcePreExtracted
		}
		outcome := fw.SetSlot(state, flowDef, v.FieldKey, v.Value, slots.WriteOptions{
			Source:     src,
			Confidence: v.Confidence,
		})
		if !outcome.Valid {
			slog.Debug("Engine.mergePreExtracted: value rejected",
				"fieldKey", v.FieldKey, "reason", outcome.Reason, "check", outcome.RejectedBy, "sessionID", state.SessionID)
		}
	}
}

// applyUtterance writes the caller's words into the currently open step, or
// re-prompts on silence. Returns a result only when the turn ends here.
func (e *Engine) applyUtterance(fw *slots.Firewall, flowDef *models.Flow, state *models.ConversationState, utterance string) *TurnResult {
	step := e.currentStep(flowDef, state)
	if utterance == "" {
		if step == nil {
			return nil // fresh call: fall through and ask the first question
		}
		return e.reprompt(flowDef, state, *step)
	}
	if step == nil {
		return nil
	}
	if slot := state.Slot(step.FieldKey); slot != nil && slot.Confirmed {
		// Stale CurrentStepID after a confirmation; let the decision
		// loop move the conversation forward.
		return nil
	}

	outcome := fw.SetSlot(state, flowDef, step.FieldKey, extractFieldValue(step.Type, utterance), slots.WriteOptions{
		Source:     models.SourceUtterance,
		Confidence: utteranceConfidence,
	})
	if !outcome.Valid {
		slog.Info("Engine.applyUtterance: utterance rejected",
			"fieldKey", step.FieldKey, "reason", outcome.Reason, "check", outcome.RejectedBy, "sessionID", state.SessionID)
		return e.reprompt(flowDef, state, *step)
	}
	return nil
}

// reprompt re-asks the open step, escalating once its attempt budget is
// spent. Repeating a silent turn yields the same prompt again.
func (e *Engine) reprompt(flowDef *models.Flow, state *models.ConversationState, step models.Step) *TurnResult {
	n := state.IncrementAskCount(step.ID)
	if n > e.maxAttempts(step) {
		return e.escalate(state, step.ID)
	}
	return &TurnResult{Reply: collectPrompt(step, n), Action: models.ActionCollect}
}

func (e *Engine) maxAttempts(step models.Step) int {
	if step.Validation != nil && step.Validation.MaxAttempts > 0 {
		return step.Validation.MaxAttempts
	}
	return e.cfg.MaxAttempts
}

func (e *Engine) escalate(state *models.ConversationState, stepID string) *TurnResult {
	slog.Info("Engine.escalate: attempt budget exhausted", "stepID", stepID, "sessionID", state.SessionID, "tenantID", state.TenantID)
	state.Escalated = true
	state.PendingConfirmation = nil
	state.PendingPreconfirm = nil
	state.PendingSpellingConfirm = nil
	state.SubDialogue = nil
	return &TurnResult{Reply: escalationReply, Action: models.ActionEscalate}
}

func (e *Engine) currentStep(flowDef *models.Flow, state *models.ConversationState) *models.Step {
	if state.CurrentStepID == "" {
		return nil
	}
	return flowDef.StepByID(state.CurrentStepID)
}

// decide runs the forward-only decision procedure and turns its verdict into
// a spoken reply, looping when an action resolves without caller input.
func (e *Engine) decide(ctx context.Context, fw *slots.Firewall, flowDef *models.Flow, state *models.ConversationState) (TurnResult, error) {
	for {
		act := e.NextAction(flowDef, state)
		if act == nil {
			return e.finishOrRewind(ctx, fw, flowDef, state), nil
		}

		switch act.Mode {
		case ModeCollect:
			state.CurrentStepID = act.Step.ID
			n := state.IncrementAskCount(act.Step.ID)
			if n > e.maxAttempts(act.Step) {
				return *e.escalate(state, act.Step.ID), nil
			}
			prompt := collectPrompt(act.Step, n)
			if act.Step.Type == models.FieldTypeTime {
				prompt = e.timePromptWithAvailability(ctx, state.TenantID, act.Step, prompt)
			}
			return TurnResult{Reply: prompt, Action: models.ActionCollect}, nil

		case ModeConfirm:
			state.CurrentStepID = act.Step.ID
			value := state.SlotValue(act.Step.FieldKey)
			state.PendingConfirmation = &models.PendingConfirmation{
				StepID:   act.Step.ID,
				FieldKey: act.Step.FieldKey,
				Value:    value,
			}
			return TurnResult{Reply: confirmPrompt(act.Step, value), Action: models.ActionConfirm}, nil

		case ModeCollectDetails:
			state.CurrentStepID = act.Step.ID
			if res := e.startDetailDialogue(state, act.Step, act.Reason); res != nil {
				return *res, nil
			}
			// The detail resolved from state already on hand; pick the
			// next action.
			continue

		default:
			slog.Error("Engine.decide: unknown decision mode", "mode", act.Mode, "sessionID", state.SessionID)
			return *e.escalate(state, act.Step.ID), nil
		}
	}
}

// startDetailDialogue opens the sub-dialogue matching the detail reason.
func (e *Engine) startDetailDialogue(state *models.ConversationState, step models.Step, reason models.DetailReason) *TurnResult {
	switch reason {
	case models.DetailReasonSpelling:
		return e.startSpellingConfirm(state, step)
	case models.DetailReasonMissingLastName:
		return e.startMissingPart(state, step)
	case models.DetailReasonShortPhone:
		return e.startPhoneSubDialogue(state, step)
	case models.DetailReasonIncompleteAddress:
		return e.startAddressSubDialogue(state, step)
	}
	slog.Error("Engine.startDetailDialogue: unknown detail reason", "reason", reason, "stepID", step.ID)
	return e.escalate(state, step.ID)
}

// timePromptWithAvailability folds real availability into the time question
// when the calendar collaborator is configured and answers in time.
func (e *Engine) timePromptWithAvailability(ctx context.Context, tenantID string, step models.Step, base string) string {
	if e.collab.Calendar == nil {
		return base
	}
	serviceType := ""
	if step.Options != nil {
		serviceType = step.Options.ServiceType
	}
	res := e.collab.Calendar.FindAvailableSlots(ctx, tenantID, time.Now(), serviceType)
	if res.Fallback || len(res.Slots) == 0 {
		if res.Reason != "" {
			slog.Debug("Engine.timePromptWithAvailability: calendar fallback", "reason", res.Reason, "tenantID", tenantID)
		}
		return base
	}
	labels := make([]string, 0, 3)
	for i, s := range res.Slots {
		if i == 3 {
			break
		}
		labels = append(labels, s.Label)
	}
	return base + " We have " + joinNatural(labels) + " open."
}

func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " or " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", or " + items[len(items)-1]
}

// newBookingID returns an identifier for a finished booking.
func newBookingID() string {
	return util.GenerateBookingID()
}
