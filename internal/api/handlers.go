package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/voicelane/bookline/internal/flow"
	"github.com/voicelane/bookline/internal/models"
	"github.com/voicelane/bookline/internal/store"
)

// nonBookingReply answers fresh sessions whose first utterance carries no
// booking intent; no conversation state is created for them.
const nonBookingReply = "Happy to help. If you'd like to set up an appointment, just let me know and I can get that going for you."

func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Session ID is required"))
		return
	}

	var req models.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.turnHandler: failed to decode JSON", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.turnHandler: invalid turn request", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	// Voice platforms retry webhooks; a replayed message ID must not run a
	// second engine turn.
	messageID := r.Header.Get("X-Message-ID")
	if s.dedup != nil && messageID != "" {
		fresh, err := s.dedup.RecordInbound(messageID, sessionID)
		if err != nil {
			slog.Error("Server.turnHandler: dedup check failed", "error", err, "sessionID", sessionID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to check message"))
			return
		}
		if !fresh {
			slog.Info("Server.turnHandler: duplicate turn ignored", "messageID", messageID, "sessionID", sessionID)
			writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Duplicate turn ignored", nil))
			return
		}
	}

	state, err := s.store.GetConversationState(sessionID)
	if err != nil {
		slog.Error("Server.turnHandler: failed to load state", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if state == nil {
		if s.classifier != nil && req.Utterance != "" {
			res := s.classifier.Classify(r.Context(), req.Utterance)
			if !res.WantsBooking {
				slog.Debug("Server.turnHandler: no booking intent on fresh session", "sessionID", sessionID, "method", res.Method)
				writeJSONResponse(w, http.StatusOK, models.Success(models.TurnResponse{
					SessionID: sessionID,
					Reply:     nonBookingReply,
					Action:    models.ActionContinue,
				}))
				return
			}
		}
		state = models.NewConversationState(sessionID, req.TenantID)
	} else if state.TenantID != req.TenantID {
		slog.Warn("Server.turnHandler: tenant mismatch", "sessionID", sessionID, "stateTenant", state.TenantID, "requestTenant", req.TenantID)
		writeJSONResponse(w, http.StatusConflict, models.Error("Session belongs to another tenant"))
		return
	}

	flowDef, err := s.resolver.Resolve(r.Context(), req.TenantID)
	if err != nil {
		slog.Error("Server.turnHandler: flow resolution failed", "error", err, "tenantID", req.TenantID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to resolve tenant flow"))
		return
	}

	result, err := s.engine.RunTurn(r.Context(), flowDef, state, flow.TurnInput{
		Utterance:    req.Utterance,
		CallerID:     req.CallerID,
		PreExtracted: req.PreExtracted,
	})
	if err != nil {
		slog.Error("Server.turnHandler: engine turn failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process turn"))
		return
	}

	if err := s.store.SaveConversationState(state); err != nil {
		slog.Error("Server.turnHandler: failed to save state", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save session"))
		return
	}

	if result.IsComplete && result.Booking != nil {
		if err := s.store.AddBooking(*result.Booking); err != nil {
			slog.Error("Server.turnHandler: failed to store booking", "error", err, "bookingID", result.Booking.ID)
		}
	}
	if result.Action == models.ActionEscalate {
		s.alertEscalation(req.TenantID, sessionID)
	}

	if s.dedup != nil && messageID != "" {
		if err := s.dedup.MarkProcessed(messageID); err != nil {
			slog.Warn("Server.turnHandler: failed to mark message processed", "error", err, "messageID", messageID)
		}
	}

	writeJSONResponse(w, http.StatusOK, models.Success(models.TurnResponse{
		SessionID:  sessionID,
		Reply:      result.Reply,
		Action:     result.Action,
		IsComplete: result.IsComplete,
		Booking:    result.Booking,
	}))
}

// alertEscalation queues an escalation alert to the tenant's configured
// number. Missing configuration only logs; the caller-facing reply already
// happened.
func (s *Server) alertEscalation(tenantID, sessionID string) {
	if s.notifier == nil {
		return
	}
	cfg, err := s.store.GetTenantConfig(tenantID)
	if err != nil {
		slog.Error("Server.alertEscalation: failed to load tenant config", "error", err, "tenantID", tenantID)
		return
	}
	if cfg == nil || cfg.AlertNumber == "" {
		slog.Debug("Server.alertEscalation: no alert number configured", "tenantID", tenantID)
		return
	}
	if err := s.notifier.EnqueueEscalationAlert(tenantID, sessionID, cfg.AlertNumber, "caller handed off"); err != nil {
		slog.Error("Server.alertEscalation: failed to queue alert", "error", err, "sessionID", sessionID)
	}
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	state, err := s.store.GetConversationState(sessionID)
	if err != nil {
		slog.Error("Server.getSessionHandler: failed to load state", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if state == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(state))
}

func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := s.store.DeleteConversationState(sessionID); err != nil {
		slog.Error("Server.deleteSessionHandler: failed to delete state", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session deleted", nil))
}

func (s *Server) listBookingsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	bookings, err := s.store.ListBookings(tenantID)
	if err != nil {
		slog.Error("Server.listBookingsHandler: failed to list bookings", "error", err, "tenantID", tenantID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list bookings"))
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(bookings))
}

func (s *Server) getBookingHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	booking, err := s.store.GetBooking(id)
	if err != nil {
		slog.Error("Server.getBookingHandler: failed to load booking", "error", err, "bookingID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load booking"))
		return
	}
	if booking == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Booking not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(booking))
}

func (s *Server) updateBookingStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id := r.PathValue("id")

	var body struct {
		Status models.BookingStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	switch body.Status {
	case models.BookingStatusPending, models.BookingStatusConfirmed, models.BookingStatusEscalated:
	default:
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid booking status"))
		return
	}

	if err := s.store.UpdateBookingStatus(id, body.Status); err != nil {
		if errors.Is(err, models.ErrBookingNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Booking not found"))
			return
		}
		slog.Error("Server.updateBookingStatusHandler: update failed", "error", err, "bookingID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update booking"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Booking updated", nil))
}

func (s *Server) putTenantConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	tenantID := r.PathValue("id")

	var cfg store.TenantConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	cfg.TenantID = tenantID
	cfg.Flow.TenantID = tenantID

	if err := s.store.SaveTenantConfig(cfg); err != nil {
		slog.Warn("Server.putTenantConfigHandler: save failed", "error", err, "tenantID", tenantID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	slog.Info("Server.putTenantConfigHandler: tenant config saved", "tenantID", tenantID, "steps", len(cfg.Flow.Steps))
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Tenant config saved", nil))
}

func (s *Server) getTenantConfigHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")
	cfg, err := s.store.GetTenantConfig(tenantID)
	if err != nil {
		slog.Error("Server.getTenantConfigHandler: failed to load config", "error", err, "tenantID", tenantID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load tenant config"))
		return
	}
	if cfg == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Tenant config not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(cfg))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}
