package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"terplink/backend/internal/domain"
	"terplink/backend/internal/service/appointments"
	"terplink/backend/internal/service/cancellation"
)

// AppointmentService edits appointments and routes matching-relevant changes
// through recreation.
type AppointmentService interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Edit(ctx context.Context, id uuid.UUID, in appointments.EditInput) (domain.Appointment, error)
}

// CancellationService is the role-aware cancel surface.
type CancellationService interface {
	CancelAppointment(ctx context.Context, req cancellation.Request) error
	CancelGroupAppointments(ctx context.Context, groupPlatformID string, actor cancellation.Actor, reason string) error
}

type AppointmentHandlers struct {
	appointments AppointmentService
	cancellation CancellationService
}

func NewAppointmentHandlers(appts AppointmentService, cancel CancellationService) *AppointmentHandlers {
	return &AppointmentHandlers{
		appointments: appts,
		cancellation: cancel,
	}
}

func (h *AppointmentHandlers) Routes(r chi.Router) {
	r.Route("/appointments/{appointmentID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.edit)
		r.Post("/cancel", h.cancel)
	})
	r.Post("/appointment-groups/{groupPlatformID}/cancel", h.cancelGroup)
}

type editAppointmentRequest struct {
	ScheduledStartTime *time.Time `json:"scheduled_start_time"`
	ScheduledEndTime   *time.Time `json:"scheduled_end_time"`
	Address            *string    `json:"address"`
	LanguageFrom       *string    `json:"language_from"`
	LanguageTo         *string    `json:"language_to"`
	Topic              *string    `json:"topic"`
	GenderPreference   *string    `json:"gender_preference"`
}

type cancelAppointmentRequest struct {
	Actor      string `json:"actor"`
	UserID     string `json:"user_id"`
	OnBehalfOf string `json:"on_behalf_of"`
	Reason     string `json:"reason"`
}

type appointmentResponse struct {
	ID                 string  `json:"id"`
	Status             string  `json:"status"`
	SchedulingType     string  `json:"scheduling_type"`
	CommunicationType  string  `json:"communication_type"`
	ScheduledStartTime string  `json:"scheduled_start_time"`
	ScheduledEndTime   string  `json:"scheduled_end_time"`
	ClientID           string  `json:"client_id"`
	InterpreterID      *string `json:"interpreter_id,omitempty"`
	GroupPlatformID    *string `json:"group_platform_id,omitempty"`
	LanguageFrom       string  `json:"language_from"`
	LanguageTo         string  `json:"language_to"`
	Topic              string  `json:"topic,omitempty"`
	GenderPreference   string  `json:"gender_preference,omitempty"`
	Address            string  `json:"address,omitempty"`
}

func newAppointmentResponse(a domain.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:                 a.ID.String(),
		Status:             string(a.Status),
		SchedulingType:     string(a.SchedulingType),
		CommunicationType:  string(a.CommunicationType),
		ScheduledStartTime: a.ScheduledStartTime.UTC().Format(time.RFC3339),
		ScheduledEndTime:   a.ScheduledEndTime.UTC().Format(time.RFC3339),
		ClientID:           a.ClientID,
		InterpreterID:      a.InterpreterID,
		GroupPlatformID:    a.AppointmentsGroupID,
		LanguageFrom:       a.LanguageFrom,
		LanguageTo:         a.LanguageTo,
		Topic:              a.Topic,
		GenderPreference:   a.GenderPreference,
		Address:            a.Address,
	}
}

func (h *AppointmentHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "appointmentID")
	if !ok {
		return
	}
	appt, err := h.appointments.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
}

func (h *AppointmentHandlers) edit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "appointmentID")
	if !ok {
		return
	}
	var req editAppointmentRequest
	body := http.MaxBytesReader(w, r.Body, maxCommandBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Error:   "invalid_request",
			Message: "request body must be valid JSON",
			Status:  http.StatusBadRequest,
		})
		return
	}

	updated, err := h.appointments.Edit(r.Context(), id, appointments.EditInput{
		ScheduledStartTime: req.ScheduledStartTime,
		ScheduledEndTime:   req.ScheduledEndTime,
		Address:            req.Address,
		LanguageFrom:       req.LanguageFrom,
		LanguageTo:         req.LanguageTo,
		Topic:              req.Topic,
		GenderPreference:   req.GenderPreference,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentResponse(updated))
}

func (h *AppointmentHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "appointmentID")
	if !ok {
		return
	}
	actor, reason, ok := decodeCancelActor(w, r)
	if !ok {
		return
	}
	err := h.cancellation.CancelAppointment(r.Context(), cancellation.Request{
		AppointmentID: id,
		Actor:         actor,
		Reason:        reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *AppointmentHandlers) cancelGroup(w http.ResponseWriter, r *http.Request) {
	groupPlatformID := chi.URLParam(r, "groupPlatformID")
	if strings.TrimSpace(groupPlatformID) == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Error:   "invalid_request",
			Message: "groupPlatformID is required",
			Status:  http.StatusBadRequest,
		})
		return
	}
	actor, reason, ok := decodeCancelActor(w, r)
	if !ok {
		return
	}
	if err := h.cancellation.CancelGroupAppointments(r.Context(), groupPlatformID, actor, reason); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func decodeCancelActor(w http.ResponseWriter, r *http.Request) (cancellation.Actor, string, bool) {
	var req cancelAppointmentRequest
	body := http.MaxBytesReader(w, r.Body, maxCommandBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Error:   "invalid_request",
			Message: "request body must be valid JSON",
			Status:  http.StatusBadRequest,
		})
		return cancellation.Actor{}, "", false
	}

	party, ok := parseCancelParty(req.Actor)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Error:   "invalid_request",
			Message: "actor must be one of client, interpreter, admin",
			Status:  http.StatusBadRequest,
		})
		return cancellation.Actor{}, "", false
	}

	actor := cancellation.Actor{Party: party, UserID: req.UserID}
	if req.OnBehalfOf != "" {
		onBehalf, ok := parseCancelParty(req.OnBehalfOf)
		if !ok || party != domain.CancelPartyAdmin {
			writeJSON(w, http.StatusBadRequest, errorPayload{
				Error:   "invalid_request",
				Message: "on_behalf_of is only valid for admin actors",
				Status:  http.StatusBadRequest,
			})
			return cancellation.Actor{}, "", false
		}
		actor.OnBehalfOf = onBehalf
	}
	return actor, req.Reason, true
}

// parseCancelParty accepts the externally usable parties. The system party is
// internal to conflict cascades and never accepted over HTTP.
func parseCancelParty(raw string) (domain.CancelParty, bool) {
	switch domain.CancelParty(raw) {
	case domain.CancelPartyClient:
		return domain.CancelPartyClient, true
	case domain.CancelPartyInterpreter:
		return domain.CancelPartyInterpreter, true
	case domain.CancelPartyAdmin:
		return domain.CancelPartyAdmin, true
	}
	return "", false
}
