package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"terplink/backend/internal/domain"
	"terplink/backend/internal/service/appointments"
	"terplink/backend/internal/service/orders"
	"terplink/backend/internal/store"
)

type errorPayload struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`

	Conflicts *conflictPayload `json:"conflicts,omitempty"`
}

type conflictPayload struct {
	Appointments []conflictAppointment `json:"appointments"`
	GroupIDs     []string              `json:"group_ids"`
}

type conflictAppointment struct {
	ID                 string `json:"id"`
	ScheduledStartTime string `json:"scheduled_start_time"`
	ScheduledEndTime   string `json:"scheduled_end_time"`
	InGroup            bool   `json:"in_group"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps service errors onto the JSON error envelope. A blocked
// accept carries the full conflict list so the caller can retry with
// ignore_conflicts.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	payload := errorPayload{
		Error:     "internal",
		Message:   "internal server error",
		Status:    http.StatusInternalServerError,
		RequestID: middleware.GetReqID(r.Context()),
	}

	var blocked *orders.ConflictBlockedError
	var validation *appointments.ValidationError
	switch {
	case errors.As(err, &blocked):
		payload.Error = "conflict_blocked"
		payload.Message = blocked.Error()
		payload.Status = http.StatusConflict
		payload.Conflicts = newConflictPayload(blocked.Conflicts)
	case errors.As(err, &validation):
		payload.Error = "invalid_request"
		payload.Message = validation.Error()
		payload.Status = http.StatusBadRequest
	case errors.Is(err, orders.ErrPaymentDeclined):
		payload.Error = "payment_declined"
		payload.Message = err.Error()
		payload.Status = http.StatusPaymentRequired
	case errors.Is(err, store.ErrNotFound):
		payload.Error = "not_found"
		payload.Message = err.Error()
		payload.Status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalidState), errors.Is(err, store.ErrConflict):
		payload.Error = "invalid_state"
		payload.Message = err.Error()
		payload.Status = http.StatusConflict
	}

	writeJSON(w, payload.Status, payload)
}

func newConflictPayload(set domain.ConflictSet) *conflictPayload {
	out := &conflictPayload{
		Appointments: make([]conflictAppointment, 0, len(set.Singles)+len(set.GroupedSingles)),
		GroupIDs:     set.WholeGroupIDs,
	}
	if out.GroupIDs == nil {
		out.GroupIDs = []string{}
	}
	for _, a := range set.Singles {
		out.Appointments = append(out.Appointments, newConflictAppointment(a, false))
	}
	for _, a := range set.GroupedSingles {
		out.Appointments = append(out.Appointments, newConflictAppointment(a, true))
	}
	return out
}

func newConflictAppointment(a domain.Appointment, inGroup bool) conflictAppointment {
	return conflictAppointment{
		ID:                 a.ID.String(),
		ScheduledStartTime: a.ScheduledStartTime.UTC().Format(time.RFC3339),
		ScheduledEndTime:   a.ScheduledEndTime.UTC().Format(time.RFC3339),
		InGroup:            inGroup,
	}
}
