package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxCommandBodySize = 16 * 1024

// OrderCommands is the interpreter-facing command surface exposed over HTTP.
type OrderCommands interface {
	Accept(ctx context.Context, orderID uuid.UUID, interpreterID string, ignoreConflicts bool) error
	AcceptGroup(ctx context.Context, groupID uuid.UUID, interpreterID string, ignoreConflicts bool) error
	RejectOrder(ctx context.Context, orderID uuid.UUID, interpreterID string) error
	RejectGroup(ctx context.Context, groupID uuid.UUID, interpreterID string) error
	RefuseOrder(ctx context.Context, orderID uuid.UUID, interpreterID string) error
	RefuseGroup(ctx context.Context, groupID uuid.UUID, interpreterID string) error
	AddInterpreter(ctx context.Context, orderID uuid.UUID, interpreterID string) error
	AddInterpreterToGroup(ctx context.Context, groupID uuid.UUID, interpreterID string) error
	RepeatNotification(ctx context.Context, orderID uuid.UUID) error
	RepeatGroupNotification(ctx context.Context, groupID uuid.UUID) error
}

type OrderHandlers struct {
	commands OrderCommands
}

func NewOrderHandlers(commands OrderCommands) *OrderHandlers {
	return &OrderHandlers{commands: commands}
}

// Routes registers the /orders and /order-groups command endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Route("/orders/{orderID}", func(r chi.Router) {
		r.Post("/accept", h.accept)
		r.Post("/reject", h.reject)
		r.Post("/refuse", h.refuse)
		r.Post("/interpreters", h.addInterpreter)
		r.Post("/notifications/repeat", h.repeat)
	})
	r.Route("/order-groups/{groupID}", func(r chi.Router) {
		r.Post("/accept", h.acceptGroup)
		r.Post("/reject", h.rejectGroup)
		r.Post("/refuse", h.refuseGroup)
		r.Post("/interpreters", h.addInterpreterToGroup)
		r.Post("/notifications/repeat", h.repeatGroup)
	})
}

type interpreterCommandRequest struct {
	InterpreterID   string `json:"interpreter_id"`
	IgnoreConflicts bool   `json:"ignore_conflicts"`
}

func decodeInterpreterCommand(w http.ResponseWriter, r *http.Request) (interpreterCommandRequest, bool) {
	var req interpreterCommandRequest
	body := http.MaxBytesReader(w, r.Body, maxCommandBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Error:   "invalid_request",
			Message: "request body must be valid JSON",
			Status:  http.StatusBadRequest,
		})
		return req, false
	}
	if strings.TrimSpace(req.InterpreterID) == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Error:   "invalid_request",
			Message: "interpreter_id is required",
			Status:  http.StatusBadRequest,
		})
		return req, false
	}
	return req, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Error:   "invalid_request",
			Message: name + " must be a UUID",
			Status:  http.StatusBadRequest,
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *OrderHandlers) accept(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "orderID")
	if !ok {
		return
	}
	req, ok := decodeInterpreterCommand(w, r)
	if !ok {
		return
	}
	if err := h.commands.Accept(r.Context(), orderID, req.InterpreterID, req.IgnoreConflicts); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (h *OrderHandlers) acceptGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}
	req, ok := decodeInterpreterCommand(w, r)
	if !ok {
		return
	}
	if err := h.commands.AcceptGroup(r.Context(), groupID, req.InterpreterID, req.IgnoreConflicts); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (h *OrderHandlers) reject(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "orderID")
	if !ok {
		return
	}
	req, ok := decodeInterpreterCommand(w, r)
	if !ok {
		return
	}
	if err := h.commands.RejectOrder(r.Context(), orderID, req.InterpreterID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (h *OrderHandlers) rejectGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}
	req, ok := decodeInterpreterCommand(w, r)
	if !ok {
		return
	}
	if err := h.commands.RejectGroup(r.Context(), groupID, req.InterpreterID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (h *OrderHandlers) refuse(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "orderID")
	if !ok {
		return
	}
	req, ok := decodeInterpreterCommand(w, r)
	if !ok {
		return
	}
	if err := h.commands.RefuseOrder(r.Context(), orderID, req.InterpreterID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refused"})
}

func (h *OrderHandlers) refuseGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}
	req, ok := decodeInterpreterCommand(w, r)
	if !ok {
		return
	}
	if err := h.commands.RefuseGroup(r.Context(), groupID, req.InterpreterID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refused"})
}

func (h *OrderHandlers) addInterpreter(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "orderID")
	if !ok {
		return
	}
	req, ok := decodeInterpreterCommand(w, r)
	if !ok {
		return
	}
	if err := h.commands.AddInterpreter(r.Context(), orderID, req.InterpreterID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invited"})
}

func (h *OrderHandlers) addInterpreterToGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}
	req, ok := decodeInterpreterCommand(w, r)
	if !ok {
		return
	}
	if err := h.commands.AddInterpreterToGroup(r.Context(), groupID, req.InterpreterID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invited"})
}

func (h *OrderHandlers) repeat(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "orderID")
	if !ok {
		return
	}
	if err := h.commands.RepeatNotification(r.Context(), orderID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "notified"})
}

func (h *OrderHandlers) repeatGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}
	if err := h.commands.RepeatGroupNotification(r.Context(), groupID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "notified"})
}
