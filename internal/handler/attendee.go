package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/eventhub/internal/attendance"
	"github.com/dukerupert/eventhub/internal/auth"
	"github.com/dukerupert/eventhub/internal/websocket"
)

type AttendeeHandler struct {
	registry *attendance.Registry
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewAttendeeHandler(registry *attendance.Registry, hub *websocket.Hub, logger *slog.Logger) *AttendeeHandler {
	return &AttendeeHandler{registry: registry, hub: hub, logger: logger}
}

func (h *AttendeeHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// List handles GET /api/events/{id}/attendees. Authentication is optional;
// it widens what the requester may see.
func (h *AttendeeHandler) List(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	attendees, err := h.registry.ListAttendees(r.Context(), eventID, auth.RequesterID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, attendees)
}

func (h *AttendeeHandler) Register(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	userID := auth.UserID(r.Context())
	a, err := h.registry.Register(r.Context(), eventID, userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.broadcast(websocket.NewMessage("attendee", "registered", eventID, map[string]any{
		"user_id": userID,
		"status":  a.Status.String(),
	}))
	writeJSON(w, http.StatusCreated, a)
}

func (h *AttendeeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	userID := auth.UserID(r.Context())
	if err := h.registry.Cancel(r.Context(), eventID, userID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.broadcast(websocket.NewMessage("attendee", "cancelled", eventID, map[string]any{"user_id": userID}))
	w.WriteHeader(http.StatusOK)
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ChangeStatus handles PATCH /api/events/{eventId}/attendees/{userId}.
func (h *AttendeeHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r, "eventId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	targetID, err := parseIDParam(r, "userId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	status, err := h.registry.ChangeStatusByName(r.Context(), eventID, targetID, auth.UserID(r.Context()), req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.broadcast(websocket.NewMessage("attendee", "status_changed", eventID, map[string]any{
		"user_id": targetID,
		"status":  status.String(),
	}))
	w.WriteHeader(http.StatusOK)
}
