package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studycircle-backend/internal/middleware"
	"studycircle-backend/internal/presence"
)

// PresenceHandler is the REST surface over the tracker, used by
// clients that are not holding a live socket.
type PresenceHandler struct {
	tracker *presence.Tracker
}

func NewPresenceHandler(tracker *presence.Tracker) *PresenceHandler {
	return &PresenceHandler{tracker: tracker}
}

func (h *PresenceHandler) Enter(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())

	m, err := h.tracker.Enter(r.Context(), groupID, userID)
	if err != nil {
		h.presenceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"membership": m,
	})
}

func (h *PresenceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())

	if err := h.tracker.Heartbeat(r.Context(), groupID, userID); err != nil {
		// A missed pulse self-heals on the next one; report failure but
		// nothing for the client to act on.
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to record heartbeat", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Heartbeat recorded"})
}

func (h *PresenceHandler) Exit(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())

	if err := h.tracker.Exit(r.Context(), groupID, userID); err != nil {
		h.presenceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session closed"})
}

func (h *PresenceHandler) Leave(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())

	if err := h.tracker.Leave(r.Context(), groupID, userID); err != nil {
		h.presenceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Left group"})
}

func (h *PresenceHandler) presenceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, presence.ErrNotAMember):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Not a member of this group", r))
	case errors.Is(err, presence.ErrStaleWrite):
		writeJSON(w, http.StatusInternalServerError, errorResp("STALE_WRITE", "Presence update did not apply", r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Presence update failed", r))
	}
}

func groupIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	groupID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid group ID", r))
		return uuid.Nil, false
	}
	return groupID, true
}
