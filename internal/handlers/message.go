package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"studycircle-backend/internal/chat"
	"studycircle-backend/internal/middleware"
	"studycircle-backend/internal/models"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

type MessageHandler struct {
	bus *chat.Bus
}

func NewMessageHandler(bus *chat.Bus) *MessageHandler {
	return &MessageHandler{bus: bus}
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Message text is required", r))
		return
	}

	msg, err := h.bus.Send(r.Context(), groupID, userID, req.Text)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to send message", r))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": msg,
	})
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}

	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "limit must be a positive integer", r))
			return
		}
		limit = n
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	views, err := h.bus.GroupMessages(r.Context(), groupID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load messages", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": views,
	})
}
