package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studycircle-backend/internal/chat"
	"studycircle-backend/internal/middleware"
	"studycircle-backend/internal/models"
	"studycircle-backend/internal/presence"
	"studycircle-backend/internal/repository"
)

type GroupHandler struct {
	groupRepo       *repository.GroupRepo
	membershipRepo  *repository.MembershipRepo
	userRepo        *repository.UserRepo
	manager         *presence.Manager
	bus             *chat.Bus
	defaultCapacity int
}

func NewGroupHandler(
	groupRepo *repository.GroupRepo,
	membershipRepo *repository.MembershipRepo,
	userRepo *repository.UserRepo,
	manager *presence.Manager,
	bus *chat.Bus,
	defaultCapacity int,
) *GroupHandler {
	return &GroupHandler{
		groupRepo:       groupRepo,
		membershipRepo:  membershipRepo,
		userRepo:        userRepo,
		manager:         manager,
		bus:             bus,
		defaultCapacity: defaultCapacity,
	}
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Group name is required", r))
		return
	}
	if req.MaxMembers <= 0 {
		req.MaxMembers = h.defaultCapacity
	}

	group := &models.Group{
		Name:       strings.TrimSpace(req.Name),
		MaxMembers: req.MaxMembers,
		CreatedBy:  userID,
	}
	if err := h.groupRepo.Create(r.Context(), group); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create group", r))
		return
	}

	membership := &models.Membership{
		GroupID: group.ID,
		UserID:  userID,
		IsAdmin: true,
	}
	if err := h.membershipRepo.Create(r.Context(), membership); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to add creator to group", r))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"group": group,
	})
}

func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.JoinGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	code := strings.ToUpper(strings.TrimSpace(req.AccessCode))
	if code == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Access code is required", r))
		return
	}

	group, err := h.groupRepo.GetByAccessCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "No group with this access code", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to look up group", r))
		return
	}

	count, err := h.membershipRepo.CountByGroup(r.Context(), group.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to check group capacity", r))
		return
	}
	if count >= group.MaxMembers {
		writeJSON(w, http.StatusConflict, errorResp("GROUP_FULL", "This group is full", r))
		return
	}

	membership := &models.Membership{
		GroupID: group.ID,
		UserID:  userID,
	}
	if err := h.membershipRepo.Create(r.Context(), membership); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// ON CONFLICT DO NOTHING returned no row: already a member.
			writeJSON(w, http.StatusOK, map[string]interface{}{"group": group})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to join group", r))
		return
	}

	h.announce(r, group.ID, userID, "entrou no grupo")

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"group": group,
	})
}

// Members returns the group roster in leaderboard order: live study
// time descending, user id ascending on ties.
func (h *GroupHandler) Members(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid group ID", r))
		return
	}

	views, err := h.manager.MemberViews(r.Context(), groupID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load members", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"members": views,
	})
}

func (h *GroupHandler) announce(r *http.Request, groupID, userID uuid.UUID, action string) {
	name, err := h.userRepo.DisplayName(r.Context(), userID)
	if err != nil {
		name = models.PlaceholderName(userID)
	}
	if _, err := h.bus.SendSystem(r.Context(), groupID, name+" "+action); err != nil {
		log.Printf("group: failed to announce %q for user %s: %v", action, userID, err)
	}
}
