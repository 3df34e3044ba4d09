package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studycircle-backend/internal/middleware"
	"studycircle-backend/internal/models"
	"studycircle-backend/internal/presence"
)

func contextWithUser(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, middleware.UserIDKey, userID)
}

// memMembershipStore backs a real tracker for handler tests.
type memMembershipStore struct {
	rows map[string]*models.Membership
}

func (s *memMembershipStore) key(g, u uuid.UUID) string { return g.String() + "/" + u.String() }

func (s *memMembershipStore) Get(ctx context.Context, g, u uuid.UUID) (*models.Membership, error) {
	m, ok := s.rows[s.key(g, u)]
	if !ok {
		return nil, presence.ErrNotAMember
	}
	copied := *m
	return &copied, nil
}

func (s *memMembershipStore) SetActive(ctx context.Context, g, u uuid.UUID, total int64, now time.Time) error {
	m := s.rows[s.key(g, u)]
	m.IsActive, m.JoinedAt, m.LastActiveAt, m.TotalStudyTime = true, now, now, total
	return nil
}

func (s *memMembershipStore) Touch(ctx context.Context, g, u uuid.UUID, now time.Time) error {
	if m, ok := s.rows[s.key(g, u)]; ok {
		m.LastActiveAt = now
	}
	return nil
}

func (s *memMembershipStore) CloseSession(ctx context.Context, g, u uuid.UUID, total int64, now time.Time) error {
	if m, ok := s.rows[s.key(g, u)]; ok && m.IsActive {
		m.IsActive, m.LastActiveAt, m.TotalStudyTime = false, now, total
	}
	return nil
}

func (s *memMembershipStore) ForceCloseSession(ctx context.Context, g, u uuid.UUID, total int64, now time.Time) error {
	return s.CloseSession(ctx, g, u, total, now)
}

func (s *memMembershipStore) Delete(ctx context.Context, g, u uuid.UUID) error {
	delete(s.rows, s.key(g, u))
	return nil
}

func newPresenceTestRouter(store *memMembershipStore) http.Handler {
	h := NewPresenceHandler(presence.NewTracker(store))

	r := chi.NewRouter()
	r.Post("/groups/{id}/enter", h.Enter)
	r.Post("/groups/{id}/heartbeat", h.Heartbeat)
	r.Post("/groups/{id}/exit", h.Exit)
	r.Post("/groups/{id}/leave", h.Leave)
	return r
}

func TestPresenceHandler_EnterRequiresMembership(t *testing.T) {
	router := newPresenceTestRouter(&memMembershipStore{rows: map[string]*models.Membership{}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/groups/"+uuid.NewString()+"/enter", nil))

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for non-member, got %d", rr.Code)
	}
}

func TestPresenceHandler_EnterExitRoundTrip(t *testing.T) {
	groupID, userID := uuid.New(), uuid.New()
	store := &memMembershipStore{rows: map[string]*models.Membership{}}
	store.rows[store.key(groupID, userID)] = &models.Membership{GroupID: groupID, UserID: userID}

	router := newPresenceTestRouter(store)

	req := authedRequest(http.MethodPost, "/groups/"+groupID.String()+"/enter", nil)
	req = req.WithContext(contextWithUser(req.Context(), userID))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 on enter, got %d: %s", rr.Code, rr.Body.String())
	}
	if m := store.rows[store.key(groupID, userID)]; !m.IsActive {
		t.Fatal("Expected member online after enter")
	}

	req = authedRequest(http.MethodPost, "/groups/"+groupID.String()+"/exit", nil)
	req = req.WithContext(contextWithUser(req.Context(), userID))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 on exit, got %d", rr.Code)
	}
	if m := store.rows[store.key(groupID, userID)]; m.IsActive {
		t.Fatal("Expected member offline after exit")
	}
}

func TestPresenceHandler_InvalidGroupID(t *testing.T) {
	router := newPresenceTestRouter(&memMembershipStore{rows: map[string]*models.Membership{}})

	for _, path := range []string{"/groups/abc/enter", "/groups/abc/heartbeat", "/groups/abc/exit", "/groups/abc/leave"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rr.Code)
		}
	}
}
