package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studycircle-backend/internal/chat"
	"studycircle-backend/internal/middleware"
	"studycircle-backend/internal/models"
)

type memMessageStore struct {
	msgs []models.Message
}

func (s *memMessageStore) Create(ctx context.Context, msg *models.Message) error {
	msg.ID = uuid.New()
	s.msgs = append(s.msgs, *msg)
	return nil
}

func (s *memMessageStore) ListRecent(ctx context.Context, groupID uuid.UUID, limit int) ([]models.Message, error) {
	var out []models.Message
	for _, m := range s.msgs {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type memResolver struct{}

func (memResolver) DisplayName(ctx context.Context, userID uuid.UUID) (string, error) {
	return "Tester", nil
}

func newMessageTestRouter() (http.Handler, *memMessageStore) {
	store := &memMessageStore{}
	h := NewMessageHandler(chat.NewBus(store, memResolver{}))

	r := chi.NewRouter()
	r.Post("/groups/{id}/messages", h.Send)
	r.Get("/groups/{id}/messages", h.List)
	return r, store
}

func authedRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, uuid.New())
	return req.WithContext(ctx)
}

func TestMessageHandler_SendAndList(t *testing.T) {
	router, _ := newMessageTestRouter()
	groupID := uuid.New()

	body, _ := json.Marshal(map[string]string{"text": "Olá"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/groups/"+groupID.String()+"/messages", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/groups/"+groupID.String()+"/messages?limit=10", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	var resp struct {
		Messages []models.MessageView `json:"messages"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Text != "Olá" {
		t.Errorf("Expected the sent message back, got %+v", resp.Messages)
	}
	if resp.Messages[0].AuthorName != "Tester" {
		t.Errorf("Expected resolved author name, got %q", resp.Messages[0].AuthorName)
	}
}

func TestMessageHandler_Validation(t *testing.T) {
	router, store := newMessageTestRouter()
	groupID := uuid.New()

	tests := []struct {
		name   string
		target string
		method string
		body   []byte
	}{
		{"empty text", "/groups/" + groupID.String() + "/messages", http.MethodPost, []byte(`{"text":"  "}`)},
		{"malformed body", "/groups/" + groupID.String() + "/messages", http.MethodPost, []byte(`{`)},
		{"bad group id", "/groups/not-a-uuid/messages", http.MethodPost, []byte(`{"text":"oi"}`)},
		{"bad limit", "/groups/" + groupID.String() + "/messages?limit=zero", http.MethodGet, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, authedRequest(tc.method, tc.target, tc.body))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rr.Code)
			}
		})
	}

	if len(store.msgs) != 0 {
		t.Errorf("No message should be persisted by rejected requests, got %d", len(store.msgs))
	}
}
