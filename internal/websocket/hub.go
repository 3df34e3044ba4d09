package websocket

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"studycircle-backend/internal/middleware"
	"studycircle-backend/internal/models"
	"studycircle-backend/internal/presence"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub attaches live viewers to group channels. Each socket owns one
// manager subscription and one heartbeat scheduler; both are released
// on every disconnect path. The exit attempted on disconnect is purely
// best-effort — the reconciler is what actually guarantees stale
// members go offline.
type Hub struct {
	jwt               *middleware.JWTAuth
	tracker           *presence.Tracker
	manager           *presence.Manager
	heartbeatInterval time.Duration
}

func NewHub(jwt *middleware.JWTAuth, tracker *presence.Tracker, manager *presence.Manager, heartbeatInterval time.Duration) *Hub {
	return &Hub{
		jwt:               jwt,
		tracker:           tracker,
		manager:           manager,
		heartbeatInterval: heartbeatInterval,
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param; sockets cannot send headers.
	userID, err := h.jwt.ParseUserID(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	groupID, err := uuid.Parse(r.URL.Query().Get("group"))
	if err != nil {
		http.Error(w, "Invalid group", http.StatusBadRequest)
		return
	}

	// Opening the socket is entering the room.
	if _, err := h.tracker.Enter(r.Context(), groupID, userID); err != nil {
		if err == presence.ErrNotAMember {
			http.Error(w, "Not a member of this group", http.StatusForbidden)
		} else {
			http.Error(w, "Failed to enter group", http.StatusInternalServerError)
		}
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &client{conn: conn}

	sub := h.manager.Subscribe(groupID,
		func(msg models.MessageView) {
			client.send(models.WSMessage{Type: "message", Payload: msg})
		},
		func(members []models.MemberView) {
			client.send(models.WSMessage{Type: "presence", Payload: members})
		},
	)

	scheduler := presence.NewHeartbeatScheduler(h.heartbeatInterval, func(ctx context.Context) error {
		return h.tracker.Heartbeat(ctx, groupID, userID)
	})
	scheduler.Start()

	log.Printf("WebSocket connected: user %s in group %s (local subscribers: %d)",
		userID, groupID, h.manager.SubscriberCount(groupID))

	go func() {
		defer h.detach(groupID, userID, client, sub, scheduler)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) detach(groupID, userID uuid.UUID, c *client, sub *presence.Subscription, scheduler *presence.HeartbeatScheduler) {
	scheduler.Stop()
	if sub != nil {
		sub.Close()
	}
	c.close()

	// Best-effort: the process may die before this runs, in which case
	// the reconciler demotes the member after the staleness threshold.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.tracker.Exit(ctx, groupID, userID); err != nil {
		log.Printf("WebSocket disconnect: exit for user %s in group %s left to reconciler: %v", userID, groupID, err)
	}

	log.Printf("WebSocket disconnected: user %s from group %s", userID, groupID)
}

// client serializes writes; gorilla connections allow one writer at a
// time and both callbacks fire from the manager's pump goroutine while
// presence sweeps fire from the reconciler's.
type client struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (c *client) send(msg models.WSMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("WebSocket write failed: %v", err)
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.conn.Close()
}
