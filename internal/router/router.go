package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studycircle-backend/internal/handlers"
	"studycircle-backend/internal/middleware"
	"studycircle-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	groupHandler *handlers.GroupHandler,
	presenceHandler *handlers.PresenceHandler,
	messageHandler *handlers.MessageHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		// ──── Group Routes ────
		r.Route("/groups", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", groupHandler.Create)
			r.Post("/join", groupHandler.Join)
			r.Get("/{id}/members", groupHandler.Members)

			// Presence
			r.Post("/{id}/enter", presenceHandler.Enter)
			r.Post("/{id}/heartbeat", presenceHandler.Heartbeat)
			r.Post("/{id}/exit", presenceHandler.Exit)
			r.Post("/{id}/leave", presenceHandler.Leave)

			// Chat
			r.Post("/{id}/messages", messageHandler.Send)
			r.Get("/{id}/messages", messageHandler.List)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
