package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studycircle-backend/internal/chat"
	"studycircle-backend/internal/config"
	"studycircle-backend/internal/database"
	"studycircle-backend/internal/handlers"
	"studycircle-backend/internal/middleware"
	"studycircle-backend/internal/presence"
	"studycircle-backend/internal/realtime"
	"studycircle-backend/internal/repository"
	"studycircle-backend/internal/router"
	"studycircle-backend/internal/services"
	"studycircle-backend/internal/websocket"
)

func main() {
	log.Println("🚀 Starting StudyCircle Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	notifier := realtime.NewRedisNotifier(redisClients.Publish, redisClients.Subscribe)
	userRepo := repository.NewUserRepo(pool)
	groupRepo := repository.NewGroupRepo(pool)
	membershipRepo := repository.NewMembershipRepo(pool, notifier)
	messageRepo := repository.NewMessageRepo(pool, notifier)

	// ──── Initialize Presence Core ────
	tracker := presence.NewTracker(membershipRepo)
	manager := presence.NewManager(notifier, membershipRepo, userRepo, presence.ManagerConfig{
		ReconcileInterval:   cfg.ReconcileInterval,
		InactivityThreshold: cfg.InactivityThreshold,
		CreditAbandoned:     cfg.CreditAbandonedSessions,
	})
	defer manager.Close()
	bus := chat.NewBus(messageRepo, userRepo)
	log.Println("✓ Presence core initialized")

	// ──── Initialize Services & Handlers ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	authService := services.NewAuthService(userRepo, jwtAuth)

	authHandler := handlers.NewAuthHandler(authService)
	groupHandler := handlers.NewGroupHandler(groupRepo, membershipRepo, userRepo, manager, bus, cfg.DefaultGroupCapacity)
	presenceHandler := handlers.NewPresenceHandler(tracker)
	messageHandler := handlers.NewMessageHandler(bus)

	// ──── Step 5: Start WebSocket Hub ────
	wsHub := websocket.NewHub(jwtAuth, tracker, manager, cfg.HeartbeatInterval)
	log.Println("✓ WebSocket hub started")

	// ──── Step 6: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authHandler,
		groupHandler,
		presenceHandler,
		messageHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		manager.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ StudyCircle Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
