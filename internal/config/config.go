package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Presence
	HeartbeatInterval   time.Duration
	ReconcileInterval   time.Duration
	InactivityThreshold time.Duration

	// When true, the reconciler credits a stale session's time up to the
	// last heartbeat before demoting the member. When false, abandoned
	// sessions are dropped on the floor and only clean exits count.
	CreditAbandonedSessions bool

	// Groups
	DefaultGroupCapacity int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                    getEnvOrDefault("PORT", "8080"),
		Env:                     getEnvOrDefault("ENV", "development"),
		DatabaseURL:             mustGetEnv("DATABASE_URL"),
		RedisURL:                mustGetEnv("REDIS_URL"),
		JWTSecret:               mustGetEnv("JWT_SECRET"),
		HeartbeatInterval:       getEnvAsSecondsOrDefault("HEARTBEAT_INTERVAL_SECONDS", 10),
		ReconcileInterval:       getEnvAsSecondsOrDefault("RECONCILE_INTERVAL_SECONDS", 15),
		InactivityThreshold:     getEnvAsSecondsOrDefault("INACTIVITY_THRESHOLD_SECONDS", 30),
		CreditAbandonedSessions: getEnvAsBoolOrDefault("CREDIT_ABANDONED_SESSIONS", true),
		DefaultGroupCapacity:    getEnvAsIntOrDefault("DEFAULT_GROUP_CAPACITY", 10),
		FrontendURL:             getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsSecondsOrDefault(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsIntOrDefault(key, defaultSeconds)) * time.Second
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
