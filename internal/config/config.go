package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerPort     string
	DatabaseURL    string
	RedisURL       string
	RemoteURL      string
	SyncAuthSecret string
	NodeID         string
	MaxRetries     int
	HealthTimeout  time.Duration
	SyncTimeout    time.Duration
}

func LoadConfig() (*Config, error) {
	maxRetriesStr := getEnv("SYNC_MAX_RETRIES", "3")
	maxRetries, err := strconv.Atoi(maxRetriesStr)
	if err != nil || maxRetries < 1 {
		return nil, errors.New("invalid SYNC_MAX_RETRIES value")
	}

	healthTimeout, err := parseDuration("HEALTH_TIMEOUT", "3s")
	if err != nil {
		return nil, err
	}

	syncTimeout, err := parseDuration("SYNC_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		RemoteURL:      os.Getenv("REMOTE_URL"),
		SyncAuthSecret: os.Getenv("SYNC_AUTH_SECRET"),
		NodeID:         getEnv("NODE_ID", "local"),
		MaxRetries:     maxRetries,
		HealthTimeout:  healthTimeout,
		SyncTimeout:    syncTimeout,
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.RemoteURL == "" {
		return nil, errors.New("REMOTE_URL is required")
	}
	if cfg.SyncAuthSecret == "" {
		return nil, errors.New("SYNC_AUTH_SECRET is required")
	}

	return cfg, nil
}

func parseDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s format", key)
	}
	return d, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
