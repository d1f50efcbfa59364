package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the console
type Config struct {
	// Local HTTP facade
	Port           string
	AllowedOrigins []string

	// Upstream call server
	APIBaseURL   string
	SocketURL    string
	HTTPTimeout  time.Duration
	WriteTimeout time.Duration

	// Reconnect policy: fixed delay, bounded attempts, then unreachable
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	// Incoming-call popup auto-clear
	PopupTimeout time.Duration

	// Per-kind retry interval for failed snapshot fetches
	SnapshotRetry time.Duration

	// Bearer credential source; the file takes precedence so the token
	// can live outside the environment
	AuthToken     string
	AuthTokenFile string

	LogLevel string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:3001/api"),
		SocketURL:      getEnv("SOCKET_URL", "ws://localhost:3001/ws"),
		AuthToken:      getEnv("AUTH_TOKEN", ""),
		AuthTokenFile:  getEnv("AUTH_TOKEN_FILE", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	httpTimeout, err := strconv.Atoi(getEnv("HTTP_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	config.HTTPTimeout = time.Duration(httpTimeout) * time.Second

	writeTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WriteTimeout = time.Duration(writeTimeout) * time.Second

	config.ReconnectAttempts, err = strconv.Atoi(getEnv("RECONNECT_ATTEMPTS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONNECT_ATTEMPTS: %w", err)
	}

	reconnectDelay, err := strconv.Atoi(getEnv("RECONNECT_DELAY", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONNECT_DELAY: %w", err)
	}
	config.ReconnectDelay = time.Duration(reconnectDelay) * time.Second

	popupTimeout, err := strconv.Atoi(getEnv("POPUP_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid POPUP_TIMEOUT: %w", err)
	}
	config.PopupTimeout = time.Duration(popupTimeout) * time.Second

	snapshotRetry, err := strconv.Atoi(getEnv("SNAPSHOT_RETRY", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid SNAPSHOT_RETRY: %w", err)
	}
	config.SnapshotRetry = time.Duration(snapshotRetry) * time.Second

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
