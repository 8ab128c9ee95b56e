package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voicechat relay service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	AzureEndpoint      string
	AzureAPIKey        string
	RealtimeDeployment string
	ChatDeployment     string
	RealtimeAPIVersion string
	ChatAPIVersion     string

	ChatInstructions string

	MaxConnectionsPerUser int
	MaxRequestsPerMinute  int
	RateLimitWindow       time.Duration

	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8001"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "voicechat"),
		AllowAnyOrigin:     false,
		AzureEndpoint:      strings.TrimRight(trimmedEnv("AZURE_ENDPOINT"), "/"),
		AzureAPIKey:        trimmedEnv("AZURE_API_KEY"),
		RealtimeDeployment: envOrDefault("AZURE_REALTIME_DEPLOYMENT", "gpt-realtime"),
		ChatDeployment:     envOrDefault("AZURE_CHAT_DEPLOYMENT", "gpt-4o"),
		RealtimeAPIVersion: envOrDefault("API_VERSION_REALTIME", "2024-10-01-preview"),
		ChatAPIVersion:     envOrDefault("API_VERSION_CHAT", "2024-02-15-preview"),
		ChatInstructions: envOrDefault("APP_CHAT_INSTRUCTIONS",
			"You are a helpful assistant. Respond naturally and concisely."),
		MaxConnectionsPerUser: 3,
		MaxRequestsPerMinute:  60,
		RateLimitWindow:       60 * time.Second,
		SessionIdleTimeout:    30 * time.Minute,
		SessionSweepInterval:  5 * time.Minute,
		DatabaseURL:           trimmedEnv("DATABASE_URL"),
		ShutdownTimeout:       15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionIdleTimeout, err = durationFromEnv("APP_SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionSweepInterval, err = durationFromEnv("APP_SESSION_SWEEP_INTERVAL", cfg.SessionSweepInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitWindow, err = durationFromEnv("APP_RATE_LIMIT_WINDOW", cfg.RateLimitWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxConnectionsPerUser, err = intFromEnv("APP_MAX_CONNECTIONS_PER_USER", cfg.MaxConnectionsPerUser)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxRequestsPerMinute, err = intFromEnv("APP_MAX_REQUESTS_PER_MINUTE", cfg.MaxRequestsPerMinute)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxConnectionsPerUser <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_CONNECTIONS_PER_USER must be positive")
	}
	if cfg.MaxRequestsPerMinute <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_REQUESTS_PER_MINUTE must be positive")
	}
	if cfg.RateLimitWindow < time.Second {
		return Config{}, fmt.Errorf("APP_RATE_LIMIT_WINDOW must be at least 1s")
	}
	if cfg.SessionIdleTimeout < time.Minute {
		return Config{}, fmt.Errorf("APP_SESSION_IDLE_TIMEOUT must be at least 1m")
	}
	if cfg.SessionSweepInterval < time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_SWEEP_INTERVAL must be at least 1s")
	}

	return cfg, nil
}

// UpstreamConfigured reports whether the Azure endpoint and credential are both set.
func (c Config) UpstreamConfigured() bool {
	return strings.TrimSpace(c.AzureEndpoint) != "" && strings.TrimSpace(c.AzureAPIKey) != ""
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
