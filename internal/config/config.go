package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	HTTPPort string

	// Generation backend (Stable-Diffusion-WebUI compatible API)
	BackendURL          string
	BackendPollInterval time.Duration

	// Prompt templates and wildcard sets
	TemplateDir string
	WildcardDir string

	// Optional infrastructure
	RedisURL    string // event bus; in-process bus when empty
	DatabaseURL string // job history archive; disabled when empty
	MQTTBroker  string // MQTT event bridge; disabled when empty

	// Scheduler
	PollInterval time.Duration
	MaxRetries   int

	// Logging
	LogLevel  slog.Level
	LogFormat string // "json" or "text"

	// Tracing
	OTLPEndpoint  string
	ServiceName   string
	EnableTracing bool
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		BackendURL:          getEnv("BACKEND_URL", "http://localhost:7860"),
		BackendPollInterval: getEnvDuration("BACKEND_POLL_INTERVAL", 500*time.Millisecond),
		TemplateDir:         getEnv("TEMPLATE_DIR", "./configs"),
		WildcardDir:         getEnv("WILDCARD_DIR", "./wildcards"),
		RedisURL:            getEnv("REDIS_URL", ""),
		DatabaseURL:         getEnv("DB_URL", ""),
		MQTTBroker:          getEnv("MQTT_BROKER", ""),
		PollInterval:        getEnvDuration("SCHEDULER_POLL_INTERVAL", time.Second),
		MaxRetries:          getEnvInt("MAX_RETRIES", 2),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
		OTLPEndpoint:        getEnv("OTLP_ENDPOINT", ""),
		ServiceName:         getEnv("SERVICE_NAME", "promptforge"),
		EnableTracing:       getEnvBool("ENABLE_TRACING", false),
	}

	// Parse log level
	switch getEnv("LOG_LEVEL", "info") {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "info":
		cfg.LogLevel = slog.LevelInfo
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}
