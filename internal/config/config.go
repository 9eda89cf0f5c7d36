// Package config loads service configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds settings shared by the chat API, events relay, and
// refill scanner binaries.
type Config struct {
	// HTTP
	Port   string
	APIKey string

	// Persistence. Empty DSN/URL selects the in-memory implementations.
	DatabaseURL string
	RedisURL    string

	// Event streaming
	KafkaBrokers []string

	// Reasoning service
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Observability
	OTLPEndpoint   string
	TracingEnabled bool
	LogLevel       string

	// Refill scanner
	ScanInterval time.Duration
	// ChatAPIURL is where the scanner reads patient records from, so it
	// sees the order history the conversational flow writes.
	ChatAPIURL string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:           envOr("PORT", "8080"),
		APIKey:         os.Getenv("API_KEY"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		KafkaBrokers:   splitList(envOr("KAFKA_BROKERS", "localhost:9092")),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    envOr("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		OTLPEndpoint:   envOr("OTLP_ENDPOINT", "localhost:4317"),
		TracingEnabled: envBool("TRACING_ENABLED", false),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		ScanInterval:   envDuration("REFILL_SCAN_INTERVAL", 6*time.Hour),
		ChatAPIURL:     envOr("CHAT_API_URL", "http://localhost:8080"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
