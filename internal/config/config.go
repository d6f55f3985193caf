package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/antoniostano/chatstore/internal/store"
)

// Config contains all runtime settings for the session persistence service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	// Storage backend selection. Database names the database, keyspace
	// prefix or project id depending on the backend kind.
	StoreBackend       string
	StoreConnectionURI string
	StoreDatabase      string
	StoreCollection    string

	ModelProvider string
	GeminiAPIKey  string
	GeminiModel   string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "chatstore"),
		AllowAnyOrigin:   false,
		ShutdownTimeout:  15 * time.Second,

		StoreBackend:       envOrDefault("STORE_BACKEND", store.KindEphemeral),
		StoreConnectionURI: trimmedEnv("STORE_CONNECTION_URI"),
		StoreDatabase:      trimmedEnv("STORE_DATABASE"),
		StoreCollection:    envOrDefault("STORE_COLLECTION", "sessions"),

		ModelProvider: envOrDefault("MODEL_PROVIDER", "auto"),
		GeminiAPIKey:  trimmedEnv("GEMINI_API_KEY"),
		GeminiModel:   envOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	switch cfg.StoreBackend {
	case store.KindEphemeral:
	case store.KindDocument:
		if cfg.StoreDatabase == "" {
			return Config{}, fmt.Errorf("STORE_DATABASE (project id) is required for STORE_BACKEND=document")
		}
	case store.KindKeyValue, store.KindPostgres:
		if cfg.StoreConnectionURI == "" {
			return Config{}, fmt.Errorf("STORE_CONNECTION_URI is required for STORE_BACKEND=%s", cfg.StoreBackend)
		}
	default:
		return Config{}, fmt.Errorf("invalid STORE_BACKEND: %q (expected ephemeral|document|keyvalue|postgres)", cfg.StoreBackend)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.ModelProvider)) {
	case "auto", "gemini", "mock":
	default:
		return Config{}, fmt.Errorf("invalid MODEL_PROVIDER: %q (expected auto|gemini|mock)", cfg.ModelProvider)
	}
	if strings.EqualFold(cfg.ModelProvider, "gemini") && cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("MODEL_PROVIDER=gemini but GEMINI_API_KEY is not set")
	}

	return cfg, nil
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
