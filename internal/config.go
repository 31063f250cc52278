// Package internal carries process-level wiring for the gatekit daemon:
// configuration, logging, and helpers shared by cmd/gated.
package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/huddlechat/gatekit/internal/domain"
	"github.com/huddlechat/gatekit/internal/store"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Quota store backend: "memory", "sqlite" (default), or "postgres"
	// for the server-authoritative variant.
	StoreProvider store.Provider
	SQLitePath    string
	DatabaseUrl   string

	// Per-feature gating table. Values are product-tunable; tier
	// thresholds are fixed in code.
	RefreshLimit       int
	RefreshWindow      time.Duration
	FilterLimit        int
	FilterWindow       time.Duration
	ConversationLimit  int
	ConversationWindow time.Duration
	MessageLimit       int
	MessageWindow      time.Duration

	// NewUserFreePeriod is how long after first account creation every
	// feature is bypassed.
	NewUserFreePeriod time.Duration

	// Telemetry pipeline sizing
	TelemetryQueueSize int
	TelemetryWorkers   int

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		StoreProvider: store.Provider(getEnv("STORE_PROVIDER", "sqlite")),
		SQLitePath:    getEnv("SQLITE_PATH", "./gatekit.db"),
		DatabaseUrl:   getEnv("DATABASE_URL", ""),

		RefreshLimit:       getEnvInt("FEATURE_REFRESH_LIMIT", 10),
		RefreshWindow:      getEnvDuration("FEATURE_REFRESH_WINDOW", 10*time.Minute),
		FilterLimit:        getEnvInt("FEATURE_FILTER_LIMIT", 8),
		FilterWindow:       getEnvDuration("FEATURE_FILTER_WINDOW", 10*time.Minute),
		ConversationLimit:  getEnvInt("FEATURE_CONVERSATION_START_LIMIT", 5),
		ConversationWindow: getEnvDuration("FEATURE_CONVERSATION_START_WINDOW", time.Hour),
		MessageLimit:       getEnvInt("FEATURE_MESSAGE_SEND_LIMIT", 40),
		MessageWindow:      getEnvDuration("FEATURE_MESSAGE_SEND_WINDOW", 30*time.Minute),

		NewUserFreePeriod: getEnvDuration("NEW_USER_FREE_PERIOD", 7*24*time.Hour),

		TelemetryQueueSize: getEnvInt("TELEMETRY_QUEUE_SIZE", 256),
		TelemetryWorkers:   getEnvInt("TELEMETRY_WORKERS", 1),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Catalog assembles the feature table from the configured limits. Callers
// must treat a validation failure as fatal.
func (c *Config) Catalog() domain.Catalog {
	catalog := domain.DefaultCatalog()

	apply := func(key domain.FeatureKey, limit int, window time.Duration) {
		row := catalog[key]
		row.Limit = uint(limit)
		row.Window = window
		catalog[key] = row
	}
	apply(domain.FeatureRefresh, c.RefreshLimit, c.RefreshWindow)
	apply(domain.FeatureFilter, c.FilterLimit, c.FilterWindow)
	apply(domain.FeatureConversationStart, c.ConversationLimit, c.ConversationWindow)
	apply(domain.FeatureMessageSend, c.MessageLimit, c.MessageWindow)

	return catalog
}

// Validate checks the configuration for fatal startup errors.
func (c *Config) Validate() error {
	switch c.StoreProvider {
	case store.ProviderMemory, store.ProviderSQLite, store.ProviderPostgres:
	default:
		return fmt.Errorf("unknown STORE_PROVIDER %q", c.StoreProvider)
	}

	if c.StoreProvider == store.ProviderPostgres && c.DatabaseUrl == "" {
		return fmt.Errorf("DATABASE_URL is required with STORE_PROVIDER=postgres")
	}
	if c.StoreProvider == store.ProviderSQLite && c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required with STORE_PROVIDER=sqlite")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}

	if c.NewUserFreePeriod < 0 {
		return fmt.Errorf("NEW_USER_FREE_PERIOD must not be negative, got %v", c.NewUserFreePeriod)
	}

	// The catalog's own validation catches zero limits and windows; run it
	// here so a bad table kills the process at startup, not mid-request.
	if err := c.Catalog().Validate(); err != nil {
		return err
	}

	return nil
}

// getEnv returns the environment variable value or a default.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvInt returns the environment variable as an int or a default.
func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration returns the environment variable as a duration or a default.
// Accepts Go duration strings ("90s", "10m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
