// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/govalues/money"
	"github.com/joho/godotenv"
)

// Config is the runtime configuration of the bookkeeping service.
type Config struct {
	HTTPAddr string
	// DatabaseURL selects the external Postgres store; empty runs memory-only.
	DatabaseURL  string
	BookCurrency string
	// COAFile overrides the built-in chart of accounts with a YAML file.
	COAFile              string
	RedisURL             string
	LockTTL              time.Duration
	ExternalWriteTimeout time.Duration
	LogLevel             string
	LogFormat            string
	MigrationsDir        string
}

// Load reads the .env file at envPath (or ./.env when present) and then the
// process environment. Values already in the environment win over the file.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	lockTTL, err := parseDurationEnv("LOCK_TTL", 10*time.Second)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := parseDurationEnv("EXTERNAL_WRITE_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:             getEnvOrDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		BookCurrency:         strings.ToUpper(getEnvOrDefault("BOOK_CURRENCY", "PHP")),
		COAFile:              strings.TrimSpace(os.Getenv("COA_FILE")),
		RedisURL:             strings.TrimSpace(os.Getenv("REDIS_URL")),
		LockTTL:              lockTTL,
		ExternalWriteTimeout: writeTimeout,
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		MigrationsDir:        getEnvOrDefault("MIGRATIONS_DIR", "db/migrations"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := money.ParseCurr(c.BookCurrency); err != nil {
		return fmt.Errorf("invalid BOOK_CURRENCY %q: %w", c.BookCurrency, err)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	if c.ExternalWriteTimeout <= 0 {
		return fmt.Errorf("EXTERNAL_WRITE_TIMEOUT must be positive")
	}
	return nil
}

// UsesExternalStore reports whether a database is configured.
func (c *Config) UsesExternalStore() bool { return c.DatabaseURL != "" }

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
