// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Ledger   LedgerConfig
	Auth     AuthConfig
	Snapshot SnapshotConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// StorageConfig selects and configures the storage engine backend.
type StorageConfig struct {
	// Backend is one of "filesystem", "postgres", "memory".
	Backend     string
	Dir         string
	PostgresURL string
}

// LedgerConfig holds the loan policy knobs.
type LedgerConfig struct {
	LoanPeriod      time.Duration
	DefaultMaxLoans int
}

// AuthConfig holds login lockout settings.
type AuthConfig struct {
	MaxLoginAttempts int
	LockoutPeriod    time.Duration
}

// SnapshotConfig holds backup scheduling settings.
type SnapshotConfig struct {
	// Schedule is a 5-field cron expression; empty disables periodic snapshots.
	Schedule     string
	WriteTimeout time.Duration
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are acceptable when configuration comes from the
		// environment directly.
		_ = godotenv.Load()
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Storage: StorageConfig{
			Backend:     getenvWithDefault("STORAGE_BACKEND", "filesystem"),
			Dir:         getenvWithDefault("STORAGE_DIR", "./data"),
			PostgresURL: os.Getenv("DATABASE_URL"),
		},
		Ledger: LedgerConfig{
			LoanPeriod:      getenvDuration("LOAN_PERIOD", 720*time.Hour),
			DefaultMaxLoans: getenvInt("MAX_LOANS_PER_SUPERVISOR", 10),
		},
		Auth: AuthConfig{
			MaxLoginAttempts: getenvInt("MAX_LOGIN_ATTEMPTS", 3),
			LockoutPeriod:    getenvDuration("LOCKOUT_PERIOD", 15*time.Minute),
		},
		Snapshot: SnapshotConfig{
			Schedule:     getenvWithDefault("SNAPSHOT_SCHEDULE", "0 * * * *"),
			WriteTimeout: getenvDuration("SNAPSHOT_WRITE_TIMEOUT", 30*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch c.Storage.Backend {
	case "filesystem", "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return errors.New("DATABASE_URL must be provided for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	if c.Ledger.LoanPeriod <= 0 {
		return errors.New("LOAN_PERIOD must be positive")
	}
	if c.Ledger.DefaultMaxLoans <= 0 {
		return errors.New("MAX_LOANS_PER_SUPERVISOR must be positive")
	}
	if c.Snapshot.WriteTimeout <= 0 {
		return errors.New("SNAPSHOT_WRITE_TIMEOUT must be positive")
	}
	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
