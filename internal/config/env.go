// Package config loads process settings from the environment and the game
// balance tables from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env holds the realm server's process settings.
type Env struct {
	DBPath       string        `env:"REALM_DB_PATH" envDefault:"data/realm.db"`
	MemoryStore  bool          `env:"REALM_MEMORY_STORE"`
	Port         int           `env:"REALM_PORT" envDefault:"8080"`
	AdminKey     string        `env:"REALM_ADMIN_KEY"`
	BalanceFile  string        `env:"REALM_BALANCE_FILE"`
	LogLevel     string        `env:"REALM_LOG_LEVEL" envDefault:"info"`
	TickInterval time.Duration `env:"REALM_TICK_INTERVAL" envDefault:"1m"`
	Rooms        []string      `env:"REALM_ROOMS" envSeparator:"," envDefault:"main"`
	Seed         int64         `env:"REALM_SEED" envDefault:"42"`
	MaxRetries   int           `env:"REALM_MAX_RETRIES" envDefault:"32"`
	RateLimit    float64       `env:"REALM_RATE_LIMIT" envDefault:"5"`
	RateBurst    int           `env:"REALM_RATE_BURST" envDefault:"10"`
	RandomOrgKey string        `env:"RANDOM_ORG_API_KEY"`
}

// StewardEnv holds the steward's settings.
type StewardEnv struct {
	APIURL   string        `env:"REALM_API_URL" envDefault:"http://localhost:8080"`
	AdminKey string        `env:"REALM_ADMIN_KEY"`
	Rooms    []string      `env:"REALM_ROOMS" envSeparator:"," envDefault:"main"`
	Interval time.Duration `env:"REALM_STEWARD_INTERVAL" envDefault:"5m"`
	DryRun   bool          `env:"REALM_STEWARD_DRY_RUN"`
	LogLevel string        `env:"REALM_LOG_LEVEL" envDefault:"info"`

	// Journal of past cycles; empty keeps it in memory.
	JournalPath string `env:"REALM_STEWARD_JOURNAL" envDefault:"data/steward_journal.json"`
	// The server's tick interval, used to notice a stalled clock.
	ClockInterval time.Duration `env:"REALM_TICK_INTERVAL" envDefault:"1m"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Exitf prints a message to stderr and exits with status 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// SlogLevel maps a level name to a slog.Level, defaulting to Info.
func SlogLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
