package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

var loadEnvOnce sync.Once

// LoadEnv loads variables from a .env file if one is present. Missing files are not an error.
func LoadEnv() {
	loadEnvOnce.Do(func() {
		_ = godotenv.Load()
	})
}

// Config is the service configuration read from the environment.
type Config struct {
	Port          string `env:"PORT" envDefault:"8081"`
	LedgerBackend string `env:"LEDGER_BACKEND" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisURL      string `env:"REDIS_URL"`

	JWTSecret     string `env:"JWT_SECRET"`
	WebhookSecret string `env:"PAYMENT_WEBHOOK_SECRET"`

	PayoutRateLimit   string        `env:"PAYOUT_RATE_LIMIT" envDefault:"10-1m"`
	MaxTxRetries      int           `env:"LEDGER_MAX_TX_RETRIES" envDefault:"5"`
	DashboardCacheTTL time.Duration `env:"DASHBOARD_CACHE_TTL" envDefault:"5s"`

	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	LogFile  string `env:"LOG_FILE" envDefault:"logs/treasury.log"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env, parses the environment into a Config and validates it.
func Load() (*Config, error) {
	LoadEnv()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that required settings are present for the chosen backend.
func (c *Config) Validate() error {
	var errs []error

	switch c.LedgerBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres ledger"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.WebhookSecret == "" {
		errs = append(errs, errors.New("PAYMENT_WEBHOOK_SECRET is required"))
	}
	if c.MaxTxRetries < 0 {
		errs = append(errs, errors.New("LEDGER_MAX_TX_RETRIES must not be negative"))
	}

	return errors.Join(errs...)
}
