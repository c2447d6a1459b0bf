package cards

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the service configuration, loaded from the environment.
type Config struct {
	HTTPAddr string
	// Backend selects the repository: "pg" (default) or "mem". The memory
	// backend is for tests and local development only.
	Backend string
	DBDSN   string
	// EncryptionKey keys the card-number codec; must be 16, 24 or 32 bytes.
	EncryptionKey string
	JWTSecret     string
	TokenTTL      time.Duration
	// CardNumberPrefix optionally fixes the leading digits of generated
	// card numbers (for example "4" for a Visa-like range). Empty means
	// unconstrained.
	CardNumberPrefix string
	// ReissueWindowDays is the lookahead window of the expiry sweep.
	ReissueWindowDays int
	// SweepSpec is the cron schedule of the expiry sweep; empty disables it.
	SweepSpec string
}

// NewConfig loads configuration from environment variables with defaults.
func NewConfig() (*Config, error) {
	cfg := &Config{
		HTTPAddr:          getEnv("HTTP_ADDR", "localhost:8080"),
		Backend:           getEnv("REPO_BACKEND", "pg"),
		DBDSN:             getEnv("DB_DSN", ""),
		EncryptionKey:     getEnv("ENCRYPTION_KEY", ""),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		TokenTTL:          24 * time.Hour,
		CardNumberPrefix:  getEnv("CARD_NUMBER_PREFIX", ""),
		ReissueWindowDays: 30,
		SweepSpec:         getEnv("SWEEP_SPEC", "@hourly"),
	}

	if ttl := getEnv("TOKEN_TTL", ""); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
		}
		cfg.TokenTTL = d
	}
	if days := getEnv("REISSUE_WINDOW_DAYS", ""); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid REISSUE_WINDOW_DAYS: %q", days)
		}
		cfg.ReissueWindowDays = n
	}

	switch len(cfg.EncryptionKey) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("ENCRYPTION_KEY must be 16, 24 or 32 bytes (got %d)", len(cfg.EncryptionKey))
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Backend == "pg" && cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required for the pg backend")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}
