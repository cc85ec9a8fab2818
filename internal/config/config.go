package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the API server configuration
type Config struct {
	Environment        string
	DatabaseURL        string
	Port               string
	JWTSecret          string
	PairingSalt        string
	PairingCodeTTL     time.Duration
	EmployeeSessionTTL time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	CleanupSchedule    string
	OTLPEndpoint       string
	OTLPInsecure       bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment:        "development",
		Port:               "8080", // default port
		PairingCodeTTL:     10 * time.Minute,
		EmployeeSessionTTL: 12 * time.Hour,
		CleanupSchedule:    "0 0 * * * *",
	}

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		cfg.Environment = env
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if _, err := url.Parse(databaseURL); err != nil {
		return nil, fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	cfg.DatabaseURL = databaseURL

	// Load PORT (optional, defaults to 8080)
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	// Load JWT_SECRET (required)
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTSecret = jwtSecret

	// Load PAIRING_SALT (required)
	pairingSalt := os.Getenv("PAIRING_SALT")
	if pairingSalt == "" {
		return nil, fmt.Errorf("PAIRING_SALT environment variable is required")
	}
	cfg.PairingSalt = pairingSalt

	var err error
	if cfg.PairingCodeTTL, err = durationEnv("PAIRING_CODE_TTL", cfg.PairingCodeTTL); err != nil {
		return nil, err
	}
	if cfg.EmployeeSessionTTL, err = durationEnv("EMPLOYEE_SESSION_TTL", cfg.EmployeeSessionTTL); err != nil {
		return nil, err
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB must be an integer: %w", err)
		}
		cfg.RedisDB = db
	}

	if schedule := os.Getenv("CLEANUP_SCHEDULE"); schedule != "" {
		cfg.CleanupSchedule = schedule
	}
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.OTLPInsecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"

	return cfg, nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
