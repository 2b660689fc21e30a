// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/scamshield/scamshield/internal/security"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Storage
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)
	RedisURL    string // Redis connection string (optional, uses in-memory if not set)

	// Risk policy. Scores are 0..100; a score at or above HoldThreshold maps
	// to the high level, at or above WarnThreshold to medium, below to low.
	WarnThreshold float64
	HoldThreshold float64

	// Cooling-off defaults (minutes) applied when the scorer omits them.
	WarnCooloffMinutes int
	HoldCooloffMinutes int

	// Remote collaborators (all optional; local fallbacks are used when unset)
	ScorerURL    string        // remote scoring model endpoint
	AIGatewayURL string        // LLM gateway for explain/classify/quiz
	NotifyURL    string        // trusted-contact / cooling-off webhook sink
	ScoreTimeout time.Duration // hard deadline on scoring; timeout fails closed
	AITimeout    time.Duration // deadline on advisory AI calls

	// Session lifecycle
	SessionTTL time.Duration // idle window before undecided sessions are pruned

	// Observability
	OTLPEndpoint string

	// Rate limiting
	RateLimitRPM int
}

// Defaults
const (
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultWarnScore    = 30.0
	DefaultHoldScore    = 60.0
	DefaultWarnCooloff  = 15
	DefaultHoldCooloff  = 30
	DefaultScoreTimeout = 3 * time.Second
	DefaultAITimeout    = 5 * time.Second
	DefaultSessionTTL   = 30 * time.Minute
	DefaultRateLimit    = 120
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		WarnThreshold:      getEnvFloat("RISK_WARN_THRESHOLD", DefaultWarnScore),
		HoldThreshold:      getEnvFloat("RISK_HOLD_THRESHOLD", DefaultHoldScore),
		WarnCooloffMinutes: int(getEnvInt64("WARN_COOLOFF_MINUTES", DefaultWarnCooloff)),
		HoldCooloffMinutes: int(getEnvInt64("HOLD_COOLOFF_MINUTES", DefaultHoldCooloff)),
		ScorerURL:          os.Getenv("SCORER_URL"),
		AIGatewayURL:       os.Getenv("AI_GATEWAY_URL"),
		NotifyURL:          os.Getenv("NOTIFY_URL"),
		ScoreTimeout:       getEnvDuration("SCORE_TIMEOUT", DefaultScoreTimeout),
		AITimeout:          getEnvDuration("AI_TIMEOUT", DefaultAITimeout),
		SessionTTL:         getEnvDuration("SESSION_TTL", DefaultSessionTTL),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:       int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.WarnThreshold < 0 || c.WarnThreshold > 100 {
		return fmt.Errorf("RISK_WARN_THRESHOLD must be in [0,100], got %v", c.WarnThreshold)
	}
	if c.HoldThreshold < 0 || c.HoldThreshold > 100 {
		return fmt.Errorf("RISK_HOLD_THRESHOLD must be in [0,100], got %v", c.HoldThreshold)
	}
	if c.WarnThreshold >= c.HoldThreshold {
		return fmt.Errorf("RISK_WARN_THRESHOLD (%v) must be below RISK_HOLD_THRESHOLD (%v)",
			c.WarnThreshold, c.HoldThreshold)
	}
	if c.ScoreTimeout <= 0 {
		return fmt.Errorf("SCORE_TIMEOUT must be positive")
	}
	if c.IsProduction() {
		// collaborator endpoints must not point into the private network
		for name, u := range map[string]string{
			"SCORER_URL":     c.ScorerURL,
			"AI_GATEWAY_URL": c.AIGatewayURL,
			"NOTIFY_URL":     c.NotifyURL,
		} {
			if u == "" {
				continue
			}
			if err := security.ValidateEndpointURL(u); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}
