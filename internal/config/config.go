// Package config handles application configuration from environment variables
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port           string
	Env            string // "development", "staging", "production"
	LogLevel       string
	LogFormat      string // "json" or "text"
	MaxBodyBytes   int64
	AllowedOrigins []string
	TrustedProxies []string // CIDRs or IPs allowed to set X-Forwarded-For; none by default

	// Attempt storage
	AttemptStore string // "memory", "postgres", "redis"
	AttemptTTL   time.Duration
	DatabaseURL  string // required when AttemptStore is postgres
	RedisURL     string // required when AttemptStore is redis

	// Journeys
	JourneysFile string

	// Remote risk service
	TMXTimeout          time.Duration
	TMXBreakerThreshold int // 0 disables the breaker
	TMXBreakerCooldown  time.Duration

	// Per-client limit on attempt routes; 0 disables it
	RateLimitRPM   int
	RateLimitBurst int

	// Tracing (optional)
	OTLPEndpoint string
}

const (
	DefaultPort                = "8080"
	DefaultEnv                 = "development"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
	DefaultMaxBodyBytes        = 64 << 10
	DefaultAttemptStore        = "memory"
	DefaultAttemptTTL          = 10 * time.Minute
	DefaultJourneysFile        = "journeys.yaml"
	DefaultTMXTimeout          = 10 * time.Second
	DefaultTMXBreakerThreshold = 5
	DefaultTMXBreakerCooldown  = 30 * time.Second
	DefaultRateLimitRPM        = 120
	DefaultRateLimitBurst      = 20
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		MaxBodyBytes:        getEnvInt64("MAX_BODY_BYTES", DefaultMaxBodyBytes),
		AllowedOrigins:      getEnvList("CORS_ALLOWED_ORIGINS"),
		TrustedProxies:      getEnvList("TRUSTED_PROXIES"),
		AttemptStore:        getEnv("ATTEMPT_STORE", DefaultAttemptStore),
		AttemptTTL:          getEnvDuration("ATTEMPT_TTL", DefaultAttemptTTL),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		JourneysFile:        getEnv("JOURNEYS_FILE", DefaultJourneysFile),
		TMXTimeout:          getEnvDuration("TMX_HTTP_TIMEOUT", DefaultTMXTimeout),
		TMXBreakerThreshold: int(getEnvInt64("TMX_BREAKER_THRESHOLD", DefaultTMXBreakerThreshold)),
		TMXBreakerCooldown:  getEnvDuration("TMX_BREAKER_COOLDOWN", DefaultTMXBreakerCooldown),
		RateLimitRPM:        int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		RateLimitBurst:      int(getEnvInt64("RATE_LIMIT_BURST", DefaultRateLimitBurst)),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	switch c.AttemptStore {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when ATTEMPT_STORE=postgres")
		}
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when ATTEMPT_STORE=redis")
		}
	default:
		return errors.Newf("ATTEMPT_STORE must be memory, postgres or redis, got %q", c.AttemptStore)
	}

	if c.JourneysFile == "" {
		return errors.New("JOURNEYS_FILE is required")
	}
	if c.AttemptTTL <= 0 {
		return errors.New("ATTEMPT_TTL must be positive")
	}
	if c.TMXTimeout <= 0 {
		return errors.New("TMX_HTTP_TIMEOUT must be positive")
	}
	if c.TMXBreakerThreshold < 0 {
		return errors.New("TMX_BREAKER_THRESHOLD must not be negative")
	}
	if c.TMXBreakerThreshold > 0 && c.TMXBreakerCooldown <= 0 {
		return errors.New("TMX_BREAKER_COOLDOWN must be positive when the breaker is enabled")
	}
	if c.RateLimitRPM < 0 || c.RateLimitBurst < 0 {
		return errors.New("RATE_LIMIT_RPM and RATE_LIMIT_BURST must not be negative")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return errors.Newf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
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

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
