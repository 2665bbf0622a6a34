// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nbelghith/authwatch/internal/security"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Classifier upstream
	ClassifierURL     string
	ClassifierTimeout time.Duration

	// Ledger settings. All four must be set together; a partial set
	// disables anchoring rather than failing startup.
	RPCURL          string
	ChainID         int64
	PrivateKey      string // Hex-encoded, 0x prefix accepted
	ContractAddress string

	// Tracing
	OTLPEndpoint string

	// Security
	RateLimitRPM   int
	AllowedOrigins []string
}

const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultClassifierURL     = "http://localhost:8000/predict"
	DefaultClassifierTimeout = 2 * time.Second
	DefaultRateLimit         = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ClassifierURL:     getEnv("CLASSIFIER_URL", DefaultClassifierURL),
		ClassifierTimeout: getEnvDuration("CLASSIFIER_TIMEOUT", DefaultClassifierTimeout),
		RPCURL:            os.Getenv("RPC_URL"),
		ChainID:           getEnvInt64("CHAIN_ID", 0),
		PrivateKey:        os.Getenv("PRIVATE_KEY"),
		ContractAddress:   os.Getenv("CONTRACT_ADDRESS"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:      int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		AllowedOrigins:    splitCommaList(os.Getenv("ALLOWED_ORIGINS")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.ClassifierURL == "" {
		return fmt.Errorf("CLASSIFIER_URL is required")
	}

	if c.PrivateKey != "" {
		key := c.PrivateKey
		if len(key) == 66 && key[:2] == "0x" {
			key = key[2:]
		}
		if len(key) != 64 {
			return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
		}
	}

	// In production, upstream endpoints must not point at internal addresses.
	if c.IsProduction() {
		if err := security.ValidateEndpointURL(c.ClassifierURL); err != nil {
			return fmt.Errorf("CLASSIFIER_URL: %w", err)
		}
		if c.RPCURL != "" {
			if err := security.ValidateEndpointURL(c.RPCURL); err != nil {
				return fmt.Errorf("RPC_URL: %w", err)
			}
		}
	}

	return nil
}

// LedgerConfigured reports whether every ledger setting is present.
func (c *Config) LedgerConfigured() bool {
	return c.RPCURL != "" && c.ChainID != 0 && c.PrivateKey != "" && c.ContractAddress != ""
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
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
