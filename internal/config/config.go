// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Revenue distribution rates, in basis points (1 bps = 0.01%)
	RepostCommissionBps int64 // commission on reposted-product sales
	ProfitShareBps      int64 // share of markup on re-owned-product sales

	// Escrow
	DefaultCommissionPercent int64 // platform commission on freelance escrow release

	// Mobile money probe order for MOBILE_MONEY payments
	MobileMoneyPriority []string

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint, empty disables tracing
}

// Defaults
const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultRepostBps         = 20   // 0.2%
	DefaultProfitShareBps    = 2000 // 20% of markup
	DefaultCommissionPercent = 10
)

// DefaultMobileMoneyPriority is the probe order when debiting a
// MOBILE_MONEY payment.
var DefaultMobileMoneyPriority = []string{"AIRTEL_MONEY", "MTN_MONEY", "ORANGE_MONEY", "MPESA"}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                     getEnv("PORT", DefaultPort),
		Env:                      getEnv("ENV", DefaultEnv),
		LogLevel:                 getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:              os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RepostCommissionBps:      getEnvInt64("REPOST_COMMISSION_BPS", DefaultRepostBps),
		ProfitShareBps:           getEnvInt64("PROFIT_SHARE_BPS", DefaultProfitShareBps),
		DefaultCommissionPercent: getEnvInt64("DEFAULT_COMMISSION_PERCENT", DefaultCommissionPercent),
		MobileMoneyPriority:      getEnvList("MOBILE_MONEY_PRIORITY", DefaultMobileMoneyPriority),
		OTLPEndpoint:             os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all configuration values are sane
func (c *Config) Validate() error {
	if c.RepostCommissionBps < 0 || c.RepostCommissionBps > 10000 {
		return fmt.Errorf("REPOST_COMMISSION_BPS must be between 0 and 10000")
	}
	if c.ProfitShareBps < 0 || c.ProfitShareBps > 10000 {
		return fmt.Errorf("PROFIT_SHARE_BPS must be between 0 and 10000")
	}
	if c.DefaultCommissionPercent < 0 || c.DefaultCommissionPercent > 100 {
		return fmt.Errorf("DEFAULT_COMMISSION_PERCENT must be between 0 and 100")
	}
	if len(c.MobileMoneyPriority) == 0 {
		return fmt.Errorf("MOBILE_MONEY_PRIORITY must list at least one method")
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

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var out []string
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
