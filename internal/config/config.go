package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	LogLevel     string
	Port         int
	DevMode      bool

	// External services the jobs delegate real work to
	CollectorServiceURL  string
	EnrichmentServiceURL string
	MLServiceURL         string
	ExecutionServiceURL  string
	AuditServiceURL      string

	// Optional webhook for the always-on alert channel
	AlertWebhookURL string

	// Market-session gate (approximate, fixed reference timezone)
	MarketTimezone  string
	MarketOpenHour  int
	MarketCloseHour int

	// Retraining trigger
	RetrainThreshold int64

	// Timeout applied to recorder/aggregator database work
	StoreTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnvAsInt("OPS_PORT", 8010),
		DevMode:              getEnvAsBool("DEV_MODE", false),
		DatabasePath:         getEnv("DATABASE_PATH", "./data/ops.db"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		CollectorServiceURL:  getEnv("COLLECTOR_SERVICE_URL", "http://localhost:9100"),
		EnrichmentServiceURL: getEnv("ENRICHMENT_SERVICE_URL", "http://localhost:9101"),
		MLServiceURL:         getEnv("ML_SERVICE_URL", "http://localhost:9102"),
		ExecutionServiceURL:  getEnv("EXECUTION_SERVICE_URL", "http://localhost:9103"),
		AuditServiceURL:      getEnv("AUDIT_SERVICE_URL", "http://localhost:9104"),
		AlertWebhookURL:      getEnv("ALERT_WEBHOOK_URL", ""),
		MarketTimezone:       getEnv("MARKET_TIMEZONE", "America/New_York"),
		MarketOpenHour:       getEnvAsInt("MARKET_OPEN_HOUR", 10),
		MarketCloseHour:      getEnvAsInt("MARKET_CLOSE_HOUR", 16),
		RetrainThreshold:     int64(getEnvAsInt("RETRAIN_THRESHOLD", 500)),
		StoreTimeout:         getEnvAsDuration("STORE_TIMEOUT", 5*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}

	if c.MarketOpenHour < 0 || c.MarketOpenHour > 23 ||
		c.MarketCloseHour < 0 || c.MarketCloseHour > 23 {
		return fmt.Errorf("market hours must be within 0-23")
	}

	if c.MarketOpenHour >= c.MarketCloseHour {
		return fmt.Errorf("MARKET_OPEN_HOUR must be before MARKET_CLOSE_HOUR")
	}

	if c.RetrainThreshold <= 0 {
		return fmt.Errorf("RETRAIN_THRESHOLD must be positive")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
