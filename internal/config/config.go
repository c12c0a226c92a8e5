package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Secrets (from .env)
	WebhookURL      string
	AppName         string
	APIKey          string
	CORSAllowOrigin string

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// API
	APIPort           int
	RateLimitRPS      float64
	RateLimitBurst    int
	ShutdownTimeout   time.Duration
	MaxImportBodySize int64

	// Ingestion
	IngestBatchSize       int
	ImportSource          string
	ImportIntervalMinutes int

	// Query limits
	MaxRangeDays   int
	MaxRangePoints int
	RangeCacheSize int

	// Logging
	LogLevel string
	LogFile  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Secrets
		WebhookURL:      envStr("WEBHOOK_URL", ""),
		AppName:         envStr("APP_NAME", "FinancialAggregator"),
		APIKey:          envStr("API_KEY", ""),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),

		// Database
		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBName:     envStr("DB_NAME", "financial_aggregator"),
		DBUser:     envStr("DB_USER", ""),
		DBPassword: envStr("DB_PASSWORD", ""),

		// API
		APIPort:           envInt("API_PORT", 3001),
		RateLimitRPS:      envFloat("API_RATE_LIMIT_RPS", 50),
		RateLimitBurst:    envInt("API_RATE_LIMIT_BURST", 100),
		ShutdownTimeout:   envDuration("API_SHUTDOWN_TIMEOUT", 5*time.Second),
		MaxImportBodySize: int64(envInt("API_MAX_IMPORT_MB", 64)) << 20,

		// Ingestion
		IngestBatchSize:       envInt("INGEST_BATCH_SIZE", 500),
		ImportSource:          envStr("IMPORT_SOURCE", ""),
		ImportIntervalMinutes: envInt("IMPORT_INTERVAL_MINUTES", 0),

		// Query limits
		MaxRangeDays:   envInt("MAX_RANGE_DAYS", 3660),
		MaxRangePoints: envInt("MAX_RANGE_POINTS", 20000),
		RangeCacheSize: envInt("RANGE_CACHE_SIZE", 256),

		// Logging
		LogLevel: envStr("LOG_LEVEL", "info"),
		LogFile:  envStr("LOG_FILE", ""),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.DBUser == "" {
		errs = append(errs, "DB_USER is required")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Sprintf("API_PORT %d is out of range", c.APIPort))
	}
	if c.IngestBatchSize < 1 {
		errs = append(errs, "INGEST_BATCH_SIZE must be >= 1")
	}
	if c.ImportIntervalMinutes < 0 {
		errs = append(errs, "IMPORT_INTERVAL_MINUTES must be >= 0")
	}
	if c.ImportIntervalMinutes > 0 && c.ImportSource == "" {
		errs = append(errs, "IMPORT_SOURCE is required when IMPORT_INTERVAL_MINUTES is set")
	}
	if c.MaxRangeDays < 0 || c.MaxRangePoints < 0 {
		errs = append(errs, "MAX_RANGE_DAYS and MAX_RANGE_POINTS must be >= 0")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, "API_RATE_LIMIT_RPS and API_RATE_LIMIT_BURST must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Warnings lists settings that are legal but probably unintended.
func (c *Config) Warnings() []string {
	var warns []string
	if c.APIKey == "" {
		warns = append(warns, "API_KEY not set, REST API has no authentication")
	}
	if c.MaxRangeDays == 0 && c.MaxRangePoints == 0 {
		warns = append(warns, "MAX_RANGE_DAYS and MAX_RANGE_POINTS are both 0, series queries are unbounded")
	}
	if c.RateLimitRPS == 0 {
		warns = append(warns, "API_RATE_LIMIT_RPS is 0, rate limiting disabled")
	}
	return warns
}

func (c *Config) Print() {
	fmt.Println("=== Financial Aggregator Configuration ===")
	fmt.Printf("Database: %s@%s:%d/%s\n", c.DBUser, c.DBHost, c.DBPort, c.DBName)
	fmt.Println("--------------------------------------")
	fmt.Printf("API Port: %d\n", c.APIPort)
	fmt.Printf("API Key: %s\n", boolLabel(c.APIKey != "", "configured", "not set"))
	fmt.Printf("CORS Origin: %s\n", c.CORSAllowOrigin)
	fmt.Printf("Rate Limit: %.0f req/s (burst %d)\n", c.RateLimitRPS, c.RateLimitBurst)
	fmt.Println("--------------------------------------")
	fmt.Println("Ingestion:")
	fmt.Printf("  Batch Size: %d\n", c.IngestBatchSize)
	if c.ImportIntervalMinutes > 0 {
		fmt.Printf("  Scheduled Import: %s every %d minutes\n", c.ImportSource, c.ImportIntervalMinutes)
	} else {
		fmt.Println("  Scheduled Import: off")
	}
	fmt.Println("--------------------------------------")
	fmt.Println("Queries:")
	fmt.Printf("  Max Range: %d days / %d points\n", c.MaxRangeDays, c.MaxRangePoints)
	fmt.Printf("  Range Cache: %d entries\n", c.RangeCacheSize)
	fmt.Printf("Webhook: %s\n", boolLabel(c.WebhookURL != "", "configured", "not set"))
	fmt.Println("======================================")
}

// DSN builds a postgres URL. User and password are escaped, so either may
// contain reserved characters such as '@', '/' or ':'.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func (c *Config) ImportInterval() time.Duration {
	return time.Duration(c.ImportIntervalMinutes) * time.Minute
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
