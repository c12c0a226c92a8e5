package config

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"API_PORT", "INGEST_BATCH_SIZE", "MAX_RANGE_DAYS", "MAX_RANGE_POINTS", "APP_NAME", "API_SHUTDOWN_TIMEOUT"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIPort != 3001 {
		t.Fatalf("APIPort: got %d", cfg.APIPort)
	}
	if cfg.IngestBatchSize != 500 {
		t.Fatalf("IngestBatchSize: got %d", cfg.IngestBatchSize)
	}
	if cfg.MaxRangeDays != 3660 || cfg.MaxRangePoints != 20000 {
		t.Fatalf("range limits: got %d/%d", cfg.MaxRangeDays, cfg.MaxRangePoints)
	}
	if cfg.AppName != "FinancialAggregator" {
		t.Fatalf("AppName: got %s", cfg.AppName)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("ShutdownTimeout: got %s", cfg.ShutdownTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("API_PORT", "8080")
	t.Setenv("INGEST_BATCH_SIZE", "50")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("IMPORT_INTERVAL_MINUTES", "15")
	t.Setenv("API_SHUTDOWN_TIMEOUT", "30s")

	cfg, _ := Load()
	if cfg.APIPort != 8080 || cfg.IngestBatchSize != 50 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("RateLimitRPS: got %f", cfg.RateLimitRPS)
	}
	if cfg.ImportInterval() != 15*time.Minute {
		t.Fatalf("ImportInterval: got %s", cfg.ImportInterval())
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Fatalf("ShutdownTimeout: got %s", cfg.ShutdownTimeout)
	}
}

func TestLoad_MalformedFallsBack(t *testing.T) {
	t.Setenv("API_PORT", "not-a-number")
	cfg, _ := Load()
	if cfg.APIPort != 3001 {
		t.Fatalf("expected fallback port, got %d", cfg.APIPort)
	}
}

func valid() *Config {
	return &Config{DBUser: "postgres", APIPort: 3001, IngestBatchSize: 500}
}

func TestValidate_OK(t *testing.T) {
	if err := valid().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	c := valid()
	c.DBUser = ""
	c.IngestBatchSize = 0
	c.ImportIntervalMinutes = 10

	err := c.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"DB_USER", "INGEST_BATCH_SIZE", "IMPORT_SOURCE"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %s", err, want)
		}
	}
}

func TestWarnings(t *testing.T) {
	c := valid()
	if n := len(c.Warnings()); n != 3 {
		t.Fatalf("expected 3 warnings for bare config, got %d", n)
	}
	c.APIKey = "secret"
	c.MaxRangeDays = 10
	c.RateLimitRPS = 1
	if w := c.Warnings(); len(w) != 0 {
		t.Fatalf("expected no warnings, got %v", w)
	}
}

func TestDSN(t *testing.T) {
	c := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: 5433, DBName: "n"}
	if got := c.DSN(); got != "postgres://u:p@h:5433/n?sslmode=disable" {
		t.Fatalf("DSN: got %s", got)
	}
}

func TestDSN_EscapesCredentials(t *testing.T) {
	c := &Config{DBUser: "app@corp", DBPassword: "p@ss:w/rd?#", DBHost: "db.internal", DBPort: 5432, DBName: "financial_aggregator"}
	dsn := c.DSN()

	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("DSN %q does not parse: %v", dsn, err)
	}
	if u.User.Username() != "app@corp" {
		t.Fatalf("user: got %q", u.User.Username())
	}
	if pw, _ := u.User.Password(); pw != "p@ss:w/rd?#" {
		t.Fatalf("password: got %q", pw)
	}
	if u.Host != "db.internal:5432" || u.Path != "/financial_aggregator" {
		t.Fatalf("host/path: got %q %q", u.Host, u.Path)
	}
	if u.Query().Get("sslmode") != "disable" {
		t.Fatalf("sslmode: got %q", u.RawQuery)
	}
}
