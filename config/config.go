package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

type Config struct {
	App struct {
		Environment string
		LogLevel    string
		LogDir      string
	}

	Screener struct {
		ListingURL    string
		BatchSize     int
		BatchInterval time.Duration
		MinPoints     int
		MinScore      int
		TopN          int
		HistoryMonths int
		OutputPath    string
		OutputFormat  string
	}

	Yahoo struct {
		BaseURL   string
		CookieURL string
		UserAgent string
		Timeout   time.Duration
	}

	Server struct {
		Addr         string
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
	}

	ClickHouse struct {
		Enabled      bool
		Host         string
		Port         int
		User         string
		Password     string
		Database     string
		DialTimeout  time.Duration
		QueryTimeout time.Duration
		Debug        bool
	}

	Retry struct {
		InitialInterval time.Duration
		MaxInterval     time.Duration
		MaxElapsedTime  time.Duration
	}
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	// .env is optional; the environment alone is a valid source.
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.Environment = getEnvOrDefault("APP_ENV", "production")
	cfg.App.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.App.LogDir = getEnvOrDefault("LOG_DIR", "logs")

	cfg.Screener.ListingURL = getEnvOrDefault("LISTING_URL", "https://www.nasdaqtrader.com/dynamic/SymDir/nasdaqlisted.txt")
	cfg.Screener.BatchSize = getEnvAsIntOrDefault("BATCH_SIZE", 10)
	cfg.Screener.BatchInterval = getEnvAsDurationOrDefault("BATCH_INTERVAL", time.Second)
	cfg.Screener.MinPoints = getEnvAsIntOrDefault("MIN_PRICE_POINTS", 30)
	cfg.Screener.MinScore = getEnvAsIntOrDefault("MIN_SCORE", 4)
	cfg.Screener.TopN = getEnvAsIntOrDefault("TOP_N", 50)
	cfg.Screener.HistoryMonths = getEnvAsIntOrDefault("HISTORY_MONTHS", 6)
	cfg.Screener.OutputPath = getEnvOrDefault("OUTPUT_PATH", "top_stocks.json")
	cfg.Screener.OutputFormat = strings.ToLower(os.Getenv("OUTPUT_FORMAT"))

	cfg.Yahoo.BaseURL = getEnvOrDefault("YAHOO_BASE_URL", "https://query2.finance.yahoo.com")
	cfg.Yahoo.CookieURL = getEnvOrDefault("YAHOO_COOKIE_URL", "https://fc.yahoo.com")
	cfg.Yahoo.UserAgent = getEnvOrDefault("YAHOO_USER_AGENT", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	cfg.Yahoo.Timeout = getEnvAsDurationOrDefault("YAHOO_TIMEOUT", 15*time.Second)

	cfg.Server.Addr = getEnvOrDefault("SERVER_ADDR", ":10000")
	cfg.Server.ReadTimeout = getEnvAsDurationOrDefault("SERVER_READ_TIMEOUT", 10*time.Second)
	cfg.Server.WriteTimeout = getEnvAsDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)

	cfg.ClickHouse.Enabled = getEnvAsBoolOrDefault("CLICKHOUSE_ENABLED", false)
	cfg.ClickHouse.Host = getEnvOrDefault("CLICKHOUSE_HOST", "localhost")
	cfg.ClickHouse.Port = getEnvAsIntOrDefault("CLICKHOUSE_PORT", 9000)
	cfg.ClickHouse.User = getEnvOrDefault("CLICKHOUSE_USER", "default")
	cfg.ClickHouse.Password = os.Getenv("CLICKHOUSE_PASSWORD")
	cfg.ClickHouse.Database = getEnvOrDefault("CLICKHOUSE_DB", "default")
	cfg.ClickHouse.DialTimeout = getEnvAsDurationOrDefault("CLICKHOUSE_DIAL_TIMEOUT", 5*time.Second)
	cfg.ClickHouse.QueryTimeout = time.Duration(getEnvAsIntOrDefault("CLICKHOUSE_QUERY_TIMEOUT_SECS", 30)) * time.Second
	cfg.ClickHouse.Debug = cfg.App.Environment != "production"

	cfg.Retry.InitialInterval = getEnvAsDurationOrDefault("RETRY_INITIAL_INTERVAL", time.Second)
	cfg.Retry.MaxInterval = getEnvAsDurationOrDefault("RETRY_MAX_INTERVAL", 10*time.Second)
	cfg.Retry.MaxElapsedTime = getEnvAsDurationOrDefault("RETRY_MAX_ELAPSED", time.Minute)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Screener.BatchSize <= 0:
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Screener.BatchSize)
	case c.Screener.TopN <= 0:
		return fmt.Errorf("TOP_N must be positive, got %d", c.Screener.TopN)
	case c.Screener.MinPoints < 15:
		// RSI-14 needs 15 closes.
		return fmt.Errorf("MIN_PRICE_POINTS must be at least 15, got %d", c.Screener.MinPoints)
	case c.Screener.HistoryMonths <= 0:
		return fmt.Errorf("HISTORY_MONTHS must be positive, got %d", c.Screener.HistoryMonths)
	case c.Screener.BatchInterval < 0:
		return fmt.Errorf("BATCH_INTERVAL must not be negative")
	case c.Screener.OutputPath == "":
		return fmt.Errorf("OUTPUT_PATH must not be empty")
	}
	switch c.Screener.OutputFormat {
	case "", FormatJSON, FormatCSV:
	default:
		return fmt.Errorf("OUTPUT_FORMAT must be %q or %q, got %q", FormatJSON, FormatCSV, c.Screener.OutputFormat)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault accepts Go durations ("1500ms") or bare seconds ("2").
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
