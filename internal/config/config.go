// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (defaults to "./data", always absolute)
	LogLevel string
	Port     int
	DevMode  bool
	Market   MarketConfig
	Refresh  RefreshConfig
	Yahoo    YahooConfig
	Cache    CacheConfig
	Backup   BackupConfig
}

// MarketConfig describes the trading session used to gate refreshes
type MarketConfig struct {
	Timezone string // IANA name, e.g. "Australia/Sydney"
	Open     string // HH:MM local time
	Close    string // HH:MM local time
}

// RefreshConfig holds market-data refresh coordination settings
type RefreshConfig struct {
	MaxAge        time.Duration // Minimum gap between in-session refreshes
	LockTTL       time.Duration // Safety valve for a crashed refresh worker
	Schedule      string        // cron spec (with seconds)
	AllowCatchUp  bool          // Backfill after close when the session was missed
	Workers       int           // Deferred-job workers
	JobTimeout    time.Duration
	HistoryWindow time.Duration // Lookback when a ticker has no transaction bounds
}

// YahooConfig holds price gateway settings
type YahooConfig struct {
	BaseURL           string
	RequestsPerSecond int
	Timeout           time.Duration
}

// CacheConfig holds the optional redis latest-price cache settings
type CacheConfig struct {
	RedisURL string // empty disables the cache
	TTL      time.Duration
}

// BackupConfig holds S3-compatible backup settings
type BackupConfig struct {
	Bucket        string // empty disables backups
	Endpoint      string // custom endpoint (R2, MinIO); empty uses AWS
	Region        string
	AccessKeyID   string
	SecretKey     string
	Schedule      string
	RetentionDays int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FOLIO_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Market: MarketConfig{
			Timezone: getEnv("MARKET_TIMEZONE", "Australia/Sydney"),
			Open:     getEnv("MARKET_OPEN", "10:00"),
			Close:    getEnv("MARKET_CLOSE", "16:10"),
		},
		Refresh: RefreshConfig{
			MaxAge:        time.Duration(getEnvAsInt("REFRESH_MAX_AGE_MINUTES", 15)) * time.Minute,
			LockTTL:       time.Duration(getEnvAsInt("REFRESH_LOCK_SECONDS", 300)) * time.Second,
			Schedule:      getEnv("REFRESH_SCHEDULE", "0 */5 * * * *"),
			AllowCatchUp:  getEnvAsBool("REFRESH_ALLOW_CATCH_UP", true),
			Workers:       getEnvAsInt("REFRESH_WORKERS", 2),
			JobTimeout:    getEnvAsDuration("REFRESH_JOB_TIMEOUT", 4*time.Minute),
			HistoryWindow: 365 * 24 * time.Hour,
		},
		Yahoo: YahooConfig{
			BaseURL:           getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
			RequestsPerSecond: getEnvAsInt("YAHOO_REQUESTS_PER_SECOND", 2),
			Timeout:           time.Duration(getEnvAsInt("YAHOO_TIMEOUT_SECONDS", 20)) * time.Second,
		},
		Cache: CacheConfig{
			RedisURL: getEnv("REDIS_URL", ""),
			TTL:      time.Duration(getEnvAsInt("PRICE_CACHE_TTL_SECONDS", 300)) * time.Second,
		},
		Backup: BackupConfig{
			Bucket:        getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:      getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:        getEnv("BACKUP_S3_REGION", "auto"),
			AccessKeyID:   getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretKey:     getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Schedule:      getEnv("BACKUP_SCHEDULE", "0 30 2 * * *"),
			RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid GO_PORT: %d", c.Port)
	}

	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("invalid MARKET_TIMEZONE %q: %w", c.Market.Timezone, err)
	}

	open, err := ParseClock(c.Market.Open)
	if err != nil {
		return fmt.Errorf("invalid MARKET_OPEN: %w", err)
	}
	closeAt, err := ParseClock(c.Market.Close)
	if err != nil {
		return fmt.Errorf("invalid MARKET_CLOSE: %w", err)
	}
	if closeAt <= open {
		return fmt.Errorf("MARKET_CLOSE (%s) must be after MARKET_OPEN (%s)", c.Market.Close, c.Market.Open)
	}

	if c.Refresh.LockTTL <= 0 {
		return fmt.Errorf("REFRESH_LOCK_SECONDS must be positive")
	}
	if c.Refresh.Workers <= 0 {
		return fmt.Errorf("REFRESH_WORKERS must be positive")
	}
	// A job outliving its lock lets a second refresh start mid-run
	if c.Refresh.JobTimeout >= c.Refresh.LockTTL {
		return fmt.Errorf("REFRESH_JOB_TIMEOUT (%s) must be shorter than REFRESH_LOCK_SECONDS (%s)",
			c.Refresh.JobTimeout, c.Refresh.LockTTL)
	}

	// Same parser options as the scheduler: six fields, seconds first
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if c.Refresh.Schedule != "" {
		if _, err := parser.Parse(c.Refresh.Schedule); err != nil {
			return fmt.Errorf("invalid REFRESH_SCHEDULE %q: %w", c.Refresh.Schedule, err)
		}
	}
	if c.Backup.Schedule != "" {
		if _, err := parser.Parse(c.Backup.Schedule); err != nil {
			return fmt.Errorf("invalid BACKUP_SCHEDULE %q: %w", c.Backup.Schedule, err)
		}
	}

	return nil
}

// ParseClock parses "HH:MM" into an offset from midnight
func ParseClock(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
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
