// Package config provides centralized configuration loaded from an optional
// YAML file and environment variables. Shared by every cmd/agent subcommand.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv   = "EKATY_CONFIG"
	defaultTimezone = "America/Chicago"

	// DBTypeSQLite and DBTypePostgres are the supported DB_TYPE values.
	DBTypeSQLite   = "sqlite"
	DBTypePostgres = "pgsql"
)

// --------------------------------------------------------------------------
// Config struct: defaults, then YAML, then environment
// --------------------------------------------------------------------------

type Config struct {
	// Google Places
	GoogleAPIKey   string        `yaml:"google_api_key"`
	PlacesBaseURL  string        `yaml:"places_base_url"`
	RateLimitDelay time.Duration `yaml:"rate_limit_delay"`
	PageTokenDelay time.Duration `yaml:"page_token_delay"`

	// Search area
	LocationLat  float64 `yaml:"location_lat"`
	LocationLng  float64 `yaml:"location_lng"`
	SearchRadius int     `yaml:"search_radius"` // meters
	PlaceType    string  `yaml:"place_type"`

	// Sync
	SyncEnabled   bool          `yaml:"sync_enabled"`
	SyncInterval  time.Duration `yaml:"sync_interval"` // 0 disables scheduled sync
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	DetailWorkers int           `yaml:"detail_workers"`
	StaleDays     int           `yaml:"stale_days"`

	// Database
	DBType         string        `yaml:"db_type"` // sqlite, pgsql
	DBPath         string        `yaml:"db_path"`
	DatabaseURL    string        `yaml:"database_url"`
	DBPoolMinConns int           `yaml:"db_pool_min_conns"`
	DBPoolMaxConns int           `yaml:"db_pool_max_conns"`
	DBPoolMaxLife  time.Duration `yaml:"db_pool_max_life"`

	// API server
	APIHost     string `yaml:"api_host"`
	APIPort     int    `yaml:"api_port"`
	Environment string `yaml:"environment"` // development, staging, production

	// CORS
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`

	// Rate limiting (inbound API)
	RateLimitEnabled  bool          `yaml:"rate_limit_enabled"`
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`

	// Cache
	CacheEnabled bool `yaml:"cache_enabled"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	// Alerts
	AlertEnabled    bool   `yaml:"alert_enabled"`
	AlertWebhookURL string `yaml:"alert_webhook_url"`

	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Default returns the built-in configuration for the Katy, TX search area.
func Default() *Config {
	return &Config{
		PlacesBaseURL:  "https://maps.googleapis.com/maps/api/place",
		RateLimitDelay: 100 * time.Millisecond,
		PageTokenDelay: 2 * time.Second,

		LocationLat:  29.7858,
		LocationLng:  -95.8244,
		SearchRadius: 15000,
		PlaceType:    "restaurant",

		SyncEnabled:   true,
		MaxRetries:    3,
		RetryDelay:    5 * time.Second,
		DetailWorkers: 1,
		StaleDays:     30,

		DBType:         DBTypeSQLite,
		DBPath:         "./data/ekaty.db",
		DBPoolMinConns: 1,
		DBPoolMaxConns: 5,
		DBPoolMaxLife:  30 * time.Minute,

		APIHost:     "0.0.0.0",
		APIPort:     8000,
		Environment: "development",

		CORSAllowOrigins: []string{"http://localhost:3000"},

		RateLimitEnabled:  true,
		RateLimitRequests: 100,
		RateLimitWindow:   60 * time.Second,

		CacheEnabled: true,
		LogLevel:     "info",
		Timezone:     defaultTimezone,
	}
}

// Load reads configuration from the file named by EKATY_CONFIG (if set) and
// then applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.bindTimezone()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.GoogleAPIKey = envOr("GOOGLE_API_KEY", c.GoogleAPIKey)
	c.PlacesBaseURL = envOr("PLACES_BASE_URL", c.PlacesBaseURL)
	c.RateLimitDelay = envDuration("RATE_LIMIT_DELAY_MS", time.Millisecond, c.RateLimitDelay)
	c.PageTokenDelay = envDuration("PAGE_TOKEN_DELAY_MS", time.Millisecond, c.PageTokenDelay)

	c.LocationLat = envFloat("LOCATION_LAT", c.LocationLat)
	c.LocationLng = envFloat("LOCATION_LNG", c.LocationLng)
	c.SearchRadius = envInt("SEARCH_RADIUS", c.SearchRadius)
	c.PlaceType = envOr("PLACE_TYPE", c.PlaceType)

	c.SyncEnabled = envBool("SYNC_ENABLED", c.SyncEnabled)
	c.SyncInterval = envDuration("SYNC_INTERVAL_MINUTES", time.Minute, c.SyncInterval)
	c.MaxRetries = envInt("MAX_RETRIES", c.MaxRetries)
	c.RetryDelay = envDuration("RETRY_DELAY_SECONDS", time.Second, c.RetryDelay)
	c.DetailWorkers = envInt("DETAIL_WORKERS", c.DetailWorkers)
	c.StaleDays = envInt("STALE_DAYS", c.StaleDays)

	c.DBType = strings.ToLower(envOr("DB_TYPE", c.DBType))
	c.DBPath = envOr("DB_PATH", c.DBPath)
	c.DatabaseURL = envOr("DATABASE_URL", c.DatabaseURL)
	c.DBPoolMinConns = envInt("DB_POOL_MIN_CONNS", c.DBPoolMinConns)
	c.DBPoolMaxConns = envInt("DB_POOL_MAX_CONNS", c.DBPoolMaxConns)
	c.DBPoolMaxLife = envDuration("DB_POOL_MAX_LIFE_MINUTES", time.Minute, c.DBPoolMaxLife)

	c.APIHost = envOr("API_HOST", c.APIHost)
	c.APIPort = envInt("API_PORT", envInt("PORT", c.APIPort))
	c.Environment = envOr("ENVIRONMENT", c.Environment)
	c.CORSAllowOrigins = envList("CORS_ALLOW_ORIGINS", c.CORSAllowOrigins)

	c.RateLimitEnabled = envBool("RATE_LIMIT_ENABLED", c.RateLimitEnabled)
	c.RateLimitRequests = envInt("RATE_LIMIT_REQUESTS", c.RateLimitRequests)
	c.RateLimitWindow = envDuration("RATE_LIMIT_WINDOW", time.Second, c.RateLimitWindow)
	c.CacheEnabled = envBool("CACHE_ENABLED", c.CacheEnabled)

	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.LogFile = envOr("LOG_FILE", c.LogFile)

	c.AlertEnabled = envBool("ALERT_ENABLED", c.AlertEnabled)
	c.AlertWebhookURL = envOr("ALERT_WEBHOOK_URL", c.AlertWebhookURL)
	c.Timezone = envOr("TIMEZONE", c.Timezone)
}

// Validate reports configuration that cannot work regardless of command.
func (c *Config) Validate() error {
	switch c.DBType {
	case DBTypeSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH must be set when DB_TYPE=%s", DBTypeSQLite)
		}
	case DBTypePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when DB_TYPE=%s", DBTypePostgres)
		}
	default:
		return fmt.Errorf("unsupported DB_TYPE %q (want %s or %s)", c.DBType, DBTypeSQLite, DBTypePostgres)
	}
	if c.SearchRadius <= 0 {
		return fmt.Errorf("SEARCH_RADIUS must be positive, got %d", c.SearchRadius)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	if c.DetailWorkers < 1 {
		c.DetailWorkers = 1
	}
	return nil
}

// HasAPIKey reports whether a usable Google API key is configured.
func (c *Config) HasAPIKey() bool {
	return c.GoogleAPIKey != "" && c.GoogleAPIKey != "your_api_key_here"
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	return time.UTC
}

func (c *Config) bindTimezone() {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		loc = time.UTC
	}
	c.location = loc
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
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

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

// envDuration reads an integer count of unit (e.g. RETRY_DELAY_SECONDS=5).
func envDuration(key string, unit time.Duration, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return time.Duration(n) * unit
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
