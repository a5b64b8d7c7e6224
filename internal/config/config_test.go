package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv("DB_TYPE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.SearchRadius != 15000 {
		t.Fatalf("expected radius 15000, got %d", cfg.SearchRadius)
	}
	if cfg.LocationLat != 29.7858 || cfg.LocationLng != -95.8244 {
		t.Fatalf("unexpected location %v,%v", cfg.LocationLat, cfg.LocationLng)
	}
	if cfg.RateLimitDelay != 100*time.Millisecond {
		t.Fatalf("unexpected rate limit delay %v", cfg.RateLimitDelay)
	}
	if cfg.DBType != DBTypeSQLite {
		t.Fatalf("unexpected db type %q", cfg.DBType)
	}
	if cfg.Location().String() != defaultTimezone && cfg.Location() != time.UTC {
		t.Fatalf("unexpected location %s", cfg.Location())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv("SEARCH_RADIUS", "5000")
	t.Setenv("RETRY_DELAY_SECONDS", "2")
	t.Setenv("RATE_LIMIT_DELAY_MS", "250")
	t.Setenv("SYNC_ENABLED", "false")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DB_TYPE", "sqlite")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.SearchRadius != 5000 {
		t.Fatalf("expected radius 5000, got %d", cfg.SearchRadius)
	}
	if cfg.RetryDelay != 2*time.Second {
		t.Fatalf("expected retry delay 2s, got %v", cfg.RetryDelay)
	}
	if cfg.RateLimitDelay != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", cfg.RateLimitDelay)
	}
	if cfg.SyncEnabled {
		t.Fatal("expected sync disabled")
	}
	if len(cfg.CORSAllowOrigins) != 2 || cfg.CORSAllowOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowOrigins)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ekaty.yaml")
	body := "place_type: cafe\nsearch_radius: 8000\nretry_delay: 750ms\ndb_path: " + filepath.Join(dir, "x.db") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv("DB_TYPE", "")
	t.Setenv("SEARCH_RADIUS", "9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.PlaceType != "cafe" {
		t.Fatalf("expected place type from yaml, got %q", cfg.PlaceType)
	}
	if cfg.RetryDelay != 750*time.Millisecond {
		t.Fatalf("expected yaml duration, got %v", cfg.RetryDelay)
	}
	if cfg.SearchRadius != 9000 {
		t.Fatalf("expected env to win over yaml, got %d", cfg.SearchRadius)
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("expected default max retries to survive, got %d", cfg.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"pgsql without url", func(c *Config) { c.DBType = DBTypePostgres }, true},
		{"pgsql with url", func(c *Config) { c.DBType = DBTypePostgres; c.DatabaseURL = "postgres://x" }, false},
		{"unknown db", func(c *Config) { c.DBType = "mysql" }, true},
		{"zero radius", func(c *Config) { c.SearchRadius = 0 }, true},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHasAPIKey(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.HasAPIKey() {
		t.Fatal("empty key should not count")
	}
	cfg.GoogleAPIKey = "your_api_key_here"
	if cfg.HasAPIKey() {
		t.Fatal("placeholder key should not count")
	}
	cfg.GoogleAPIKey = "AIza-real"
	if !cfg.HasAPIKey() {
		t.Fatal("real key should count")
	}
}
