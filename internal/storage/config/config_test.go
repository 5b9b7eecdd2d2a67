package config

import (
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/playertrack/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Enabled {
		t.Error("expected persistence enabled by default")
	}
	if cfg.Type != "sqlite" {
		t.Errorf("expected sqlite, got %q", cfg.Type)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	ret := DefaultRetention()
	if ret.Interval != time.Hour {
		t.Errorf("expected 1h sweep interval, got %v", ret.Interval)
	}
	if err := ret.Validate(); err != nil {
		t.Errorf("default retention should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"unknown type", func(c *Config) { c.Type = "postgres" }, true},
		{"sqlite without path", func(c *Config) { c.Path = "" }, true},
		{"mysql without host", func(c *Config) { c.Type = "mysql"; c.MySQL.Host = "" }, true},
		{"mysql bad port", func(c *Config) { c.Type = "mysql"; c.MySQL.Port = 0 }, true},
		{"mysql ok", func(c *Config) { c.Type = "mysql" }, false},
		{"daily copy on mysql", func(c *Config) { c.Type = "mysql"; c.DailyCopy.Enabled = true }, true},
		{"daily copy on duckdb", func(c *Config) { c.Type = "duckdb"; c.DailyCopy.Enabled = true }, false},
		{"disabled ignores path", func(c *Config) { c.Enabled = false; c.Path = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = "data/pings.db"
	if dsn := cfg.DSN(); !strings.HasPrefix(dsn, "file:data/pings.db?") || !strings.Contains(dsn, "journal_mode(WAL)") {
		t.Errorf("sqlite dsn = %q", dsn)
	}

	cfg.Type = "mysql"
	cfg.MySQL.User = "mt"
	cfg.MySQL.Password = "secret"
	if dsn := cfg.DSN(); !strings.HasPrefix(dsn, "mt:secret@tcp(localhost:3306)/minetrack_data") {
		t.Errorf("mysql dsn = %q", dsn)
	}

	cfg.Enabled = false
	if dsn := cfg.DSN(); dsn != "" {
		t.Errorf("memory dsn = %q", dsn)
	}
}

func TestWindowCapacity(t *testing.T) {
	tests := []struct {
		duration, interval time.Duration
		want               int
	}{
		{12 * time.Hour, 3 * time.Second, 14400},
		{10 * time.Second, 3 * time.Second, 4},
		{time.Second, time.Minute, 1},
		{time.Hour, 0, 1},
	}

	for _, tt := range tests {
		if got := WindowCapacity(tt.duration, tt.interval); got != tt.want {
			t.Errorf("WindowCapacity(%v, %v) = %d, want %d", tt.duration, tt.interval, got, tt.want)
		}
	}
}
