package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/playertrack/internal/constants"
	"github.com/xtxerr/playertrack/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.HTTP.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", cfg.HTTP.Addr())
	}
	if got := cfg.WindowCapacity(); got != 14400 {
		t.Errorf("WindowCapacity() = %d, want 14400", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 9000
graph_duration: 1h
ping_interval: 10s
storage:
  type: duckdb
  path: data.duckdb
connections:
  max_per_ip: 2
  allowed_origins: ["https://example.com"]
retention:
  interval: 0s
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.HTTP.Port != 9000 || cfg.HTTP.IP != "0.0.0.0" {
		t.Errorf("http = %+v", cfg.HTTP)
	}
	if cfg.GraphDuration != time.Hour || cfg.PingInterval != 10*time.Second {
		t.Errorf("durations = %v / %v", cfg.GraphDuration, cfg.PingInterval)
	}
	if cfg.WindowCapacity() != 360 {
		t.Errorf("WindowCapacity() = %d, want 360", cfg.WindowCapacity())
	}
	if cfg.Storage.Type != constants.BackendDuckDB || !cfg.Storage.Enabled {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Connections.MaxPerIP != 2 || cfg.Connections.MaxTotal != 500 {
		t.Errorf("connections = %+v", cfg.Connections)
	}
	if cfg.Retention.Interval != 0 || !cfg.Retention.Enabled {
		t.Errorf("retention = %+v", cfg.Retention)
	}
}

func TestLoadFile_ExpandsEnv(t *testing.T) {
	t.Setenv("PT_TEST_TOKEN", "s3cret")
	path := writeConfig(t, "ingest:\n  token: ${PT_TEST_TOKEN}\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ingest.Token != "s3cret" {
		t.Errorf("Token = %q", cfg.Ingest.Token)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyEnv_Precedence(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 9000
connections:
  max_per_ip: 2
storage:
  type: duckdb
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	environ := map[string]string{
		"SITE_PORT":                  "7000",
		"GRAPH_DURATION":             "600000",
		"WS_WINDOW_MS":               "30s",
		"DB_TYPE":                    "mysql",
		"MYSQL_HOST":                 "db.internal",
		"MYSQL_PORT":                 "3307",
		"TRUST_PROXY":                "true",
		"ALLOWED_ORIGINS":            "https://a.example, https://b.example",
		"CREATE_DAILY_DATABASE_COPY": "false",
		"OLD_PINGS_CLEANUP_INTERVAL": "0",
		"HTTP_TIMEOUT":               "5000",
	}
	if err := applyEnv(cfg, environ); err != nil {
		t.Fatalf("applyEnv() error = %v", err)
	}
	cfg.normalize()

	if cfg.HTTP.Port != 7000 {
		t.Errorf("env should beat YAML: port = %d", cfg.HTTP.Port)
	}
	if cfg.Connections.MaxPerIP != 2 {
		t.Errorf("YAML should survive unset env: max_per_ip = %d", cfg.Connections.MaxPerIP)
	}
	if cfg.GraphDuration != 10*time.Minute {
		t.Errorf("integer durations are milliseconds: %v", cfg.GraphDuration)
	}
	if cfg.Messages.Window != 30*time.Second {
		t.Errorf("Window = %v", cfg.Messages.Window)
	}
	if cfg.Storage.Type != constants.BackendMySQL || cfg.Storage.MySQL.Host != "db.internal" || cfg.Storage.MySQL.Port != 3307 {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if !cfg.Connections.TrustProxy {
		t.Error("TrustProxy not applied")
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Connections.AllowedOrigins) != 2 ||
		cfg.Connections.AllowedOrigins[0] != want[0] || cfg.Connections.AllowedOrigins[1] != want[1] {
		t.Errorf("AllowedOrigins = %q", cfg.Connections.AllowedOrigins)
	}
	if cfg.Retention.Interval != 0 {
		t.Errorf("Retention.Interval = %v", cfg.Retention.Interval)
	}
	if cfg.HTTP.ReadTimeout != 5*time.Second || cfg.HTTP.WriteTimeout != 5*time.Second {
		t.Errorf("timeouts = %v / %v", cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)
	}
}

func TestApplyEnv_BadDuration(t *testing.T) {
	cfg := DefaultConfig()
	if err := applyEnv(cfg, map[string]string{"PING_ALL_INTERVAL": "soon"}); err == nil {
		t.Error("expected error for unparsable duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero graph duration", func(c *Config) { c.GraphDuration = 0 }, errors.ErrInvalidConfig},
		{"bad backend", func(c *Config) { c.Storage.Type = "oracle" }, errors.ErrInvalidConfig},
		{"no per-ip cap", func(c *Config) { c.Connections.MaxPerIP = 0 }, errors.ErrInvalidConfig},
		{"bad origin", func(c *Config) { c.Connections.AllowedOrigins = []string{"example.com"} }, errors.ErrInvalidConfig},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, errors.ErrInvalidConfig},
		{"no roster", func(c *Config) { c.ServersFile = "" }, errors.ErrMissingField},
		{"daily copy on mysql", func(c *Config) {
			c.Storage.Type = constants.BackendMySQL
			c.Storage.DailyCopy.Enabled = true
		}, errors.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHTTPConfig_SetAddr(t *testing.T) {
	var h HTTPConfig
	if err := h.SetAddr("127.0.0.1:9100"); err != nil {
		t.Fatal(err)
	}
	if h.IP != "127.0.0.1" || h.Port != 9100 {
		t.Errorf("SetAddr() = %+v", h)
	}
	if err := h.SetAddr("nonsense"); err == nil {
		t.Error("expected error")
	}
}

func TestRosterSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServersInline = `[{"name":"A","ip":"a"}]`
	src := cfg.RosterSource()
	if src.Inline == "" || src.File != cfg.ServersFile {
		t.Errorf("RosterSource() = %+v", src)
	}
}

func TestApplyEnv_Bools(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"yes", true},
		{"ON", true},
		{"1", true},
		{"true", true},
		{"no", false},
		{"0", false},
		{"nope", false},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.Connections.TrustProxy = !tt.want
		if err := applyEnv(cfg, map[string]string{"TRUST_PROXY": tt.in}); err != nil {
			t.Fatalf("%q: %v", tt.in, err)
		}
		if cfg.Connections.TrustProxy != tt.want {
			t.Errorf("TRUST_PROXY=%q gave %v, want %v", tt.in, cfg.Connections.TrustProxy, tt.want)
		}
	}
}

func TestNormalize_ServersAlias(t *testing.T) {
	cfg := DefaultConfig()
	if err := applyEnv(cfg, map[string]string{"SERVERS": `[{"name":"A","ip":"a","type":"PC"}]`}); err != nil {
		t.Fatal(err)
	}
	cfg.normalize()
	if cfg.RosterSource().Inline == "" {
		t.Error("SERVERS should fill the inline roster")
	}
}

func TestConfig_DurationLabel(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.DurationLabel(); got != "12h" {
		t.Errorf("DurationLabel() = %q, want 12h", got)
	}
	cfg.GraphDuration = 90 * time.Minute
	if got := cfg.DurationLabel(); got != "90m" {
		t.Errorf("DurationLabel() = %q, want 90m", got)
	}
	cfg.GraphDurationLabel = "1.5 hours"
	if got := cfg.DurationLabel(); got != "1.5 hours" {
		t.Errorf("DurationLabel() = %q", got)
	}
	if cfg.ServerWindowCapacity() != 60 {
		t.Errorf("ServerWindowCapacity() = %d, want 60", cfg.ServerWindowCapacity())
	}
}
