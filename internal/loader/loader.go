// Package loader handles configuration file loading and validation.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables inside the file
//   - Applying environment overrides on top of the file
//   - Validating the merged result
//
// Precedence, lowest first: built-in defaults, YAML file, environment.
package loader

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/logging"
	"github.com/xtxerr/playertrack/internal/roster"
)

// =============================================================================
// Load
// =============================================================================

// Load builds the configuration from path and the environment.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// LoadFile loads configuration from a YAML file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	if c.ServersInline == "" {
		c.ServersInline = c.ServersAlias
	}
	origins := c.Connections.AllowedOrigins[:0]
	for _, o := range c.Connections.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.Connections.AllowedOrigins = origins
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration and reports every problem at once.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		errs.AddField("http.port", "must be in 0..65535")
	}
	if cfg.HTTP.ShutdownTimeout < 0 {
		errs.AddField("http.shutdown_timeout", "cannot be negative")
	}

	if cfg.GraphDuration <= 0 {
		errs.AddField("graph_duration", "must be positive")
	}
	if cfg.ServerGraphDuration < 0 {
		errs.AddField("server_graph_duration", "cannot be negative")
	}
	if cfg.PingInterval <= 0 {
		errs.AddField("ping_interval", "must be positive")
	}

	errs.Add(cfg.Storage.Validate())
	errs.Add(cfg.Retention.Validate())

	if cfg.Connections.MaxPerIP < 1 {
		errs.AddField("connections.max_per_ip", "must be at least 1")
	}
	if cfg.Connections.MaxTotal < 1 {
		errs.AddField("connections.max_total", "must be at least 1")
	}
	if cfg.Connections.SendBufferSize < 1 {
		errs.AddField("connections.send_buffer_size", "must be at least 1")
	}
	for i, o := range cfg.Connections.AllowedOrigins {
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			errs.AddField(fmt.Sprintf("connections.allowed_origins[%d]", i), "must start with http:// or https://")
		}
	}

	if cfg.Messages.MaxPerWindow < 1 {
		errs.AddField("messages.max_per_window", "must be at least 1")
	}
	if cfg.Messages.Window <= 0 {
		errs.AddField("messages.window", "must be positive")
	}
	if cfg.Messages.MaxPayload < 1 {
		errs.AddField("messages.max_payload", "must be at least 1")
	}

	if cfg.Ingest.QueueSize < 1 {
		errs.AddField("ingest.queue_size", "must be at least 1")
	}
	if cfg.Ingest.TickQueueSize < 1 {
		errs.AddField("ingest.tick_queue_size", "must be at least 1")
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs.AddField("log.level", err.Error())
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		errs.AddField("log.format", "must be text or json")
	}

	if cfg.ServersInline == "" && cfg.ServersFile == "" {
		errs.AddMissing("servers_file")
	}

	return errs.ErrOrNil()
}

// =============================================================================
// Conversion
// =============================================================================

// RosterSource returns where the server roster is read from.
func (c *Config) RosterSource() roster.Source {
	return roster.Source{Inline: c.ServersInline, File: c.ServersFile}
}
