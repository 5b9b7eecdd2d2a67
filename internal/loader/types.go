// Package loader - Configuration Types
//
// Defines the YAML configuration structure for playertrackd.
//
// ARCHITECTURE:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                        config.yaml                          │
//	├─────────────────────────────────────────────────────────────┤
//	│  http:         listen address, timeouts, CSP                │
//	│  sampling:     graph_duration, ping_interval                │
//	│  storage:      backend, pool, daily copy                    │
//	│  retention:    sweep interval, parquet archive              │
//	│  connections:  per-ip / global caps, proxy, origins         │
//	│  messages:     inbound rate budget, payload cap             │
//	│  ingest:       bearer token, queue sizes                    │
//	│  log:          level, format                                │
//	│  servers_file: roster location                              │
//	└─────────────────────────────────────────────────────────────┘
//
// Every field may also be set from the environment; see env.go.
package loader

import (
	"net"
	"strconv"
	"time"

	defaults "github.com/xtxerr/playertrack/config"
	storageconfig "github.com/xtxerr/playertrack/internal/storage/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for playertrackd.
type Config struct {
	// HTTP configures the listener serving viewers, ingestion and metrics.
	HTTP HTTPConfig `yaml:"http"`

	// GraphDuration is the retention horizon D. Samples older than now - D
	// are swept and every window spans at most D.
	GraphDuration time.Duration `yaml:"graph_duration" env:"GRAPH_DURATION"`

	// GraphDurationLabel is shown to viewers next to the peak, e.g. "24h".
	// Empty derives it from GraphDuration.
	GraphDurationLabel string `yaml:"graph_duration_label" env:"GRAPH_DURATION_LABEL"`

	// ServerGraphDuration is the span of the short per-server graph viewers
	// draw. It is only forwarded to viewers.
	ServerGraphDuration time.Duration `yaml:"server_graph_duration" env:"SERVER_GRAPH_DURATION"`

	// PingInterval is the poll round period of the external pinger.
	PingInterval time.Duration `yaml:"ping_interval" env:"PING_ALL_INTERVAL"`

	// LogFailedPings logs every event that carries an error.
	LogFailedPings bool `yaml:"log_failed_pings" env:"LOG_FAILED_PINGS"`

	// Storage selects and configures the persistence backend.
	Storage storageconfig.Config `yaml:"storage"`

	// Retention configures the sweeper.
	Retention storageconfig.RetentionConfig `yaml:"retention"`

	// Connections configures viewer admission.
	Connections ConnectionConfig `yaml:"connections"`

	// Messages configures the inbound message budget of a viewer.
	Messages MessageConfig `yaml:"messages"`

	// Ingest configures the ingestion endpoint.
	Ingest IngestConfig `yaml:"ingest"`

	// Log configures the global logger.
	Log LogConfig `yaml:"log"`

	// ServersFile is the roster file. Ignored when ServersInline is set.
	ServersFile string `yaml:"servers_file" env:"SERVERS_FILE"`

	// ServersInline is a roster document taken from the environment.
	ServersInline string `yaml:"-" env:"SERVERS_JSON"`

	// ServersAlias is the older name of SERVERS_JSON.
	ServersAlias string `yaml:"-" env:"SERVERS"`
}

// =============================================================================
// HTTP
// =============================================================================

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
	// IP is the bind address. Default: 0.0.0.0
	IP string `yaml:"ip" env:"SITE_IP"`

	// Port is the bind port. Default: 8080
	Port int `yaml:"port" env:"SITE_PORT"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"HTTP_HEADERS_TIMEOUT"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"HTTP_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"HTTP_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"HTTP_KEEP_ALIVE_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	// ContentSecurityPolicy is sent verbatim when set.
	ContentSecurityPolicy string `yaml:"content_security_policy" env:"CONTENT_SECURITY_POLICY"`
}

// Addr returns the host:port listen address.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.IP, strconv.Itoa(h.Port))
}

// SetAddr splits a host:port address into IP and Port.
func (h *HTTPConfig) SetAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return err
	}
	h.IP, h.Port = host, p
	return nil
}

// =============================================================================
// Connections
// =============================================================================

// ConnectionConfig configures viewer admission.
type ConnectionConfig struct {
	// MaxPerIP caps simultaneous viewers per resolved address.
	MaxPerIP int `yaml:"max_per_ip" env:"CONNECTION_MAX_PER_IP"`

	// MaxTotal caps simultaneous viewers.
	MaxTotal int `yaml:"max_total" env:"CONNECTION_MAX_TOTAL"`

	// SendBufferSize is the capacity of each viewer's outbound queue.
	SendBufferSize int `yaml:"send_buffer_size"`

	// TrustProxy resolves the viewer address from forwarding headers.
	TrustProxy bool `yaml:"trust_proxy" env:"TRUST_PROXY"`

	// AllowedOrigins restricts the Origin header. Empty means same-host only.
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// MessageConfig configures the inbound message budget of a viewer.
type MessageConfig struct {
	MaxPerWindow int           `yaml:"max_per_window" env:"WS_MAX_MESSAGES"`
	Window       time.Duration `yaml:"window" env:"WS_WINDOW_MS"`
	MaxPayload   int64         `yaml:"max_payload" env:"WS_MAX_PAYLOAD"`
}

// =============================================================================
// Ingest and Logging
// =============================================================================

// IngestConfig configures the ingestion endpoint.
type IngestConfig struct {
	// Token is the bearer token required by POST /api/ingest. Empty
	// disables the endpoint.
	Token string `yaml:"token" env:"INGEST_TOKEN"`

	// QueueSize is the per-server storage write queue capacity.
	QueueSize int `yaml:"queue_size" env:"INGEST_QUEUE_SIZE"`

	// TickQueueSize is how many poll rounds may wait for processing.
	TickQueueSize int `yaml:"tick_queue_size"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LOG_LEVEL"`

	// Format is text or json.
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// JSON reports whether the JSON handler is selected.
func (l LogConfig) JSON() bool {
	return l.Format == "json"
}

// =============================================================================
// Derived values
// =============================================================================

// WindowCapacity is the number of poll rounds that fit in GraphDuration.
func (c *Config) WindowCapacity() int {
	return storageconfig.WindowCapacity(c.GraphDuration, c.PingInterval)
}

// ServerWindowCapacity is the number of poll rounds in the per-server graph.
func (c *Config) ServerWindowCapacity() int {
	return storageconfig.WindowCapacity(c.ServerGraphDuration, c.PingInterval)
}

// DurationLabel returns GraphDurationLabel or one derived from GraphDuration.
func (c *Config) DurationLabel() string {
	if c.GraphDurationLabel != "" {
		return c.GraphDurationLabel
	}
	d := c.GraphDuration
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return strconv.Itoa(int(d/time.Hour)) + "h"
	case d >= time.Minute && d%time.Minute == 0:
		return strconv.Itoa(int(d/time.Minute)) + "m"
	default:
		return d.String()
	}
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			IP:                "0.0.0.0",
			Port:              8080,
			ReadHeaderTimeout: defaults.DefaultReadHeaderTimeout,
			ReadTimeout:       defaults.DefaultReadTimeout,
			WriteTimeout:      defaults.DefaultWriteTimeout,
			IdleTimeout:       defaults.DefaultIdleTimeout,
			ShutdownTimeout:   defaults.DefaultShutdownTimeout,
		},

		GraphDuration:       defaults.DefaultGraphDuration,
		ServerGraphDuration: defaults.DefaultServerGraphDuration,
		PingInterval:        defaults.DefaultPingInterval,
		LogFailedPings:      true,

		Storage:   storageconfig.DefaultConfig(),
		Retention: storageconfig.DefaultRetention(),

		Connections: ConnectionConfig{
			MaxPerIP:       defaults.DefaultMaxConnectionsPerIP,
			MaxTotal:       defaults.DefaultMaxConnectionsTotal,
			SendBufferSize: defaults.DefaultSendBufferSize,
		},

		Messages: MessageConfig{
			MaxPerWindow: defaults.DefaultMaxMessagesPerWindow,
			Window:       defaults.DefaultMessageWindow,
			MaxPayload:   defaults.DefaultMaxPayload,
		},

		Ingest: IngestConfig{
			QueueSize:     defaults.DefaultWriteQueueSize,
			TickQueueSize: defaults.DefaultTickQueueSize,
		},

		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},

		ServersFile: defaults.DefaultServersFile,
	}
}
