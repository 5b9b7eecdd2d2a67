// Package config provides configuration defaults for playertrack.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: http.listen, env SITE_IP + SITE_PORT
	DefaultListenAddress = "0.0.0.0:8080"

	// DefaultReadHeaderTimeout bounds how long a client may take to send headers.
	// Override via config: http.read_header_timeout
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultReadTimeout bounds reading a full request.
	// Override via config: http.read_timeout
	DefaultReadTimeout = 30 * time.Second

	// DefaultWriteTimeout bounds writing a response. WebSocket connections
	// are hijacked and manage their own deadlines.
	// Override via config: http.write_timeout
	DefaultWriteTimeout = 30 * time.Second

	// DefaultIdleTimeout is the keep-alive idle timeout.
	// Override via config: http.idle_timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is how long in-flight requests get on shutdown.
	// Override via config: http.shutdown_timeout
	DefaultShutdownTimeout = 10 * time.Second
)

// =============================================================================
// Sampling Defaults
// =============================================================================

const (
	// DefaultGraphDuration is the retention horizon D. Samples older than
	// now - D are swept and windows never cover more than D.
	// Override via config: graph_duration, env GRAPH_DURATION (ms)
	DefaultGraphDuration = 12 * time.Hour

	// DefaultServerGraphDuration is the span of the short per-server graph.
	// Override via config: server_graph_duration, env SERVER_GRAPH_DURATION (ms)
	DefaultServerGraphDuration = 3 * time.Minute

	// DefaultPingInterval is the poll round period.
	// Window capacity is derived as ceil(graph_duration / ping_interval).
	// Override via config: ping_interval, env PING_ALL_INTERVAL (ms)
	DefaultPingInterval = 3 * time.Second
)

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultStorageType selects the backend.
	// Values: sqlite, duckdb, mysql, memory
	// Override via config: storage.type, env DB_TYPE
	DefaultStorageType = "sqlite"

	// DefaultDatabasePath is the embedded database file.
	// Override via config: storage.path
	DefaultDatabasePath = "database.sql"

	// DefaultMySQLPort is used when storage.mysql.port is unset.
	DefaultMySQLPort = 3306

	// DefaultMySQLDatabase is the schema name for the networked backend.
	DefaultMySQLDatabase = "minetrack_data"

	// DefaultMaxOpenConns caps the connection pool of networked backends.
	// Override via config: storage.max_open_conns
	DefaultMaxOpenConns = 10

	// DefaultMaxIdleConns is the idle pool size.
	// Override via config: storage.max_idle_conns
	DefaultMaxIdleConns = 5

	// DefaultConnMaxLifetime recycles pooled connections.
	// Override via config: storage.conn_max_lifetime
	DefaultConnMaxLifetime = 5 * time.Minute

	// DefaultQueryTimeout bounds a single storage call.
	// Override via config: storage.query_timeout
	DefaultQueryTimeout = 30 * time.Second

	// DefaultBusyTimeoutMs is the sqlite busy timeout.
	DefaultBusyTimeoutMs = 5000
)

// =============================================================================
// Daily Copy Defaults
// =============================================================================

const (
	// DefaultDailyCopyDir is where per-day copies of the sample table go.
	// Override via config: storage.daily_copy.dir
	DefaultDailyCopyDir = "."

	// DefaultDailyCopyLayout is the time layout used as the copy period key:
	// day-month-year without padding, as in database_copy_7-3-2026.sql.
	DefaultDailyCopyLayout = "2-1-2006"
)

// =============================================================================
// Retention Defaults
// =============================================================================

const (
	// DefaultRetentionInterval is how often expired samples are swept.
	// Zero disables recurring sweeps; the startup sweep always runs.
	// Override via config: retention.interval, env RETENTION_INTERVAL (ms)
	DefaultRetentionInterval = time.Hour

	// DefaultArchiveDir is where swept samples are exported when archiving.
	// Override via config: retention.archive.dir
	DefaultArchiveDir = "archive"
)

// =============================================================================
// Connection Defaults
// =============================================================================

const (
	// DefaultMaxConnectionsPerIP caps simultaneous viewers per address.
	// Override via config: connections.max_per_ip, env CONNECTION_MAX_PER_IP
	DefaultMaxConnectionsPerIP = 20

	// DefaultMaxConnectionsTotal caps simultaneous viewers.
	// Override via config: connections.max_total, env CONNECTION_MAX_TOTAL
	DefaultMaxConnectionsTotal = 500

	// DefaultMaxMessagesPerWindow is the inbound message budget per window.
	// Override via config: messages.max_per_window, env WS_MAX_MESSAGES
	DefaultMaxMessagesPerWindow = 10

	// DefaultMessageWindow is the message budget window.
	// Override via config: messages.window, env WS_WINDOW_MS
	DefaultMessageWindow = time.Minute

	// DefaultMaxPayload caps a single inbound frame in bytes.
	// Override via config: messages.max_payload, env WS_MAX_PAYLOAD
	DefaultMaxPayload = 1024

	// DefaultSendBufferSize is the capacity of each connection's send queue.
	// A connection whose queue is full misses broadcasts until it drains.
	// Override via config: connections.send_buffer_size
	DefaultSendBufferSize = 64

	// DefaultWriteWait bounds a single frame write.
	DefaultWriteWait = 10 * time.Second

	// DefaultPongWait is how long a viewer may stay silent before it is dropped.
	DefaultPongWait = 60 * time.Second

	// DefaultPingPeriod must be shorter than DefaultPongWait.
	DefaultPingPeriod = (DefaultPongWait * 9) / 10
)

// =============================================================================
// Ingestion Defaults
// =============================================================================

const (
	// DefaultWriteQueueSize is the per-server storage write queue capacity.
	// Override via config: ingest.queue_size
	DefaultWriteQueueSize = 256

	// DefaultTickQueueSize is how many poll rounds may wait for processing.
	// Override via config: ingest.tick_queue_size
	DefaultTickQueueSize = 16

	// DefaultReconcileConcurrency bounds parallel record lookups at startup.
	DefaultReconcileConcurrency = 8

	// DefaultMaxIngestBody caps the ingest request body in bytes.
	DefaultMaxIngestBody = 1 << 20

	// DefaultAuthFailureLimit is how many bad ingest tokens an address may
	// send per DefaultAuthFailureWindow before it is refused outright.
	DefaultAuthFailureLimit = 5

	// DefaultAuthFailureWindow is the failed authentication window.
	DefaultAuthFailureWindow = time.Minute
)

// =============================================================================
// Roster Defaults
// =============================================================================

const (
	// DefaultServersFile is the roster file looked up when none is configured.
	// Override via config: servers_file, env SERVERS_FILE
	DefaultServersFile = "servers.json"
)
