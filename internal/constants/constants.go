// Package constants provides centralized domain-specific constants
// for playertrack.
package constants

// =============================================================================
// Storage Backends
// =============================================================================

const (
	// BackendSQLite is the embedded modernc sqlite file backend.
	BackendSQLite = "sqlite"

	// BackendDuckDB is the embedded DuckDB file backend.
	BackendDuckDB = "duckdb"

	// BackendMySQL is the networked relational backend.
	BackendMySQL = "mysql"

	// BackendMemory keeps everything in process memory.
	BackendMemory = "memory"
)

// ValidBackends contains all valid storage backend values
var ValidBackends = []string{BackendSQLite, BackendDuckDB, BackendMySQL, BackendMemory}

// IsValidBackend checks if a backend name is valid
func IsValidBackend(b string) bool {
	for _, v := range ValidBackends {
		if v == b {
			return true
		}
	}
	return false
}

// IsEmbeddedBackend reports whether b stores data in a local file.
func IsEmbeddedBackend(b string) bool {
	return b == BackendSQLite || b == BackendDuckDB
}

// =============================================================================
// Server Kinds
// =============================================================================

const (
	// KindPC is a Java edition server.
	KindPC = "PC"

	// KindPE is a Bedrock edition server.
	KindPE = "PE"
)

// ValidKinds contains all valid server kinds
var ValidKinds = []string{KindPC, KindPE}

// IsValidKind checks if a server kind is valid
func IsValidKind(k string) bool {
	return k == KindPC || k == KindPE
}

// =============================================================================
// Message Types
// =============================================================================

const (
	// MessageInit carries the full snapshot sent after a connection opens.
	MessageInit = "init"

	// MessageUpdate carries one poll round.
	MessageUpdate = "update"

	// MessagePing is sent by viewers to check liveness.
	MessagePing = "ping"

	// MessagePong answers MessagePing.
	MessagePong = "pong"

	// MessageSnapshot asks for a fresh init message.
	MessageSnapshot = "snapshot"

	// MessageError reports a rejected request.
	MessageError = "error"
)

// =============================================================================
// Connection States
// =============================================================================

const (
	ConnStateConnecting = "connecting"
	ConnStateAdmitted   = "admitted"
	ConnStateOpen       = "open"
	ConnStateClosed     = "closed"
	ConnStateRejected   = "rejected"
)

// =============================================================================
// Headers
// =============================================================================

const (
	HeaderCFConnectingIP = "CF-Connecting-IP"
	HeaderForwardedFor   = "X-Forwarded-For"
	HeaderOrigin         = "Origin"
	HeaderAuthorization  = "Authorization"
)

// MaxAddressLength bounds the length of a forwarded address.
const MaxAddressLength = 45
