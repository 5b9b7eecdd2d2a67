// Package governor decides which viewer connections are admitted.
//
// Admission runs three checks in order and the first failure rejects the
// connection:
//
//  1. origin policy
//  2. per-address limit
//  3. global limit
//
// An admitted connection holds a Ticket until it closes. Releasing the
// ticket frees its slots; addresses whose count drops to zero are
// forgotten. A Ticket also meters inbound messages.
package governor

import (
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xtxerr/playertrack/internal/constants"
	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/logging"
)

var log = logging.Component("governor")

// Config holds the admission policy.
type Config struct {
	MaxPerIP       int
	MaxTotal       int
	AllowedOrigins []string
	TrustProxy     bool

	// Inbound message budget per connection.
	MaxMessagesPerWindow int
	MessageWindow        time.Duration
}

// Request is what the governor needs to know about an inbound connection.
type Request struct {
	Origin     string
	Host       string
	RemoteAddr string
	Header     http.Header
}

// RequestFrom extracts a Request from an HTTP upgrade request.
func RequestFrom(r *http.Request) Request {
	return Request{
		Origin:     r.Header.Get(constants.HeaderOrigin),
		Host:       r.Host,
		RemoteAddr: r.RemoteAddr,
		Header:     r.Header,
	}
}

// Stats is a point-in-time view of the governor.
type Stats struct {
	Open      int
	Addresses int
	Admitted  int64
	Rejected  map[string]int64
}

// Governor tracks admitted connections.
//
// Governor is safe for concurrent use.
type Governor struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	perIP    map[string]int
	open     int
	admitted int64
	rejected map[string]int64
}

// New creates a governor.
func New(cfg Config) *Governor {
	return &Governor{
		cfg:      cfg,
		now:      time.Now,
		perIP:    make(map[string]int),
		rejected: make(map[string]int64),
	}
}

// WithClock replaces the clock used for tickets and message windows.
func (g *Governor) WithClock(now func() time.Time) *Governor {
	g.now = now
	return g
}

// Admit runs the admission checks. On success the caller owns the
// returned ticket and must Release it when the connection closes.
func (g *Governor) Admit(req Request) (*Ticket, error) {
	addr := g.ResolveAddress(req.Header, req.RemoteAddr)

	if !g.OriginAllowed(req.Origin, req.Host) {
		g.reject("origin")
		log.Warn("blocked connection due to origin", "remote", addr, "origin", req.Origin)
		return nil, errors.ErrOriginNotAllowed
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.perIP[addr]+1 > g.cfg.MaxPerIP {
		g.rejectLocked("per_ip")
		log.Warn("rejected connection: per-address limit", "remote", addr, "limit", g.cfg.MaxPerIP)
		return nil, errors.ErrPerIPLimit
	}
	if g.open >= g.cfg.MaxTotal {
		g.rejectLocked("global")
		log.Warn("rejected connection: global limit", "remote", addr, "limit", g.cfg.MaxTotal)
		return nil, errors.ErrGlobalLimit
	}

	g.perIP[addr]++
	g.open++
	g.admitted++

	now := g.now()
	return &Ticket{
		g:        g,
		Addr:     addr,
		OpenedAt: now,
		limiter:  NewLimiter(g.cfg.MaxMessagesPerWindow, g.cfg.MessageWindow, now),
	}, nil
}

func (g *Governor) release(addr string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n := g.perIP[addr]; n <= 1 {
		delete(g.perIP, addr)
	} else {
		g.perIP[addr] = n - 1
	}
	if g.open > 0 {
		g.open--
	}
}

func (g *Governor) reject(reason string) {
	g.mu.Lock()
	g.rejectLocked(reason)
	g.mu.Unlock()
}

func (g *Governor) rejectLocked(reason string) {
	g.rejected[reason]++
}

// Open returns the number of admitted connections.
func (g *Governor) Open() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// PerIP returns the number of admitted connections from addr.
func (g *Governor) PerIP(addr string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.perIP[addr]
}

// Stats returns a snapshot of the counters.
func (g *Governor) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	rejected := make(map[string]int64, len(g.rejected))
	for k, v := range g.rejected {
		rejected[k] = v
	}
	return Stats{
		Open:      g.open,
		Addresses: len(g.perIP),
		Admitted:  g.admitted,
		Rejected:  rejected,
	}
}

// =============================================================================
// Origin policy
// =============================================================================

// OriginAllowed applies the origin policy. An absent origin is always
// allowed. With an allow-list the origin must be listed; without one it
// must name the request's own host over http or https.
func (g *Governor) OriginAllowed(origin, host string) bool {
	if origin == "" {
		return true
	}
	if len(g.cfg.AllowedOrigins) > 0 {
		return slices.Contains(g.cfg.AllowedOrigins, origin)
	}
	if host == "" {
		return false
	}
	return origin == "http://"+host || origin == "https://"+host
}

// =============================================================================
// Address resolution
// =============================================================================

// ResolveAddress returns the client address used for per-address limits.
// Forwarding headers are only consulted when proxies are trusted, and only
// values that parse as an IP address are accepted.
func (g *Governor) ResolveAddress(h http.Header, remote string) string {
	if g.cfg.TrustProxy && h != nil {
		if ip := strings.TrimSpace(h.Get(constants.HeaderCFConnectingIP)); validIP(ip) {
			return ip
		}
		if xff := h.Get(constants.HeaderForwardedFor); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); validIP(first) {
				return first
			}
		}
	}
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}

// validIP reports whether s parses as an IPv4 or IPv6 address.
func validIP(s string) bool {
	if s == "" || len(s) > constants.MaxAddressLength {
		return false
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}
