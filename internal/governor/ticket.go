package governor

import (
	"sync"
	"time"

	"github.com/xtxerr/playertrack/internal/errors"
)

// Ticket is the admission state of one connection.
type Ticket struct {
	g *Governor

	// Addr is the resolved client address.
	Addr string

	// OpenedAt is the admission time.
	OpenedAt time.Time

	mu       sync.Mutex
	limiter  *Limiter
	released bool
	once     sync.Once
}

// Allow meters one inbound message. It returns errors.ErrRateLimited
// once the budget of the current window is exhausted.
func (t *Ticket) Allow() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return errors.ErrConnClosed
	}
	return t.limiter.Allow(t.g.now())
}

// Release frees the ticket's slots. It is idempotent.
func (t *Ticket) Release() {
	t.once.Do(func() {
		t.mu.Lock()
		t.released = true
		t.mu.Unlock()
		t.g.release(t.Addr)
	})
}

// =============================================================================
// Limiter
// =============================================================================

// Limiter is a fixed-window message counter. The window restarts at the
// first message arriving window or more after the current one began.
//
// Limiter is not safe for concurrent use.
type Limiter struct {
	max         int
	window      time.Duration
	count       int
	windowStart time.Time
}

// NewLimiter creates a limiter allowing limit messages per window.
func NewLimiter(limit int, window time.Duration, now time.Time) *Limiter {
	return &Limiter{max: limit, window: window, windowStart: now}
}

// Allow counts one message at now.
func (l *Limiter) Allow(now time.Time) error {
	if now.Sub(l.windowStart) >= l.window {
		l.count = 0
		l.windowStart = now
	}
	l.count++
	if l.count > l.max {
		return errors.ErrRateLimited
	}
	return nil
}

// Count returns the messages counted in the current window.
func (l *Limiter) Count() int {
	return l.count
}
