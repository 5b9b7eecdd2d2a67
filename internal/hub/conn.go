package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/playertrack/internal/constants"
)

// State is the lifecycle state of a viewer connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return constants.ConnStateConnecting
	case StateOpen:
		return constants.ConnStateOpen
	default:
		return constants.ConnStateClosed
	}
}

// =============================================================================
// Conn
// =============================================================================

// Conn is the broadcast side of one viewer connection. Frames queued with
// TrySend are drained by the connection's writer goroutine through
// SendChan.
//
// Conn is safe for concurrent use.
type Conn struct {
	// Immutable fields (no lock needed)
	ID         uint64
	RemoteAddr string
	OpenedAt   time.Time

	state atomic.Int32

	// Send channel - protected by sendMu
	sendMu sync.RWMutex
	sendCh chan []byte

	done      chan struct{}
	closeOnce sync.Once
	onClose   func(*Conn)
}

func newConn(id uint64, remote string, bufferSize int) *Conn {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Conn{
		ID:         id,
		RemoteAddr: remote,
		OpenedAt:   time.Now(),
		sendCh:     make(chan []byte, bufferSize),
		done:       make(chan struct{}),
	}
}

// State returns the current state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// MarkOpen moves a connecting connection to open. It reports false if the
// connection was already closed.
func (c *Conn) MarkOpen() bool {
	return c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// TrySend queues data without blocking. It reports false when the
// connection is not open or its queue is full.
func (c *Conn) TrySend(data []byte) bool {
	if c.State() != StateOpen {
		return false
	}

	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.sendCh == nil {
		return false
	}

	select {
	case c.sendCh <- data:
		return true
	default:
		return false
	}
}

// SendChan returns the queue drained by the writer goroutine. It is
// closed when the connection closes.
func (c *Conn) SendChan() <-chan []byte {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	return c.sendCh
}

// Done is closed when the connection closes.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Pending returns the number of queued frames.
func (c *Conn) Pending() int {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	return len(c.sendCh)
}

// Close marks the connection closed and releases its queue. It is
// idempotent; queued frames are discarded.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))

		c.sendMu.Lock()
		close(c.sendCh)
		c.sendCh = nil
		c.sendMu.Unlock()

		close(c.done)

		if c.onClose != nil {
			c.onClose(c)
		}
	})
}
