// Package hub fans serialized updates out to viewer connections.
//
// Publish encodes a message once and queues the same bytes on every open
// connection. A connection that is not open, or whose queue is full, is
// skipped for that message only; Publish never blocks on a slow viewer.
package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/logging"
)

var log = logging.Component("hub")

// Delivery reports the outcome of one publish.
type Delivery struct {
	Sent    int
	Skipped int
}

// Stats holds cumulative hub statistics.
type Stats struct {
	Connections int
	Published   int64
	Sent        int64
	Skipped     int64
}

// Hub tracks viewer connections.
//
// Hub is safe for concurrent use.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint64]*Conn
	bufferSize int

	nextID    atomic.Uint64
	published atomic.Int64
	sent      atomic.Int64
	skipped   atomic.Int64
}

// New creates a hub whose connections queue up to bufferSize frames.
func New(bufferSize int) *Hub {
	return &Hub{
		conns:      make(map[uint64]*Conn),
		bufferSize: bufferSize,
	}
}

// Register creates a tracked connection in the connecting state. Closing
// the connection removes it from the hub.
func (h *Hub) Register(remote string) *Conn {
	c := newConn(h.nextID.Add(1), remote, h.bufferSize)
	c.onClose = h.remove

	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()

	log.Debug("connection registered", "conn_id", c.ID, "remote", remote)
	return c
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c.ID)
	h.mu.Unlock()
}

// Count returns the number of tracked connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// snapshot copies the connection set so sends happen without the lock.
func (h *Hub) snapshot() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Publish encodes v once and queues it on every open connection.
func (h *Hub) Publish(v any) (Delivery, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Delivery{}, fmt.Errorf("encode broadcast: %w", err)
	}
	return h.PublishRaw(data), nil
}

// PublishRaw queues pre-encoded data on every open connection.
func (h *Hub) PublishRaw(data []byte) Delivery {
	var d Delivery
	for _, c := range h.snapshot() {
		if c.TrySend(data) {
			d.Sent++
		} else {
			d.Skipped++
		}
	}

	h.published.Add(1)
	h.sent.Add(int64(d.Sent))
	h.skipped.Add(int64(d.Skipped))
	if d.Skipped > 0 {
		log.Debug("broadcast skipped connections", "sent", d.Sent, "skipped", d.Skipped)
	}
	return d
}

// Send encodes v and queues it on c alone.
func (h *Hub) Send(c *Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return h.SendRaw(c, data)
}

// SendRaw queues pre-encoded data on c alone.
func (h *Hub) SendRaw(c *Conn, data []byte) error {
	if c.State() != StateOpen {
		return errors.ErrConnClosed
	}
	if !c.TrySend(data) {
		return errors.ErrQueueFull
	}
	return nil
}

// CloseAll closes every tracked connection.
func (h *Hub) CloseAll() {
	for _, c := range h.snapshot() {
		c.Close()
	}
}

// GetStats returns cumulative statistics.
func (h *Hub) GetStats() Stats {
	return Stats{
		Connections: h.Count(),
		Published:   h.published.Load(),
		Sent:        h.sent.Load(),
		Skipped:     h.skipped.Load(),
	}
}
