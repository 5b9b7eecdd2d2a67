package hub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/xtxerr/playertrack/internal/errors"
	ptest "github.com/xtxerr/playertrack/internal/testing"
)

// countingPayload counts how often it is encoded.
type countingPayload struct {
	calls *int
}

func (p countingPayload) MarshalJSON() ([]byte, error) {
	*p.calls++
	return []byte(`{"type":"update"}`), nil
}

func open(t *testing.T, h *Hub, remote string) *Conn {
	t.Helper()
	c := h.Register(remote)
	if !c.MarkOpen() {
		t.Fatal("MarkOpen() = false")
	}
	return c
}

func TestHub_PublishEncodesOnce(t *testing.T) {
	h := New(4)
	conns := []*Conn{open(t, h, "a"), open(t, h, "b"), open(t, h, "c")}

	calls := 0
	d, err := h.Publish(countingPayload{calls: &calls})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("payload encoded %d times, want 1", calls)
	}
	if d.Sent != 3 || d.Skipped != 0 {
		t.Errorf("Delivery = %+v", d)
	}

	for _, c := range conns {
		got := <-c.SendChan()
		if string(got) != `{"type":"update"}` {
			t.Errorf("conn %d got %s", c.ID, got)
		}
	}
}

func TestHub_SkipsNotOpenAndFull(t *testing.T) {
	h := New(1)
	ready := open(t, h, "ready")
	full := open(t, h, "full")
	connecting := h.Register("connecting")
	closed := open(t, h, "closed")
	closed.Close()

	if !full.TrySend([]byte("x")) {
		t.Fatal("priming send failed")
	}

	d := h.PublishRaw([]byte(`{}`))
	if d.Sent != 1 || d.Skipped != 2 {
		t.Errorf("Delivery = %+v, want 1 sent and 2 skipped", d)
	}
	if ready.Pending() != 1 || connecting.Pending() != 0 {
		t.Errorf("pending ready=%d connecting=%d", ready.Pending(), connecting.Pending())
	}
	if h.Count() != 3 {
		t.Errorf("Count() = %d, want 3 (closed conn removed)", h.Count())
	}

	// The full connection recovers once drained.
	<-full.SendChan()
	if d := h.PublishRaw([]byte(`{}`)); d.Sent != 2 {
		t.Errorf("after drain Delivery = %+v", d)
	}
}

func TestHub_Send(t *testing.T) {
	h := New(1)
	c := h.Register("a")

	if err := h.Send(c, map[string]string{"type": "init"}); !errors.Is(err, errors.ErrConnClosed) {
		t.Errorf("Send() before open = %v", err)
	}

	c.MarkOpen()
	if err := h.Send(c, map[string]string{"type": "init"}); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if err := h.Send(c, map[string]string{"type": "pong"}); !errors.Is(err, errors.ErrQueueFull) {
		t.Errorf("Send() on full queue = %v", err)
	}

	var msg map[string]string
	if err := json.Unmarshal(<-c.SendChan(), &msg); err != nil || msg["type"] != "init" {
		t.Errorf("queued %v, %v", msg, err)
	}

	if err := h.Send(c, func() {}); err == nil {
		t.Error("expected encode error")
	}
}

func TestConn_CloseIdempotent(t *testing.T) {
	h := New(2)
	c := open(t, h, "a")

	c.Close()
	c.Close()

	if c.State() != StateClosed || c.State().String() != "closed" {
		t.Errorf("State() = %v", c.State())
	}
	if c.MarkOpen() {
		t.Error("closed conn reopened")
	}
	if c.TrySend([]byte("x")) {
		t.Error("send to closed conn succeeded")
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed")
	}
	if c.SendChan() != nil {
		t.Error("send channel should be released")
	}
}

func TestHub_CloseAll(t *testing.T) {
	h := New(2)
	for i := 0; i < 5; i++ {
		open(t, h, "a")
	}
	h.CloseAll()
	if h.Count() != 0 {
		t.Errorf("Count() = %d after CloseAll", h.Count())
	}
}

func TestHub_ConcurrentPublishAndClose(t *testing.T) {
	h := New(8)
	conns := make([]*Conn, 20)
	for i := range conns {
		conns[i] = open(t, h, "a")
	}

	gt := ptest.NewGoroutineTest(t)
	for i := 0; i < 10; i++ {
		gt.Go(func(ctx context.Context) error {
			for j := 0; j < 50; j++ {
				h.PublishRaw([]byte(`{}`))
			}
			return nil
		})
	}
	for _, c := range conns {
		c := c
		gt.Go(func(ctx context.Context) error {
			c.Close()
			return nil
		})
	}
	gt.Wait()

	stats := h.GetStats()
	if stats.Published != 500 || stats.Connections != 0 {
		t.Errorf("GetStats() = %+v", stats)
	}
}
