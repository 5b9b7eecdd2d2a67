package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	defaults "github.com/xtxerr/playertrack/config"
	"github.com/xtxerr/playertrack/internal/constants"
	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/governor"
	"github.com/xtxerr/playertrack/internal/hub"
	"github.com/xtxerr/playertrack/internal/logging"
	"github.com/xtxerr/playertrack/internal/wire"
)

// =============================================================================
// Connection Handling
// =============================================================================

// handleWS admits, upgrades and serves one viewer.
func (s *Server) handleWS(c *gin.Context) {
	r := c.Request

	ticket, admitErr := s.governor.Admit(governor.RequestFrom(r))

	ws, err := s.upgrader.Upgrade(c.Writer, r, nil)
	if err != nil {
		// The upgrader already answered with an HTTP error.
		log.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		if ticket != nil {
			ticket.Release()
		}
		return
	}

	if admitErr != nil {
		if !errors.IsAdmission(admitErr) {
			log.Error("admission failed", "remote", r.RemoteAddr, "error", admitErr)
		}
		closeWith(ws, admitErr)
		ws.Close()
		return
	}
	defer ticket.Release()

	ws.SetReadLimit(s.cfg.MaxPayload)
	conn := s.hub.Register(ticket.Addr)
	clog := logging.FromContext(logging.ContextWithConn(r.Context(), conn.ID, ticket.Addr), log)
	clog.Info("viewer connected")

	// The snapshot is queued before any update can be.
	err = s.state.Join(func(init []byte) error {
		if !conn.MarkOpen() {
			return errors.ErrConnClosed
		}
		return s.hub.SendRaw(conn, init)
	})
	if err != nil {
		clog.Error("initial snapshot failed", "error", err)
		conn.Close()
		ws.Close()
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(ws, conn, clog)
	}()

	s.readPump(ws, conn, ticket, clog)

	// Disconnect - close the connection and wait for the writer
	conn.Close()
	<-done
	clog.Info("viewer disconnected")
}

// readPump handles inbound frames until the peer goes away or breaks the
// message budget.
func (s *Server) readPump(ws *websocket.Conn, conn *hub.Conn, ticket *governor.Ticket, clog *slog.Logger) {
	ws.SetReadDeadline(time.Now().Add(defaults.DefaultPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(defaults.DefaultPongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				clog.Debug("read failed", "error", err)
			}
			return
		}

		if err := ticket.Allow(); err != nil {
			clog.Warn("viewer exceeded message budget")
			closeWith(ws, err)
			return
		}

		msg, err := wire.Decode(data)
		if err != nil {
			s.hub.Send(conn, wire.NewErrorFromErr(err))
			continue
		}

		switch msg.Type {
		case constants.MessagePing:
			s.hub.Send(conn, wire.NewPong())
		case constants.MessageSnapshot:
			s.state.Join(func(init []byte) error {
				return s.hub.SendRaw(conn, init)
			})
		}
	}
}

// writePump drains the connection's queue and keeps the peer alive.
func (s *Server) writePump(ws *websocket.Conn, conn *hub.Conn, clog *slog.Logger) {
	ticker := time.NewTicker(defaults.DefaultPingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	sendCh := conn.SendChan()
	if sendCh == nil {
		return
	}

	for {
		select {
		case data, ok := <-sendCh:
			ws.SetWriteDeadline(time.Now().Add(defaults.DefaultWriteWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				// Close() is idempotent, so it's safe to call from both goroutines.
				clog.Debug("write failed, closing connection", "error", err)
				conn.Close()
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(defaults.DefaultWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// closeWith sends a close frame carrying the code and reason of err.
func closeWith(ws *websocket.Conn, err error) {
	msg := websocket.FormatCloseMessage(errors.CloseCode(err), errors.CloseReason(err))
	if werr := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(defaults.DefaultWriteWait)); werr != nil {
		log.Debug("close frame not sent", "error", werr)
	}
}
