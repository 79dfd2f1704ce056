package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/errors"
)

const (
	writeTimeout   = 10 * time.Second
	readTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4 << 10
	sendBuffer     = 256
)

// Conn is one authenticated client connection. Its send channel carries both
// action replies and relayed session events; writePump is the only writer on
// the socket.
type Conn struct {
	sock *websocket.Conn
	send chan []byte
	user domain.User

	handler *Handler

	mu        sync.Mutex
	sessionID string
	closed    bool
}

func newConn(sock *websocket.Conn, user domain.User, h *Handler) *Conn {
	return &Conn{
		sock:    sock,
		send:    make(chan []byte, sendBuffer),
		user:    user,
		handler: h,
	}
}

func (c *Conn) session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Conn) setSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Conn) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// enqueue hands one frame to writePump. A full buffer means the reader is
// gone or hopelessly slow, so the connection is shut down instead of
// blocking the caller.
func (c *Conn) enqueue(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- b:
	default:
		slog.Warn("ws: send buffer full, closing connection", "user", c.user.UserID)
		c.closeLocked()
	}
}

func (c *Conn) reply(r Response) {
	b, err := json.Marshal(r)
	if err != nil {
		slog.Error("ws: marshal response", "action", r.Action, "error", err)
		return
	}
	c.enqueue(b)
}

// readPump consumes client actions until the connection drops, then reports
// the disconnect so the session can mark the participant offline.
func (c *Conn) readPump(ctx context.Context) {
	defer func() {
		sessionID := c.session()
		c.handler.hub.leave(c)
		c.close()

		if sessionID != "" {
			c.handler.orc.Disconnect(sessionID, c.user.UserID)
		}
	}()

	c.sock.SetReadLimit(maxMessageSize)
	c.sock.SetReadDeadline(time.Now().Add(readTimeout))
	c.sock.SetPongHandler(func(string) error {
		c.sock.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, raw, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("ws: unexpected close", "user", c.user.UserID, "error", err)
			}
			return
		}
		c.sock.SetReadDeadline(time.Now().Add(readTimeout))

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(fail("", errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("malformed message"))))
			continue
		}

		c.reply(c.handler.dispatch(ctx, c, msg))
	}
}

// writePump is the socket's single writer: queued frames plus keepalive
// pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case b, open := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !open {
				c.sock.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}

		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
