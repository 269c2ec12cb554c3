package webserver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zsprackett/editor-companion/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var errConnClosed = errors.New("websocket closed")

// wsConn adapts one viewer websocket to events.Conn. Writes are serialized;
// a failed write closes the socket so the read loop ends too.
type wsConn struct {
	w http.ResponseWriter
	r *http.Request

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (c *wsConn) Accept(ctx context.Context) error {
	conn, err := upgrader.Upgrade(c.w, c.r, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(maxMessageSize)
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *wsConn) Send(ctx context.Context, e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return errConnClosed
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(e); err != nil {
		c.closeLocked()
		return err
	}
	return nil
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		c.closeLocked()
		return err
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *wsConn) closeLocked() {
	if c.closed || c.conn == nil {
		return
	}
	c.closed = true
	c.conn.Close()
}

// readLoop discards client frames and keeps the read deadline fresh on
// pongs. It returns when the peer goes away.
func (c *wsConn) readLoop() {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsConn) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// handleWS subscribes a viewer to the live log of one project.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("project")
	if _, err := s.store.GetProject(key); err != nil {
		s.writeStoreError(w, err)
		return
	}

	c := &wsConn{w: w, r: r}
	if err := s.hub.Connect(r.Context(), key, c); err != nil {
		s.logger.Warn("webserver: websocket upgrade failed", "project", key, "err", err)
		return
	}
	s.logger.Debug("webserver: viewer connected", "project", key, "remote", r.RemoteAddr)
	defer func() {
		s.hub.Disconnect(key, c)
		c.Close()
		s.logger.Debug("webserver: viewer disconnected", "project", key, "remote", r.RemoteAddr)
	}()

	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(done)
	c.readLoop()
}
