// Package signal is the WebSocket transport: it upgrades, gates and
// pumps one socket per channel membership and feeds decoded events into
// the hub.
package signal

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/imoes/agora/internal/core"
)

// wsConn adapts one gorilla socket to core.Conn. Outgoing frames go
// through a buffered channel drained by the write pump, so a slow
// client makes TrySend fail instead of blocking the dispatcher.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSConn(ws *websocket.Conn, queueSize int) *wsConn {
	return &wsConn{
		conn: ws,
		send: make(chan core.Frame, queueSize),
	}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
