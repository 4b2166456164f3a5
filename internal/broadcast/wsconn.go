package broadcast

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// WSConn adapts a gorilla websocket connection to the hub's Conn interface.
// Gorilla connections allow only one concurrent writer, so every send takes
// the write mutex and a fresh write deadline.
type WSConn struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// NewWSConn wraps an upgraded websocket connection.
func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

// Send writes one text message under the write deadline.
func (c *WSConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close closes the underlying websocket connection.
func (c *WSConn) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close websocket: %w", err)
	}
	return nil
}
