package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// clientConn serializes writes to one websocket connection. gorilla allows a
// single concurrent writer, so every write path goes through the mutex.
type clientConn struct {
	rawConn   *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
}

func (c *clientConn) write(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteMessage(mt, data)
}

func (c *clientConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteJSON(v)
}

func (c *clientConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rawConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// close is idempotent; the reader, the pinger, and the room pruner can all
// race to it.
func (c *clientConn) close() error {
	c.closeOnce.Do(func() {
		_ = c.rawConn.Close()
	})
	return nil
}
