package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps one live browser socket. WebSocket writes must be
// serialized, so every outbound frame goes through a buffered channel
// drained by a single writer goroutine.
//
// A connection carries no user identity until the client sends an identify
// frame; the Registry is the only component that holds it beyond a
// transient reference during dispatch.
type Connection struct {
	conn         *websocket.Conn
	sendCh       chan []byte
	writeTimeout time.Duration

	userID int64
	bound  bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex
}

// NewConnection wraps an upgraded socket and starts its writer goroutine.
func NewConnection(conn *websocket.Conn, sendBuffer int, writeTimeout time.Duration) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = 100
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		sendCh:       make(chan []byte, sendBuffer),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the single writer for the underlying socket.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.cancel()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// SendRaw queues a frame for delivery. The send never blocks the caller:
// when the buffer is full the frame is dropped and ErrSendBufferFull
// returned so the caller can log it.
func (c *Connection) SendRaw(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.sendCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// IsOpen reports whether the connection can still accept frames.
func (c *Connection) IsOpen() bool {
	return c.ctx.Err() == nil
}

// Close tears down the socket. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Bind associates the connection with a user identity. Rebinding is
// allowed; the handler deregisters the old binding first.
func (c *Connection) Bind(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.bound = true
}

// User returns the bound user identity, if any.
func (c *Connection) User() (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.bound
}
