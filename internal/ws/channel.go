package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultHeartbeat is the server ping interval.
	DefaultHeartbeat = 30 * time.Second

	writeWait      = 10 * time.Second
	maxMessageSize = 32 << 10
	sendBuffer     = 32
)

// Channel wraps one websocket connection with a buffered outbound queue.
// A single writer goroutine drains the queue, so frames to a peer go out
// in the order they were queued.
type Channel struct {
	conn      *websocket.Conn
	send      chan Frame
	heartbeat time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

func NewChannel(conn *websocket.Conn, heartbeat time.Duration) *Channel {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	c := &Channel{
		conn:      conn,
		send:      make(chan Frame, sendBuffer),
		heartbeat: heartbeat,
		done:      make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send queues a frame for delivery. It reports false when the channel is
// closed or the peer is not draining its queue; the caller should drop
// the peer rather than let a stall reorder or block other traffic.
func (c *Channel) Send(f Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close shuts the channel down. Safe to call from any goroutine, any
// number of times.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Channel) writePump() {
	ticker := time.NewTicker(c.heartbeat)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// ReadLoop feeds inbound frames to fn until the connection drops. A peer
// that stays silent past two heartbeat intervals is considered gone.
func (c *Channel) ReadLoop(fn func(Frame)) error {
	wait := 2 * c.heartbeat
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.Close()
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wait))
		fn(f)
	}
}
