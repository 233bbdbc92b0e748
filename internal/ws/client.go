package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Client.Send between dial attempts.
var ErrNotConnected = errors.New("ws: not connected")

// Client is the dialing side of a channel, used by the AI player and by
// tooling. It redials with exponential backoff when the connection
// drops and calls OnConnect after every successful dial so the owner
// can rejoin its match; the session's seq dedupe makes the resulting
// resends harmless.
type Client struct {
	URL     string
	Backoff Backoff

	// OnConnect runs after each successful dial, before frames flow.
	OnConnect func(c *Client)

	// OnFrame receives every inbound frame except transport pings.
	OnFrame func(f Frame)

	mu   sync.Mutex
	conn *websocket.Conn
}

// Run dials and reads until the context is cancelled or the reconnect
// budget is spent.
func (c *Client) Run(ctx context.Context) error {
	bo := c.Backoff
	if bo.Base <= 0 {
		bo = DefaultBackoff()
	}
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
		if err != nil {
			if werr := c.wait(ctx, &bo, err); werr != nil {
				return werr
			}
			continue
		}
		bo.Reset()
		c.setConn(conn)
		if c.OnConnect != nil {
			c.OnConnect(c)
		}
		err = c.read(ctx, conn)
		c.setConn(nil)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if werr := c.wait(ctx, &bo, err); werr != nil {
			return werr
		}
	}
}

// wait sleeps out the next backoff step, or reports the terminal error
// once attempts run out.
func (c *Client) wait(ctx context.Context, bo *Backoff, cause error) error {
	d, ok := bo.Next()
	if !ok {
		return fmt.Errorf("ws: reconnect attempts exhausted: %w", cause)
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) read(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			_ = conn.Close()
			return err
		}
		if f.Type == TypePing {
			_ = c.Send(Frame{Type: TypePong})
			continue
		}
		if c.OnFrame != nil {
			c.OnFrame(f)
		}
	}
}

// Send writes a frame on the current connection.
func (c *Client) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}
