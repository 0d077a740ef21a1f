package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	sendBufferSize = 64
	// large enough for a maximum-length message of multi-byte runes
	maxFrameSize = 32 * 1024
)

// Client is one websocket connection. Frames are queued on send and written by
// writePump; done closes exactly once when the socket must go away.
type Client struct {
	conn *websocket.Conn
	info ConnInfo
	send chan []byte
	done chan struct{}

	once   sync.Once
	reason string
}

func newClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{
		conn: conn,
		info: info,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// enqueue queues frame without blocking. It reports false when the buffer is
// full; frames for a closing client are discarded.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) kick(reason string) {
	c.once.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

// closeReason is only meaningful once done is closed.
func (c *Client) closeReason() (string, bool) {
	select {
	case <-c.done:
		return c.reason, true
	default:
		return "", false
	}
}

func (c *Client) writePump(wait, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.kick("write_error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.kick("ping_failed")
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, c.reason),
				time.Now().Add(wait))
			return
		}
	}
}
