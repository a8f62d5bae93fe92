package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"notecollab/internal/models"
)

// sendBuffer bounds the per-connection outbound queue. A slow reader drops
// frames instead of blocking the broadcaster.
const sendBuffer = 64

// Client is one authenticated connection. Frames queued through Send are
// delivered in order by the write pump.
type Client struct {
	ID   string
	User models.User
	Conn *websocket.Conn

	send chan models.WSFrame
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	hook func(models.WSFrame)
}

func NewClient(conn *websocket.Conn, user models.User) *Client {
	return &Client{
		ID:   uuid.NewString(),
		User: user,
		Conn: conn,
		send: make(chan models.WSFrame, sendBuffer),
		done: make(chan struct{}),
	}
}

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.WSFrame)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send queues a frame for delivery. It never blocks; if the queue is full the
// frame is dropped.
func (c *Client) Send(frame models.WSFrame) {
	c.mu.Lock()
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(frame)
		return
	}

	select {
	case c.send <- frame:
	case <-c.done:
	default:
	}
}

// WritePump drains the outbound queue onto the connection until the client is
// closed or a write fails. Run it in its own goroutine.
func (c *Client) WritePump() {
	for {
		select {
		case frame := <-c.send:
			if c.Conn == nil {
				continue
			}
			if err := c.Conn.WriteJSON(frame); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}
