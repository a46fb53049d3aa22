package session

import (
	"sync"

	"github.com/gorilla/websocket"

	"codecollab/internal/models"
)

// Client is one authenticated websocket connection. A client belongs to at
// most one room at a time; the Registry maintains that invariant.
type Client struct {
	Conn *websocket.Conn
	User models.UserIdentity

	mu   sync.Mutex
	hook func(models.WSFrame)
	room *Room
}

func NewClient(conn *websocket.Conn, user models.UserIdentity) *Client {
	return &Client{Conn: conn, User: user}
}

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.WSFrame)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

func (c *Client) Send(frame models.WSFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hook != nil {
		c.hook(frame)
		return
	}
	if c.Conn == nil {
		return
	}
	_ = c.Conn.WriteJSON(frame)
}

// Room returns the room this client is currently attached to, or nil.
func (c *Client) Room() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) setRoom(r *Room) {
	c.mu.Lock()
	c.room = r
	c.mu.Unlock()
}
