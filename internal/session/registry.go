package session

import "context"

// Registry tracks which room each client belongs to and enforces the
// one-room-per-client invariant. Every join detaches first, including
// re-joins to the same room, so broadcast subscriptions never stack.
type Registry struct {
	hub *Hub
}

func NewRegistry(hub *Hub) *Registry {
	return &Registry{hub: hub}
}

// Join attaches the client to roomID and returns the room's current
// content for the initial sync, addressed to this client only.
func (reg *Registry) Join(ctx context.Context, c *Client, roomID string) (string, error) {
	if c.Room() != nil {
		reg.Leave(c)
	}

	room, err := reg.hub.Attach(ctx, roomID, c)
	if err != nil {
		return "", err
	}
	c.setRoom(room)
	return room.Content(), nil
}

// Leave detaches the client from its current room, evicting the room when
// it was the last member. It is a no-op for clients not in a room, and is
// what disconnects funnel through.
func (reg *Registry) Leave(c *Client) {
	room := c.Room()
	if room == nil {
		return
	}
	c.setRoom(nil)
	if left := room.Leave(c); left == 0 {
		reg.hub.evict(room)
	}
}
