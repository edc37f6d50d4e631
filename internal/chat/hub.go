// internal/chat/hub.go
package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Hub is the in-process publish/subscribe fanout for group chat. Rooms are
// keyed by group id; every subscriber of a group receives each broadcast
// in the order it was published.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan Envelope
}

// Envelope carries one serialized message to a group's subscribers.
type Envelope struct {
	GroupID uuid.UUID
	Payload []byte
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Envelope, 64),
	}
}

// Run owns the room map; call it once in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			room, ok := h.rooms[client.groupID]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[client.groupID] = room
			}
			room[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if room, ok := h.rooms[client.groupID]; ok {
				if _, ok := room[client]; ok {
					delete(room, client)
					close(client.send)
					if len(room) == 0 {
						delete(h.rooms, client.groupID)
					}
				}
			}
			h.mu.Unlock()

		case env := <-h.broadcast:
			h.mu.RLock()
			room := h.rooms[env.GroupID]
			for client := range room {
				select {
				case client.send <- env.Payload:
				default:
					// Slow consumer; drop it rather than stall the room.
					go func(c *Client) { h.unregister <- c }(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast publishes a payload to all current subscribers of a group.
func (h *Hub) Broadcast(groupID uuid.UUID, payload []byte) {
	h.broadcast <- Envelope{GroupID: groupID, Payload: payload}
}

// Subscribers reports the current subscriber count for a group.
func (h *Hub) Subscribers(groupID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[groupID])
}
