package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Event is the envelope pushed to every connected UI client
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}

// Hub maintains the set of active clients and fans sync events out to
// all of them. Publish never blocks; slow clients get dropped.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Outbound event frames
	broadcast chan []byte

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[*Client]bool),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("📱 UI client connected (%d active)", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("📴 UI client disconnected (%d active)", n)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Buffer full or client dead
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish marshals an event and queues it for broadcast. Satisfies the
// sync engine's publisher contract; never blocks the caller.
func (h *Hub) Publish(event string, payload interface{}) {
	frame, err := json.Marshal(Event{
		Type:    event,
		Payload: payload,
		At:      time.Now().UTC(),
	})
	if err != nil {
		log.Printf("Error marshaling %s event: %v", event, err)
		return
	}

	select {
	case h.broadcast <- frame:
	default:
		log.Printf("⚠️ Event buffer full, dropping %s event", event)
	}
}
