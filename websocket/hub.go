package websocket

import (
	"log"
	"sync"
	"time"

	"fermata/types"
)

// Hub interface defines the methods for managing WebSocket connections
type Hub interface {
	Run()
	BroadcastEvent(key, eventType, message string)
	RegisterClient(client *Client)
	UnregisterClient(client *Client)
}

// hub maintains the set of active clients and broadcasts transcode events
// to them
type hub struct {
	// Registered clients mapped by episode key
	clients map[string]map[*Client]bool

	// Broadcast channel for sending events to subscribed clients
	broadcast chan types.TranscodeEvent

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for thread-safe operations
	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub() Hub {
	return &hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan types.TranscodeEvent, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main event loop
func (h *hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.key] == nil {
				h.clients[client.key] = make(map[*Client]bool)
			}
			h.clients[client.key][client] = true
			h.mu.Unlock()
			log.Printf("WebSocket client connected for %s", client.key)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.key]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.clients, client.key)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected for %s", client.key)

		case event := <-h.broadcast:
			h.mu.RLock()
			// Send to clients subscribed to this episode
			if clients, ok := h.clients[event.Key]; ok {
				for client := range clients {
					select {
					case client.send <- event:
					default:
						close(client.send)
						delete(clients, client)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, event.Key)
				}
			}

			// Also send to "all" clients for any episode update
			if allClients, ok := h.clients["all"]; ok {
				for client := range allClients {
					select {
					case client.send <- event:
					default:
						close(client.send)
						delete(allClients, client)
					}
				}
				if len(allClients) == 0 {
					delete(h.clients, "all")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastEvent sends a transcode event to all clients subscribed to the
// episode key
func (h *hub) BroadcastEvent(key, eventType, message string) {
	event := types.TranscodeEvent{
		Key:       key,
		Type:      eventType,
		Message:   message,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- event:
	default:
		log.Printf("WebSocket broadcast channel full, dropping event for %s", key)
	}
}

// RegisterClient registers a new client with the hub
func (h *hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient unregisters a client from the hub
func (h *hub) UnregisterClient(client *Client) {
	h.unregister <- client
}
