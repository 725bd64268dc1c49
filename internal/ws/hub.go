// Package ws streams posting-session progress to websocket clients.
package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// MessageType labels a progress event payload.
type MessageType string

const (
	MessageChunkPosted      MessageType = "ChunkPosted"
	MessageChunkFailed      MessageType = "ChunkFailed"
	MessageSessionCompleted MessageType = "SessionCompleted"
	MessageSessionAborted   MessageType = "SessionAborted"
)

// Event is the wire shape of a session progress broadcast.
type Event struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	ThreadID  string      `json:"thread_id,omitempty"`
	Outcome   any         `json:"outcome,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// BroadcastMessage packages a payload for a session-scoped broadcast.
type BroadcastMessage struct {
	SessionID string
	Payload   []byte
}

// Hub manages active clients and session-scoped broadcasts.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan BroadcastMessage
}

// NewHub builds a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan BroadcastMessage),
	}
}

// Run starts the hub loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				if !client.wantsSession(message.SessionID) {
					continue
				}
				select {
				case client.Send <- message.Payload:
				default:
					delete(h.clients, client)
					close(client.Send)
				}
			}
		}
	}
}

// Broadcast sends a payload to all clients watching a session.
func (h *Hub) Broadcast(sessionID string, payload []byte) {
	h.broadcast <- BroadcastMessage{SessionID: sessionID, Payload: payload}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// Client represents a websocket connection.
type Client struct {
	Conn *websocket.Conn
	Hub  *Hub
	Send chan []byte

	mu       sync.RWMutex
	sessions map[string]bool
}

// NewClient returns a client ready for registration.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		Conn:     conn,
		Hub:      hub,
		Send:     make(chan []byte, 256),
		sessions: make(map[string]bool),
	}
}

// WatchSession subscribes the client to one session's progress events.
func (c *Client) WatchSession(sessionID string) {
	c.mu.Lock()
	c.sessions[sessionID] = true
	c.mu.Unlock()
}

// UnwatchSession drops a session subscription.
func (c *Client) UnwatchSession(sessionID string) {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()
}

func (c *Client) wantsSession(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions[sessionID]
}
