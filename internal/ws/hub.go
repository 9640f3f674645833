package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// BroadcastMessage packages a payload for an owner-scoped broadcast. An empty
// Topic reaches every connection of the owner.
type BroadcastMessage struct {
	OwnerID string
	Topic   string
	Payload []byte
}

// Hub manages active clients and owner-scoped broadcasts.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan BroadcastMessage
	done       chan struct{}
}

// NewHub builds a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan BroadcastMessage, 64),
		done:       make(chan struct{}),
	}
}

// Run starts the hub loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				if client.OwnerID() != message.OwnerID || !client.Wants(message.Topic) {
					continue
				}
				select {
				case client.Send <- message.Payload:
				default:
					// Slow consumer.
					delete(h.clients, client)
					close(client.Send)
				}
			}
		}
	}
}

// Stop terminates Run and closes every client.
func (h *Hub) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// Broadcast sends a payload to all clients of an owner.
func (h *Hub) Broadcast(ownerID string, payload []byte) {
	h.BroadcastTopic(ownerID, "", payload)
}

// BroadcastTopic sends a payload to the owner's clients subscribed to topic,
// and to clients without any subscription.
func (h *Hub) BroadcastTopic(ownerID, topic string, payload []byte) {
	select {
	case h.broadcast <- BroadcastMessage{OwnerID: ownerID, Topic: topic, Payload: payload}:
	case <-h.done:
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Client represents a websocket connection.
type Client struct {
	Conn    *websocket.Conn
	Hub     *Hub
	Send    chan []byte
	id      string
	mu      sync.RWMutex
	ownerID string
	topics  map[string]bool
}

// NewClient returns a client ready for registration.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:     uuid.NewString(),
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan []byte, 256),
		topics: make(map[string]bool),
	}
}

// ID identifies the connection in logs.
func (c *Client) ID() string {
	return c.id
}

// OwnerID returns the owner the client is bound to.
func (c *Client) OwnerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ownerID
}

// SetOwnerID binds the client to an owner.
func (c *Client) SetOwnerID(ownerID string) {
	c.mu.Lock()
	c.ownerID = ownerID
	c.mu.Unlock()
}

func (c *Client) SubscribeTopic(topic string) {
	c.mu.Lock()
	c.topics[topic] = true
	c.mu.Unlock()
}

func (c *Client) UnsubscribeTopic(topic string) {
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
}

// Wants reports whether a message on topic should reach the client.
func (c *Client) Wants(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if topic == "" || len(c.topics) == 0 {
		return true
	}
	return c.topics[topic]
}
