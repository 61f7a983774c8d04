package devhub

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/taskflow-hub/realtime/internal/transport"
)

// Identity is the user behind a connection.
type Identity struct {
	UserID   string
	UserName string
}

// Group names.
func TaskGroup(id string) string    { return "task:" + id }
func ProjectGroup(id string) string { return "project:" + id }
func TeamGroup(id string) string    { return "team:" + id }
func UserGroup(id string) string    { return "user:" + id }

// EntityGroup names the group of an entity, e.g. ("task", "T1") -> "task:T1".
func EntityGroup(entityType, entityID string) string {
	return entityType + ":" + entityID
}

// Client is one connected websocket.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	id     string
	user   Identity
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewClient creates a new client for user.
func NewClient(hub *Hub, conn *websocket.Conn, user Identity) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		id:   uuid.NewString(),
		user: user,
		send: make(chan []byte, 256),
	}
}

// Send queues data for the client.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		// Buffer full, close the client
		c.closeLocked()
	}
}

// SendFrame marshals and queues a frame.
func (c *Client) SendFrame(f *transport.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.Send(data)
	return nil
}

// Close closes the client's send channel.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// User returns the identity behind the connection.
func (c *Client) User() Identity {
	return c.user
}

// Hub tracks clients and group membership.
type Hub struct {
	clients map[*Client]bool
	groups  map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		groups:  make(map[string]map[*Client]struct{}),
	}
}

// Register adds a client and joins it to its user group.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	h.joinLocked(client, UserGroup(client.user.UserID))
}

// Unregister removes a client from the hub and every group.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	for name, members := range h.groups {
		delete(members, client)
		if len(members) == 0 {
			delete(h.groups, name)
		}
	}
	h.mu.Unlock()

	client.Close()
}

// Join adds client to group.
func (h *Hub) Join(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(client, group)
}

func (h *Hub) joinLocked(client *Client, group string) {
	members := h.groups[group]
	if members == nil {
		members = make(map[*Client]struct{})
		h.groups[group] = members
	}
	members[client] = struct{}{}
}

// Leave removes client from group.
func (h *Hub) Leave(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members := h.groups[group]; members != nil {
		delete(members, client)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// Broadcast sends data to every client except the given one, returning the
// number of recipients.
func (h *Hub) Broadcast(data []byte, except *Client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for client := range h.clients {
		if client == except {
			continue
		}
		client.Send(data)
		n++
	}
	return n
}

// SendToGroup sends data to every member of group except the given client.
func (h *Hub) SendToGroup(group string, data []byte, except *Client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for client := range h.groups[group] {
		if client == except {
			continue
		}
		client.Send(data)
		n++
	}
	return n
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GroupSize returns the number of members of group.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// Close closes all client connections.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.groups = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
