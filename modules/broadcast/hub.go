package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is an attached dashboard viewer.
type Client struct {
	ID   string
	Conn Conn
	// Panels limits delivery to the named panels; empty means all.
	Panels map[string]bool
	// Snapshot, when set, is read by the hub goroutine at registration and
	// its frames are written before any later broadcast.
	Snapshot func() []Frame
}

// Wants reports whether the client subscribed to panel.
func (c *Client) Wants(panel string) bool {
	return len(c.Panels) == 0 || c.Panels[panel]
}

// Frame is what viewers receive.
type Frame struct {
	Panel string `json:"panel"`
	HTML  string `json:"html"`
}

// Hub fans panel updates out to viewers.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Frame
	done       chan struct{}
	mu         sync.RWMutex
	logger     types.Logger
}

// NewHub creates a new Hub.
func NewHub(logger types.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Frame, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			close(h.done)
			return
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case frame := <-h.broadcast:
			h.handleBroadcast(frame)
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		_ = client.Conn.Close()
	}
	h.clients = make(map[string]*Client)
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	h.logger.Debug("Viewer registered", "client", client.ID, "panels", len(client.Panels))

	if client.Snapshot == nil {
		return
	}
	for _, frame := range client.Snapshot() {
		if !client.Wants(frame.Panel) {
			continue
		}
		data, err := json.Marshal(frame)
		if err != nil {
			h.logger.Error("Failed to marshal panel frame", "panel", frame.Panel, "error", err)
			continue
		}
		h.sendToClient(client, data)
	}
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		h.logger.Debug("Viewer unregistered", "client", client.ID)
	}
}

func (h *Hub) handleBroadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("Failed to marshal panel frame", "panel", frame.Panel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.Wants(frame.Panel) {
			h.sendToClient(client, data)
		}
	}
}

func (h *Hub) sendToClient(client *Client, data []byte) {
	if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn("Failed to send to viewer", "client", client.ID, "error", err)
	}
}

// Register adds a client to the hub. The client's snapshot, if any, is
// delivered ahead of every broadcast queued after it.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a panel update for all subscribed viewers.
func (h *Hub) Broadcast(panel, html string) {
	select {
	case h.broadcast <- Frame{Panel: panel, HTML: html}:
	case <-h.done:
	}
}

// ClientCount returns the number of attached viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
