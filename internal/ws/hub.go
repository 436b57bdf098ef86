package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/saturnino-fabrica-de-software/veritas/internal/audit"
)

// Hub fans audit events out to connected reviewers, grouped by role.
// It implements audit.Logger so it can sit next to the slog audit trail.
type Hub struct {
	clients    map[*Client]bool
	roles      map[string]map[*Client]bool
	broadcast  chan audit.Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	logger     *slog.Logger
	mu         sync.RWMutex
}

var _ audit.Logger = (*Hub)(nil)

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		roles:      make(map[string]map[*Client]bool),
		broadcast:  make(chan audit.Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With("component", "review_feed"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then drops
// every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.stopOnce.Do(func() { close(h.done) })
			h.closeAll()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// Log queues an event for delivery. A full queue drops the event; the
// feed is best effort and the audit trail stays authoritative.
func (h *Hub) Log(_ context.Context, event audit.Event) error {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("review feed queue full, event dropped",
			"event_type", event.EventType,
			"request_id", event.RequestID,
		)
	}
	return nil
}

// join registers a client. It returns false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ConnectedClients returns how many clients of a role are connected.
func (h *Hub) ConnectedClients(role string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.roles[role])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if h.roles[client.role] == nil {
		h.roles[client.role] = make(map[*Client]bool)
	}
	h.roles[client.role][client] = true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropLocked(client)
}

// dropLocked must be called with mu held.
func (h *Hub) dropLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	delete(h.roles[client.role], client)
	if len(h.roles[client.role]) == 0 {
		delete(h.roles, client.role)
	}
	close(client.send)
}

func (h *Hub) deliver(event audit.Event) {
	roles := audience(event)
	if len(roles) == 0 {
		return
	}

	message, err := json.Marshal(newMessage(event))
	if err != nil {
		h.logger.Error("failed to encode feed message", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, role := range roles {
		for client := range h.roles[role] {
			select {
			case client.send <- message:
			default:
				// slow consumer
				h.dropLocked(client)
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		h.dropLocked(client)
	}
}
