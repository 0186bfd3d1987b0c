package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/boost-marketplace/internal/domain"
	"github.com/boost-marketplace/internal/metrics"
)

// Message types
const (
	MessageTypeOrderCreated = string(domain.OrderEventCreated)
	MessageTypeOrderUpdated = string(domain.OrderEventUpdated)
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Game      domain.Game `json:"game,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// OrderUpdate is the payload pushed for an order event
type OrderUpdate struct {
	Order   domain.BoostOrder `json:"order"`
	ActorID string            `json:"actor_id,omitempty"`
}

// Hub maintains the set of active clients and pushes order events to the
// clients allowed to see them.
type Hub struct {
	// Clients that narrowed their feed to specific games
	games map[domain.Game]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan domain.OrderEvent

	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu sync.RWMutex

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	game   domain.Game
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		games:       make(map[domain.Game]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan domain.OrderEvent, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			n := len(h.allClients)
			h.mu.Unlock()
			metrics.SetWebSocketClients(n)
			h.logger.Debug("client registered", "client_id", client.id, "user_id", client.session.UserID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for game, clients := range h.games {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.games, game)
						}
					}
				}
				close(client.send)
			}
			n := len(h.allClients)
			h.mu.Unlock()
			metrics.SetWebSocketClients(n)
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.allClients[req.client]; ok {
				if _, ok := h.games[req.game]; !ok {
					h.games[req.game] = make(map[*Client]bool)
				}
				if !h.games[req.game][req.client] {
					h.games[req.game][req.client] = true
					req.client.subscriptions++
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "game", req.game)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.games[req.game]; ok && clients[req.client] {
				delete(clients, req.client)
				req.client.subscriptions--
				if len(clients) == 0 {
					delete(h.games, req.game)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "game", req.game)

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// wants reports whether the client should receive an event for the order.
// Must be called with h.mu held.
func (h *Hub) wants(c *Client, o domain.BoostOrder) bool {
	if !domain.CanViewOrder(c.session, o) {
		return false
	}
	if c.subscriptions == 0 {
		return true
	}
	return h.games[o.Game][c]
}

// deliver sends an order event to every client allowed to see the order
func (h *Hub) deliver(event domain.OrderEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(Message{
		Type: string(event.Type),
		Game: event.Order.Game,
		Data: OrderUpdate{
			Order:   event.Order,
			ActorID: event.ActorID,
		},
		Timestamp: event.Timestamp,
	})
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for client := range h.allClients {
		if !h.wants(client, event.Order) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// BroadcastOrderEvent queues an order event for delivery to connected clients
func (h *Hub) BroadcastOrderEvent(event domain.OrderEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "order_id", event.Order.ID)
	}
}

// PublishOrderEvent delivers events straight to this instance's clients. It
// is the publisher used when no event bus is configured.
func (h *Hub) PublishOrderEvent(_ context.Context, event domain.OrderEvent) error {
	h.BroadcastOrderEvent(event)
	metrics.RecordEventPublished(string(event.Type), true)
	return nil
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe narrows a client's feed to the given game. Clients without any
// subscription receive every order they may see.
func (h *Hub) Subscribe(client *Client, game domain.Game) {
	h.subscribe <- &subscriptionRequest{
		client: client,
		game:   game,
	}
}

// Unsubscribe removes a game from a client's feed
func (h *Hub) Unsubscribe(client *Client, game domain.Game) {
	h.unsubscribe <- &subscriptionRequest{
		client: client,
		game:   game,
	}
}

// GetSubscriberCount returns the number of clients subscribed to a game
func (h *Hub) GetSubscriberCount(game domain.Game) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.games[game])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
