package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/askwhyharsh/liveradar/internal/storage"
	"github.com/askwhyharsh/liveradar/pkg/logger"
)

const activeKey = "ws:active"

// Hub tracks the connections served by this process and mirrors them into a
// Redis set so other instances can count them.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	redis      storage.RedisClient
	logger     logger.Logger
	mu         sync.RWMutex
	ctx        context.Context
}

func NewHub(ctx context.Context, redisClient storage.RedisClient, log logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		redis:      redisClient,
		logger:     log,
		ctx:        ctx,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case <-h.ctx.Done():
			h.shutdown()
			return
		}
	}
}

// Register returns false once the hub has shut down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// a reconnect with the same session replaces the old socket
	if old, ok := h.clients[client.sessionID]; ok && old != client {
		old.Close()
	}
	h.clients[client.sessionID] = client

	if h.redis != nil {
		if err := h.redis.SAdd(h.ctx, activeKey, client.sessionID); err != nil {
			h.logger.Warn("Failed to record active connection", "session_id", client.sessionID, "error", err)
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[client.sessionID]; ok && current == client {
		delete(h.clients, client.sessionID)

		if h.redis != nil {
			if err := h.redis.SRem(h.ctx, activeKey, client.sessionID); err != nil {
				h.logger.Warn("Failed to clear active connection", "session_id", client.sessionID, "error", err)
			}
		}
	}
}

// Connected reports whether a client other than except is serving userID on
// this instance.
func (h *Hub) Connected(userID string, except *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c != except && c.userID == userID {
			return true
		}
	}
	return false
}

// Count is the number of connections on this instance.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ActiveConnections counts connections across all instances.
func (h *Hub) ActiveConnections(ctx context.Context) (int64, error) {
	if h.redis == nil {
		return int64(h.Count()), nil
	}
	return h.redis.SCard(ctx, activeKey)
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]interface{}, 0, len(h.clients))
	for id, client := range h.clients {
		client.Close()
		ids = append(ids, id)
	}
	h.clients = make(map[string]*Client)

	if h.redis != nil && len(ids) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.redis.SRem(ctx, activeKey, ids...); err != nil {
			h.logger.Warn("Failed to clear active connections", "count", len(ids), "error", err)
		}
	}
}
