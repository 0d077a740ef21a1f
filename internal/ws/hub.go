package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"connection-chat/internal/observability"
	"connection-chat/internal/relay"
)

// Hub maintains the live sockets of this instance, keyed by user id.
type Hub struct {
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a socket and returns how many sockets the user now holds here.
func (h *Hub) Register(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.info.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.clients[c.info.UserID] = conns
	}
	conns[c] = struct{}{}
	return len(conns)
}

// Unregister removes a socket. It reports false when the socket was not registered.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.info.UserID]
	if !ok {
		return false
	}
	if _, exists := conns[c]; !exists {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, c.info.UserID)
	}
	return true
}

// Connected returns how many sockets userID holds on this instance.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Deliver fans a relay event out to every local socket of its recipients. A
// socket whose buffer is full is disconnected rather than waited on.
func (h *Hub) Deliver(ev relay.Event) {
	frame := eventFrame(ev)

	var slow []*Client
	h.mu.RLock()
	for _, userID := range ev.Recipients {
		for c := range h.clients[userID] {
			if !c.enqueue(frame) {
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		dropSlow(h.logger, c, string(ev.Type))
	}
}

// dropSlow disconnects a client whose send buffer is full.
func dropSlow(logger *zap.Logger, c *Client, frame string) {
	logger.Warn("dropping slow websocket consumer",
		zap.String("user_id", c.info.UserID),
		zap.String("conn_id", c.info.ConnID),
		zap.String("frame", frame),
	)
	observability.IncRelayDropped("slow_consumer")
	publishLifecycle(context.Background(), c.info, "ws_error", "slow_consumer")
	c.kick("slow_consumer")
}
