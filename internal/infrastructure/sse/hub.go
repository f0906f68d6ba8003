package sse

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/clubhub/marketplace/internal/domain/notification"
	"github.com/clubhub/marketplace/internal/domain/party"
)

// Hub manages SSE clients and delivers marketplace events to the members
// they are addressed to.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*notification.SSEClient
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*notification.SSEClient),
	}
}

func (h *Hub) Register(client *notification.SSEClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToParty sends message to every connection of the party behind ref.
// It returns how many connections accepted the message.
func (h *Hub) BroadcastToParty(ref party.Ref, message *notification.SSEMessage) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for _, c := range h.clients {
		if party.SameParty(c.Member, ref) && trySend(c, message) {
			sent++
		}
	}
	return sent
}

func (h *Hub) SendToClient(clientID string, message *notification.SSEMessage) error {
	h.mu.RLock()
	c := h.clients[clientID]
	h.mu.RUnlock()
	if c == nil {
		return notification.ErrClientNotFound
	}
	if !trySend(c, message) {
		return notification.ErrChannelFull
	}
	return nil
}

// Notify implements notification.Notifier. Offline recipients are skipped.
func (h *Hub) Notify(ctx context.Context, event *notification.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	for _, to := range event.Recipients {
		h.BroadcastToParty(to, notification.NewSSEMessage(string(event.Type), data))
	}
	return nil
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}

func trySend(c *notification.SSEClient, msg *notification.SSEMessage) bool {
	select {
	case c.MessageChan <- msg:
		return true
	default:
		return false
	}
}
