// Package livefeed pushes portal events to browser tabs over WebSockets.
// Clients subscribe to topics and receive every event published to them.
package livefeed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Topics the portal publishes on.
const (
	TopicRequestOrders = "request_orders"
	TopicStatus        = "status"
	TopicNotifications = "notifications"
)

// Event is one message sent to subscribed clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscribe or unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one connected tab.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

// NewClient returns a client with a buffered send queue.
func NewClient(id string, topics []string) *Client {
	return &Client{ID: id, Topics: append([]string(nil), topics...), Send: make(chan []byte, sendBuffer)}
}

const sendBuffer = 64

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	all     map[*Client]struct{}
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		now:     time.Now,
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

// Register adds a client and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(topic, client)
	}
}

// Unregister removes a client and closes its send queue. It is safe to call
// more than once.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range topics {
		if _, dup := h.clients[topic][client]; dup {
			continue
		}
		h.addLocked(topic, client)
		client.Topics = append(client.Topics, topic)
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	drop := make(map[string]bool, len(topics))
	for _, topic := range topics {
		drop[topic] = true
		h.removeLocked(topic, client)
	}
	kept := client.Topics[:0]
	for _, topic := range client.Topics {
		if !drop[topic] {
			kept = append(kept, topic)
		}
	}
	client.Topics = kept
}

func (h *Hub) addLocked(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(topic string, client *Client) {
	subs, ok := h.clients[topic]
	if !ok {
		return
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.clients, topic)
	}
}

// Handle applies an inbound client message. Unknown actions are ignored.
func (h *Hub) Handle(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Publish marshals data and sends it to the topic's subscribers. Clients
// whose queue is full miss the event rather than stall the publisher.
func (h *Hub) Publish(topic, eventType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("failed to marshal live event")
		return
	}
	msg, err := json.Marshal(Event{Type: eventType, Topic: topic, Timestamp: h.now().UTC(), Data: raw})
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("failed to marshal live event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- msg:
		default:
			h.logger.Debug().Str("client", client.ID).Str("topic", topic).Msg("live client queue full, event dropped")
		}
	}
}

// ObserveStatusChange publishes order and request-order transitions.
func (h *Hub) ObserveStatusChange(kind, status string) {
	h.Publish(TopicStatus, kind+".status_changed", map[string]string{"kind": kind, "status": status})
}

// ObserveNotification publishes that a patient notification went out.
func (h *Hub) ObserveNotification(templateID string) {
	h.Publish(TopicNotifications, "notification.sent", map[string]string{"template": templateID})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
