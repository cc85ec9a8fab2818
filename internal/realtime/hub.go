package realtime

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Client is a connected terminal. A store_settings subscription is bound to one store;
// a device_deleted subscription receives every deletion.
type Client struct {
	ID      string
	StoreID string
	Send    chan []byte

	topics map[string]string
}

// NewClient creates a client with a buffered send queue
func NewClient(id, storeID string, buffer int) *Client {
	return &Client{
		ID:      id,
		StoreID: storeID,
		Send:    make(chan []byte, buffer),
		topics:  make(map[string]string),
	}
}

// Hub fans change events out to subscribed clients
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  zerolog.Logger
	now     func() time.Time
}

// NewHub creates an empty hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		now:     time.Now,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

// Unregister removes the client and closes its send queue
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topic, storeID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.topics[topic] = storeID
}

func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(client.topics, topic)
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscribers returns the number of clients subscribed to topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, client := range h.clients {
		if _, ok := client.topics[topic]; ok {
			n++
		}
	}
	return n
}

// Broadcast delivers the event to every matching client. Clients with a full queue miss it.
func (h *Hub) Broadcast(e Event) {
	msg, err := e.Encode(h.now())
	if err != nil {
		h.logger.Warn().Err(err).Msg("encode event failed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client, e) {
			continue
		}
		select {
		case client.Send <- msg:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("type", e.Type).Msg("drop message for slow client")
		}
	}
}

func match(client *Client, e Event) bool {
	storeID, ok := client.topics[e.Topic()]
	if !ok {
		return false
	}
	if e.Topic() == TopicStoreSettings {
		return storeID == e.StoreID
	}
	return true
}
