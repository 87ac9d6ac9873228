package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultSendBuffer = 32

// Envelope is the frame every outbound event is wrapped in.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client is one connected receiver. Frames queued for it are read from Send.
type Client struct {
	ID uuid.UUID

	send      chan []byte
	closeOnce sync.Once
}

func NewClient(id uuid.UUID, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}

	return &Client{
		ID:   id,
		send: make(chan []byte, bufferSize),
	}
}

// Send is closed once the client is unregistered or the hub is closed.
func (c *Client) Send() <-chan []byte {
	return c.send
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub fans events out to the registered clients. Delivery is best effort:
// a client whose buffer is full misses the frame.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	closed  bool

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*Client),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		c.close()
		return
	}

	h.clients[c.ID] = c
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		c.close()
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

func (h *Hub) NotifyAll(event string, payload any) {
	h.notify(event, payload, func(*Client) bool { return true })
}

func (h *Hub) NotifyOthers(origin *Client, event string, payload any) {
	h.notify(event, payload, func(c *Client) bool { return c.ID != origin.ID })
}

func (h *Hub) NotifyOne(target *Client, event string, payload any) {
	h.notify(event, payload, func(c *Client) bool { return c.ID == target.ID })
}

// Close drops every client and closes their send channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		delete(h.clients, id)
		c.close()
	}
	h.closed = true
}

func (h *Hub) notify(event string, payload any, include func(*Client) bool) {
	frame, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}

	// Sends happen under the read lock so Unregister cannot close a
	// channel mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if !include(c) {
			continue
		}

		select {
		case c.send <- frame:
		default:
			h.logger.Warn(
				"dropped event for slow client",
				zap.String("event", event),
				zap.String("client_id", c.ID.String()),
			)
		}
	}
}
