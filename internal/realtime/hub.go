// Package realtime streams verification and alert activity to the
// reviewer console over WebSocket. Reviewers subscribe instead of polling
// the alert queue; scored payments and alert decisions arrive as they
// happen.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scamshield/scamshield/internal/metrics"
)

// Event types pushed to subscribers.
const (
	EventPaymentScored  = "payment.scored"
	EventPaymentDecided = "payment.decided"
	EventAlertRaised    = "alert.raised"
	EventAlertDecided   = "alert.decided"
)

// normalCloseCodes are WebSocket close codes for an expected disconnect.
var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser clients
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// Event is one realtime message.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Subscription filters what a connected reviewer receives.
type Subscription struct {
	AllEvents  bool     `json:"allEvents"`
	EventTypes []string `json:"eventTypes"`
	Levels     []string `json:"levels"`    // only events at these risk levels
	MinAmount  float64  `json:"minAmount"` // only payments/alerts above this
}

// Client is one WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	sub  Subscription
}

// MaxClients bounds concurrent reviewer connections.
const MaxClients = 1000

// Hub fans events out to all connected reviewer consoles.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits; prevents upgrade race
	maxClients int

	totalEvents  atomic.Int64
	totalClients atomic.Int64
}

// NewHub creates a reviewer feed hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
		maxClients: MaxClients,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send) // writePump sends CloseMessage on closed channel
				delete(h.clients, client)
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.logger.Info("realtime hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalClients.Add(1)
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("reviewer connected", "total", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("reviewer disconnected", "total", n)

		case event := <-h.broadcast:
			h.totalEvents.Add(1)
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			h.mu.RLock()
			var slow []*Client
			for client := range h.clients {
				if !client.wants(event) {
					continue
				}
				select {
				case client.send <- payload:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			// drop slow clients under the write lock
			if len(slow) > 0 {
				h.mu.Lock()
				for _, client := range slow {
					if _, ok := h.clients[client]; ok {
						close(client.send)
						delete(h.clients, client)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// Broadcast queues an event for all matching subscribers. Non-blocking:
// if the feed is saturated the event is dropped, never the caller.
func (h *Hub) Broadcast(eventType string, payload any) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event", "type", eventType)
	}
}

// Stats returns hub statistics for the stats endpoint.
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]any{
		"connectedClients": len(h.clients),
		"totalEvents":      h.totalEvents.Load(),
		"totalClients":     h.totalClients.Load(),
	}
}

// wants checks the event against the client's subscription filters.
func (c *Client) wants(event *Event) bool {
	c.mu.RLock()
	sub := c.sub
	c.mu.RUnlock()

	if sub.AllEvents {
		return true
	}

	if len(sub.EventTypes) > 0 {
		matched := false
		for _, t := range sub.EventTypes {
			if t == event.Type {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	fields := eventFields(event.Data)

	if len(sub.Levels) > 0 {
		level, _ := fields["level"].(string)
		matched := false
		for _, l := range sub.Levels {
			if l == level {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if sub.MinAmount > 0 {
		if amount, ok := fields["amount"].(float64); ok && amount < sub.MinAmount {
			return false
		}
	}

	return true
}

// eventFields flattens the event payload for filter matching. Payloads
// are typed structs at broadcast time, so go through JSON once.
func eventFields(data any) map[string]any {
	if m, ok := data.(map[string]any); ok {
		return m
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// HandleWebSocket upgrades HTTP to WebSocket.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Reject upgrades after the hub has stopped to prevent orphaned connections.
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump reads subscription updates and pongs from the socket.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		var sub Subscription
		if err := json.Unmarshal(message, &sub); err == nil {
			c.mu.Lock()
			c.sub = sub
			c.mu.Unlock()
		}
	}
}

// writePump writes queued events and keepalive pings to the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}
