// Package api serves the control-plane HTTP/WebSocket surface: fill/halt/
// regime-transition/log streaming plus status and metrics
// endpoints. It never touches the reducer directly — everything it
// reports arrives as an event or command the engine already emitted.
package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType defines WebSocket message types.
type MessageType string

const (
	// Server -> Client messages
	MsgTypeCommand     MessageType = "command"
	MsgTypeFill        MessageType = "fill"
	MsgTypeHalt        MessageType = "halt"
	MsgTypeRegime      MessageType = "regime_transition"
	MsgTypeLog         MessageType = "log"
	MsgTypeError       MessageType = "error"
	MsgTypeHeartbeat   MessageType = "heartbeat"

	// Client -> Server messages
	MsgTypeSubscribe   MessageType = "subscribe"
	MsgTypeUnsubscribe MessageType = "unsubscribe"
)

// WSMessage is a WebSocket message.
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client is a WebSocket client connection.
type Client struct {
	id            string
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]bool
	mu            sync.RWMutex
}

// Hub manages WebSocket connections and channel subscriptions.
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	channels   map[string]map[*Client]bool
	mu         sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger.Named("api.ws"),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		channels:   make(map[string]map[*Client]bool),
	}
}

// Run starts the hub's dispatch loop; call from its own goroutine.
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("id", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				for channel := range client.subscriptions {
					if clients, ok := h.channels[channel]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.channels, channel)
						}
					}
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.String("id", client.id))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()

		case <-ticker.C:
			h.sendHeartbeat()
		}
	}
}

func (h *Hub) sendHeartbeat() {
	msg := WSMessage{Type: MsgTypeHeartbeat, Timestamp: time.Now().UnixMilli()}
	data, _ := json.Marshal(msg)

	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
	h.mu.RUnlock()
}

// Subscribe subscribes a client to a channel.
func (h *Hub) Subscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Client]bool)
	}
	h.channels[channel][client] = true

	client.mu.Lock()
	client.subscriptions[channel] = true
	client.mu.Unlock()
}

// Unsubscribe unsubscribes a client from a channel.
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.channels[channel]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}

	client.mu.Lock()
	delete(client.subscriptions, channel)
	client.mu.Unlock()
}

// PublishToChannel publishes a message to one channel's subscribers.
func (h *Hub) PublishToChannel(channel string, msgType MessageType, data interface{}) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal message data", zap.Error(err))
		return
	}

	msg := WSMessage{Type: msgType, Channel: channel, Data: dataBytes, Timestamp: time.Now().UnixMilli()}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.channels[channel]; ok {
		for client := range clients {
			select {
			case client.send <- msgBytes:
			default:
			}
		}
	}
}

// Broadcast sends a message to every connected client regardless of
// channel subscription.
func (h *Hub) Broadcast(msgType MessageType, data interface{}) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal broadcast data", zap.Error(err))
		return
	}

	msg := WSMessage{Type: msgType, Data: dataBytes, Timestamp: time.Now().UnixMilli()}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- msgBytes:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastFill publishes a fill onto the "fills" and per-symbol
// "fills:<symbol>" channels.
func (h *Hub) BroadcastFill(fill FillMessage) {
	h.PublishToChannel("fills", MsgTypeFill, fill)
	h.PublishToChannel("fills:"+fill.Symbol, MsgTypeFill, fill)
}

// BroadcastHalt announces a halt transition to every client.
func (h *Hub) BroadcastHalt(reason string) {
	h.Broadcast(MsgTypeHalt, map[string]string{"reason": reason})
}

// BroadcastRegimeTransition publishes a regime change for one symbol.
func (h *Hub) BroadcastRegimeTransition(symbol, regime string) {
	h.PublishToChannel("regime", MsgTypeRegime, map[string]string{"symbol": symbol, "regime": regime})
}

// BroadcastLog forwards a reducer LogCommand to the "logs" channel.
func (h *Hub) BroadcastLog(level, msg string) {
	h.PublishToChannel("logs", MsgTypeLog, map[string]string{"level": level, "msg": msg})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SendChan exposes the client's outbound queue, for tests that want to
// assert on what the hub queued without a real WebSocket connection.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// NewClient wraps a WebSocket connection for registration with a Hub.
func NewClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:            id,
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		subscriptions: make(map[string]bool),
	}
}

// ReadPump pumps messages from the WebSocket to the hub until the
// connection closes; run from its own goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket read error", zap.Error(err))
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.logger.Warn("invalid websocket message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case MsgTypeSubscribe:
			c.hub.Subscribe(c, msg.Channel)
		case MsgTypeUnsubscribe:
			c.hub.Unsubscribe(c, msg.Channel)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket, coalescing
// queued messages onto a single frame and keeping the connection alive
// with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
