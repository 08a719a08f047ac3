// Package hub fans engine messages out to websocket collaborators.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"djmix/logger"
	"djmix/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Inbound message types understood by the hub itself.
const (
	MsgPing   = "ping"
	MsgPong   = "pong"
	MsgResync = "resync"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Message is the envelope for every frame sent to collaborators.
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WelcomeFunc returns the message a newly connected client receives first.
type WelcomeFunc func() (msgType string, data interface{})

// direct is a message addressed to a single client.
type direct struct {
	client *Client
	msg    []byte
	greet  bool
}

// Client is one websocket connection.
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
}

// Hub tracks connected clients and serializes registration and fan-out.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	direct     chan direct
	mu         sync.RWMutex
	done       chan struct{}
	stopOnce   sync.Once
	welcome    WelcomeFunc
	upgrader   websocket.Upgrader
}

// New creates a hub. Call Run before serving connections.
func New() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, sendBuffer),
		direct:     make(chan direct, sendBuffer),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetWelcome installs the hook used to greet new clients and answer resync requests.
func (h *Hub) SetWelcome(fn WelcomeFunc) { h.welcome = fn }

// Run is the hub main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastAll(msg)

		case d := <-h.direct:
			h.sendDirect(d)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop ends the main loop and closes every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	metrics.HubClients.Set(float64(count))
	h.greet(client)
	logger.Info("client registered",
		logger.String("client", client.ID),
		logger.Int("clients", count))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeClient(client)
}

// removeClient requires h.mu.
func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	metrics.HubClients.Set(float64(len(h.clients)))
	logger.Info("client unregistered", logger.String("client", client.ID))
}

func (h *Hub) broadcastAll(msg []byte) {
	h.mu.RLock()
	clientList := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, client := range clientList {
		select {
		case client.Send <- msg:
		default:
			slow = append(slow, client)
		}
	}
	if len(slow) == 0 {
		return
	}
	// Slow consumers are dropped rather than allowed to back up the engine.
	h.mu.Lock()
	for _, client := range slow {
		logger.Warn("send buffer full, dropping client", logger.String("client", client.ID))
		h.removeClient(client)
	}
	h.mu.Unlock()
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]bool)
	metrics.HubClients.Set(0)
}

func (h *Hub) greet(client *Client) {
	if h.welcome == nil {
		return
	}
	msgType, data := h.welcome()
	if msg, err := encode(msgType, data); err == nil {
		h.trySend(client, msg)
	}
}

// trySend runs on the hub goroutine, so Send cannot be closed underneath it.
func (h *Hub) trySend(client *Client, msg []byte) {
	h.mu.RLock()
	_, ok := h.clients[client]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case client.Send <- msg:
	default:
	}
}

func (h *Hub) sendDirect(d direct) {
	if d.greet {
		h.greet(d.client)
		return
	}
	h.trySend(d.client, d.msg)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast encodes data and queues it for every client. Messages are dropped
// when the hub is backed up.
func (h *Hub) Broadcast(msgType string, data interface{}) {
	msg, err := encode(msgType, data)
	if err != nil {
		logger.Error("failed to encode broadcast", logger.String("type", msgType), logger.ErrorField(err))
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		logger.Warn("broadcast queue full, message dropped", logger.String("type", msgType))
	}
}

func encode(msgType string, data interface{}) ([]byte, error) {
	msg := Message{Type: msgType, Timestamp: time.Now().UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}

// ServeWS upgrades the request and runs the client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := &Client{
		ID:   uuid.NewString(),
		Hub:  h,
		Conn: conn,
		Send: make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.WritePump()
	client.ReadPump(r.Context())
}

// ReadPump handles heartbeats and resync requests until the connection closes.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", logger.ErrorField(err), logger.String("client", c.ID))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warn("invalid message format", logger.ErrorField(err), logger.String("client", c.ID))
			continue
		}

		switch msg.Type {
		case MsgPing:
			if pong, err := encode(MsgPong, nil); err == nil {
				c.queue(direct{client: c, msg: pong})
			}
		case MsgResync:
			c.queue(direct{client: c, greet: true})
		default:
			logger.Debug("ignoring inbound message", logger.String("type", msg.Type))
		}
	}
}

func (c *Client) queue(d direct) {
	select {
	case c.Hub.direct <- d:
	default:
	}
}

// WritePump writes queued messages and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
