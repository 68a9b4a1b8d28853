// Package websocket carries one full-duplex conversation per connection:
// binary frames in, JSON pipeline events out.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/wicara/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio frames

	// How often the hub checks for idle conversations.
	idleSweepPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Devices are not browsers; the JWT check at upgrade is the gate.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WriteData is one outbound websocket message.
type WriteData struct {
	// Type is the websocket message type.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Hub tracks the active clients and reaps the ones that go idle.
type Hub struct {
	orchestrator *usecase.Orchestrator

	// Registered clients keyed by session ID.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	idleTimeout time.Duration

	stop     chan struct{}
	stopOnce sync.Once

	logger *zap.Logger
}

// NewHub creates a hub over the given orchestrator. Conversations idle
// longer than idleTimeout are closed by the sweep loop.
func NewHub(orchestrator *usecase.Orchestrator, idleTimeout time.Duration, logger *zap.Logger) *Hub {
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Minute
	}
	return &Hub{
		orchestrator: orchestrator,
		clients:      make(map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		idleTimeout:  idleTimeout,
		stop:         make(chan struct{}),
		logger:       logger,
	}
}

// Run starts the hub's main loop. Blocks until Stop.
func (h *Hub) Run() {
	ticker := time.NewTicker(idleSweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conv.SessionID()] = client
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("session_id", client.conv.SessionID()),
				zap.String("device_id", client.conv.DeviceID()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.conv.SessionID()]; ok {
				delete(h.clients, client.conv.SessionID())
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered",
				zap.String("session_id", client.conv.SessionID()))

		case <-ticker.C:
			h.reapIdle()

		case <-h.stop:
			h.closeAll()
			return
		}
	}
}

// Stop shuts the hub down and closes every active conversation.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

// ActiveSessions reports how many conversations are currently connected.
func (h *Hub) ActiveSessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// reapIdle closes conversations that have gone quiet. Closing ends the
// event stream, which unwinds the client's pumps and unregisters it.
func (h *Hub) reapIdle() {
	h.mu.RLock()
	var idle []*Client
	for _, client := range h.clients {
		if client.conv.IdleFor() > h.idleTimeout {
			idle = append(idle, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range idle {
		h.logger.Info("Closing idle conversation",
			zap.String("session_id", client.conv.SessionID()),
			zap.Duration("idle_for", client.conv.IdleFor()))
		client.conv.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.conv.Close()
	}
}

// HandleWebSocket upgrades an authenticated request and binds the
// connection to a fresh conversation.
func HandleWebSocket(hub *Hub, c echo.Context, deviceID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	// The conversation outlives the HTTP handler; its lifecycle is owned
	// by the pumps, not the request context.
	conv := hub.orchestrator.StartConversation(context.Background(), deviceID)

	client := &Client{
		hub:    hub,
		conn:   conn,
		conv:   conv,
		send:   make(chan WriteData, 256),
		logger: logger.With(zap.String("session_id", conv.SessionID())),
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
	go client.eventPump()

	return nil
}
