package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/gemauction/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 256

	// allAuctions subscribes a client to every auction's events.
	allAuctions = "*"
)

// eventPattern matches every per-auction channel on the signal bus.
var eventPattern = domain.AuctionChannel("*")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte     // never closed; writers drop instead of blocking
	closed chan struct{}   // closed when readPump exits
	subs   map[string]bool // auction IDs, or allAuctions
	mu     sync.RWMutex
}

// subscribeMsg is the JSON frame a client sends to follow or drop an auction:
//
//	{"type":"subscribe","auction_id":"..."}
type subscribeMsg struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
}

// Hub fans live auction events from the signal bus out to the WebSocket
// clients following each auction.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
	done       chan struct{} // closed when Run returns
}

type broadcastMsg struct {
	auctionID string
	data      []byte
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		startedAt:  time.Now().UTC(),
		done:       make(chan struct{}),
	}
}

// Run subscribes to the auction event pattern and routes events to clients
// until ctx is cancelled. On return every client connection is closed with
// "going away" and later upgrades are turned away. Run must be called once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	events, err := h.bus.Subscribe(ctx, eventPattern)
	if err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "ws: subscribed", slog.String("pattern", eventPattern))
	go h.forward(ctx, events)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				goingAway(c.conn)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.logger.Info("ws: hub stopped")
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", h.clientCount()))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.follows(msg.auctionID) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("ws: dropping message for slow client",
						slog.String("auction_id", msg.auctionID),
					)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// forward turns raw bus payloads into routed broadcasts.
func (h *Hub) forward(ctx context.Context, events <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-events:
			if !ok {
				h.logger.Warn("ws: event subscription closed")
				return
			}
			id, ok := auctionIDOf(data)
			if !ok {
				h.logger.Debug("ws: skipping event without auction_id")
				continue
			}
			select {
			case h.broadcast <- broadcastMsg{auctionID: id, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func auctionIDOf(data []byte) (string, bool) {
	var ev struct {
		AuctionID string `json:"auction_id"`
	}
	if err := json.Unmarshal(data, &ev); err != nil || ev.AuctionID == "" {
		return "", false
	}
	return ev.AuctionID, true
}

// HandleWS upgrades the request and registers the client. A client starts
// with no subscriptions unless ?auction_id= names one.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
		subs:   make(map[string]bool),
	}
	if id := r.URL.Query().Get("auction_id"); id != "" {
		c.subs[id] = true
	}

	select {
	case h.register <- c:
	case <-h.done:
		goingAway(conn)
		return
	}
	c.sendHello()

	go c.writePump()
	go c.readPump()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// goingAway sends a close frame and drops the connection. Both calls are
// safe alongside a running read or write pump.
func goingAway(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}

func (c *client) readPump() {
	defer func() {
		close(c.closed)
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err != nil {
			continue
		}
		if ack := c.handleSubscription(sub); ack != nil {
			select {
			case c.send <- ack:
			default:
			}
		}
	}
}

// handleSubscription applies a subscribe or unsubscribe frame and returns
// the acknowledgement to send back, or nil for frames it ignores.
func (c *client) handleSubscription(msg subscribeMsg) []byte {
	if msg.AuctionID == "" {
		return nil
	}
	c.mu.Lock()
	switch msg.Type {
	case "subscribe":
		c.subs[msg.AuctionID] = true
	case "unsubscribe":
		delete(c.subs, msg.AuctionID)
	default:
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ack, _ := json.Marshal(map[string]string{
		"type":       msg.Type + "d",
		"auction_id": msg.AuctionID,
	})
	return ack
}

// sendHello tells the client the connection is live before any events flow.
func (c *client) sendHello() {
	msg, err := json.Marshal(map[string]any{
		"type":           "hello",
		"uptime_seconds": int64(time.Since(c.hub.startedAt).Seconds()),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) follows(auctionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[allAuctions] || c.subs[auctionID]
}

// writePump writes JSON text frames from the hub plus periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
