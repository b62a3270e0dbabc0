package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"digital.vasic.prompthunter/pkg/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// Frame kinds sent to feed clients.
const (
	FrameDashboard = "dashboard"
	FrameEvent     = "event"
)

// Frame is one message on the live feed.
type Frame struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

// Hub streams events to WebSocket clients. Each client first
// receives a dashboard snapshot, then every event as it happens.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*client]struct{}
	closed    bool
	dashboard *DashboardData
	upgrader  websocket.Upgrader
	logger    logging.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates a Hub that reports dashboard on connect.
func NewHub(dashboard *DashboardData, logger logging.Logger) *Hub {
	if dashboard == nil {
		dashboard = NewDashboardData()
	}
	return &Hub{
		clients:   make(map[*client]struct{}),
		dashboard: dashboard,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logging.OrNull(logger),
	}
}

// Attach subscribes the hub to collector: each event updates the
// dashboard and is broadcast.
func (h *Hub) Attach(collector *EventCollector) {
	collector.OnEvent(func(event Event) {
		h.dashboard.UpdateFromEvent(event)
		h.Broadcast(event)
	})
}

// Dashboard returns the dashboard the hub maintains.
func (h *Hub) Dashboard() *DashboardData { return h.dashboard }

// Broadcast sends event to every client. Slow clients miss it.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(Frame{Kind: FrameEvent, Data: event})
	if err != nil {
		h.logger.Warn("encode feed event", logging.ErrorField(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the feed until the
// client goes away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("feed upgrade failed", logging.ErrorField(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if data, err := json.Marshal(Frame{Kind: FrameDashboard, Data: h.dashboard.Snapshot()}); err == nil {
		c.send <- data
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// readPump only watches for pongs and disconnects.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
