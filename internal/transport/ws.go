package transport

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/palaver-dev/palaver/internal/logging"
)

// wsWriteTimeout bounds each websocket write so one stalled client
// cannot hold up the hub.
const wsWriteTimeout = 10 * time.Second

// Notification is the JSON frame the Hub writes to connected clients.
type Notification struct {
	EventType  string         `json:"event_type"`
	Payload    map[string]any `json:"payload,omitempty"`
	Sender     string         `json:"sender"`
	Recipients []string       `json:"recipients"`
	Timestamp  time.Time      `json:"timestamp"`
}

type wsClient struct {
	conn          *websocket.Conn
	participantID string

	writeMu sync.Mutex
}

// Hub is a websocket Transport. Participants connect with a
// ?participant=<id> query parameter and receive every notification
// addressed to them or broadcast. Writes that fail or time out drop
// the client.
type Hub struct {
	logger *logging.Logger

	mu       sync.Mutex
	clients  map[uint64]*wsClient
	nextID   uint64
	closed   bool
	upgrader websocket.Upgrader
}

// NewHub creates a Hub. A nil logger is replaced with a no-op logger.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[uint64]*wsClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a websocket and registers the
// client. It blocks until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	participantID := r.URL.Query().Get("participant")
	if participantID == "" {
		http.Error(w, "missing participant", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &wsClient{conn: conn, participantID: participantID}
	id := atomic.AddUint64(&h.nextID, 1)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[id] = client
	h.mu.Unlock()

	h.logger.WithParticipant(participantID).Debug("websocket client connected")

	defer func() {
		h.removeClient(id)
		conn.Close()
	}()

	// Drain reads until the peer goes away. Clients only receive.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Send writes the notification to every connected client it is
// addressed to. Clients whose write fails are dropped.
func (h *Hub) Send(ctx context.Context, eventType string, payload map[string]any, sender string, recipients []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n := Notification{
		EventType:  eventType,
		Payload:    payload,
		Sender:     sender,
		Recipients: recipients,
		Timestamp:  time.Now().UTC(),
	}

	h.mu.Lock()
	targets := make(map[uint64]*wsClient, len(h.clients))
	for id, c := range h.clients {
		if h.addressed(c.participantID, recipients) {
			targets[id] = c
		}
	}
	h.mu.Unlock()

	for id, c := range targets {
		if err := h.writeTo(c, n); err != nil {
			h.logger.WithParticipant(c.participantID).Warn("dropping websocket client", "error", err)
			h.removeClient(id)
			c.conn.Close()
		}
	}
	return nil
}

func (h *Hub) addressed(participantID string, recipients []string) bool {
	for _, r := range recipients {
		if r == participantID || r == Broadcast {
			return true
		}
	}
	return false
}

func (h *Hub) writeTo(c *wsClient, n Notification) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(n)
}

func (h *Hub) removeClient(id uint64) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// ClientCount reports connected clients. Used by tests and the status
// command.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects future connections.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = make(map[uint64]*wsClient)
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}
