// Package stream publishes live simulation snapshots over WebSocket and HTTP.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/pedoni/telemetry"
)

const (
	// MaxClients caps concurrent WebSocket viewers.
	MaxClients = 64

	writeWait = 2 * time.Second
)

// Event names sent to clients.
const (
	EventSnapshot = "snapshot"
	EventCrowd    = "crowd"
	EventBookmark = "bookmark"
)

// Message is the envelope of every WebSocket frame.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Viewers are local tools; any origin may watch.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans published messages out to every connected viewer. Only the Run
// goroutine writes to connections.
type Hub struct {
	logger *slog.Logger

	clients    map[*websocket.Conn]struct{}
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	count      atomic.Int32

	// latest snapshot, already encoded, for /snapshot
	latest atomic.Pointer[[]byte]

	stopOnce sync.Once
}

// NewHub creates a hub. Call Run to start delivering messages.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger,
		clients:    make(map[*websocket.Conn]struct{}),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run delivers messages until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })
	defer func() {
		for conn := range h.clients {
			conn.Close()
			delete(h.clients, conn)
		}
		h.count.Store(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.clients[conn] = struct{}{}
			h.count.Store(int32(len(h.clients)))
			h.logger.Info("viewer connected", "remote", conn.RemoteAddr().String(), "viewers", len(h.clients))

		case conn := <-h.unregister:
			h.drop(conn)

		case msg := <-h.broadcast:
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.logger.Debug("write failed", "remote", conn.RemoteAddr().String(), "error", err)
					h.drop(conn)
				}
			}
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	if _, ok := h.clients[conn]; !ok {
		return
	}
	delete(h.clients, conn)
	conn.Close()
	h.count.Store(int32(len(h.clients)))
	h.logger.Info("viewer disconnected", "viewers", len(h.clients))
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// PublishSnapshot stores snap as the latest state and sends it to viewers.
func (h *Hub) PublishSnapshot(snap telemetry.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		h.logger.Error("encoding snapshot", "error", err)
		return
	}
	h.latest.Store(&data)
	h.send(Message{Event: EventSnapshot, Data: json.RawMessage(data)})
}

// PublishCrowd sends a closed stats window to viewers.
func (h *Hub) PublishCrowd(stats telemetry.CrowdStats) {
	h.send(Message{Event: EventCrowd, Data: stats})
}

// PublishBookmark sends a detected bookmark to viewers.
func (h *Hub) PublishBookmark(b telemetry.Bookmark) {
	h.send(Message{Event: EventBookmark, Data: b})
}

// send never blocks the simulation; frames are dropped when viewers lag.
func (h *Hub) send(m Message) {
	if h.Clients() == 0 {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		h.logger.Error("encoding message", "event", m.Event, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Debug("viewer backlog full, dropping", "event", m.Event)
	}
}

// Latest returns the last published snapshot as JSON, or nil.
func (h *Hub) Latest() []byte {
	if p := h.latest.Load(); p != nil {
		return *p
	}
	return nil
}

// ServeWS upgrades the request and registers the connection. Incoming frames
// are read and discarded so that close frames are noticed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.Clients() >= MaxClients {
		http.Error(w, "too many viewers", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", "error", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
