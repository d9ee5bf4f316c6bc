package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"broadphase/internal/sim"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	wsWriteTimeout = 2 * time.Second
	wsReadLimit    = 4096
)

// Wire formats for the live stream, chosen with ?format=
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// StreamMessage is the envelope of every live stream frame.
type StreamMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type wsClient struct {
	conn   *websocket.Conn
	ip     string
	format string
}

// WebSocketHub fans published snapshots out to live stream clients.
// Each snapshot is encoded at most once per wire format.
type WebSocketHub struct {
	clients    map[*websocket.Conn]*wsClient
	broadcast  chan *sim.Snapshot
	register   chan *wsClient
	unregister chan *websocket.Conn
	stopChan   chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex

	upgrader  websocket.Upgrader
	wsLimiter *WebSocketRateLimiter
}

// NewWebSocketHub creates a hub accepting the given browser origins.
func NewWebSocketHub(origins []string) *WebSocketHub {
	h := &WebSocketHub{
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan *sim.Snapshot, 16),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		stopChan:   make(chan struct{}),
		wsLimiter:  NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if IsAllowedOrigin(origin, origins) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Run serves registrations and broadcasts until Stop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case <-h.stopChan:
			h.mu.Lock()
			for conn, client := range h.clients {
				h.wsLimiter.Release(client.ip)
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Client connected from %s (%s, %d total)", client.ip, client.format, count)
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			if h.remove(conn) {
				count := h.ClientCount()
				log.Printf("📱 Client disconnected (%d remaining)", count)
				UpdateWSConnections(count)
			}

		case snap := <-h.broadcast:
			h.send(snap)
		}
	}
}

// Stop closes every connection and ends Run.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
}

func (h *WebSocketHub) remove(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[conn]
	if !ok {
		return false
	}
	h.wsLimiter.Release(client.ip)
	delete(h.clients, conn)
	conn.Close()
	return true
}

func (h *WebSocketHub) send(snap *sim.Snapshot) {
	msg := StreamMessage{Event: "step", Data: snap}
	frames := make(map[string][]byte, 2)
	var failed []*websocket.Conn

	h.mu.RLock()
	for conn, client := range h.clients {
		data, ok := frames[client.format]
		if !ok {
			var err error
			data, err = EncodeMessage(client.format, msg)
			if err != nil {
				log.Printf("⚠️ Stream encode failed (%s): %v", client.format, err)
				continue
			}
			frames[client.format] = data
		}

		kind := websocket.TextMessage
		if client.format == FormatMsgpack {
			kind = websocket.BinaryMessage
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(kind, data); err != nil {
			failed = append(failed, conn)
			continue
		}
		IncrementWSMessages(client.format)
	}
	h.mu.RUnlock()

	for _, conn := range failed {
		h.remove(conn)
	}
	if len(failed) > 0 {
		UpdateWSConnections(h.ClientCount())
	}
}

// EncodeMessage encodes msg for the given wire format. msgpack reuses the
// json struct tags so both formats share field names.
func EncodeMessage(format string, msg StreamMessage) ([]byte, error) {
	switch format {
	case FormatMsgpack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(msg); err != nil {
			return nil, fmt.Errorf("msgpack encode: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON, "":
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("json encode: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("unknown stream format %q", format)
}

// Broadcast queues a snapshot for every client. It drops the snapshot
// when the hub is behind.
func (h *WebSocketHub) Broadcast(snap *sim.Snapshot) bool {
	select {
	case h.broadcast <- snap:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBroadcastLoop publishes the latest snapshot every interval while
// clients are connected. Unchanged snapshots are not resent.
func (h *WebSocketHub) StartBroadcastLoop(engine EngineInterface, interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		var lastSeq uint64
		for {
			select {
			case <-h.stopChan:
				return
			case <-ticker.C:
				if h.ClientCount() == 0 {
					continue
				}
				snap := engine.Snapshot()
				if snap.Sequence == 0 || snap.Sequence == lastSeq {
					continue
				}
				if h.Broadcast(snap) {
					lastSeq = snap.Sequence
				}
			}
		}
	}()
}

// HandleWebSocket upgrades a live stream connection.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatMsgpack {
		writeError(w, "format must be json or msgpack", http.StatusBadRequest)
		return
	}

	ip := GetClientIP(r)

	if total := h.ClientCount(); total >= MaxWSConnectionsTotal {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", total)
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.wsLimiter.Release(ip)
		return
	}
	conn.SetReadLimit(wsReadLimit)

	select {
	case h.register <- &wsClient{conn: conn, ip: ip, format: format}:
	case <-h.stopChan:
		h.wsLimiter.Release(ip)
		conn.Close()
		return
	}

	// The stream is one-way; reading only detects the close.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.stopChan:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
