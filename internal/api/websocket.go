package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// writeWait bounds how long one slow client may stall a broadcast sweep.
const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks happen at the CORS layer; the stream itself is open so
	// investigator dashboards on other hosts can attach.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans analysis alerts and scan events out to every /stream subscriber.
// Payloads arrive on the broadcast channel already JSON-encoded.
type Hub struct {
	mutex       sync.Mutex
	clients     map[*websocket.Conn]bool
	broadcast   chan []byte
	clientGauge prometheus.Gauge
}

// NewHub creates the broadcast hub. clientGauge tracks the connected client
// count and may be nil.
func NewHub(clientGauge prometheus.Gauge) *Hub {
	return &Hub{
		clients:     make(map[*websocket.Conn]bool),
		broadcast:   make(chan []byte, 256),
		clientGauge: clientGauge,
	}
}

// Run drains the broadcast channel, writing each payload to every client.
// Clients that miss the write deadline are dropped on the spot.
func (h *Hub) Run() {
	for payload := range h.broadcast {
		h.mutex.Lock()
		for conn := range h.clients {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("[Hub] Dropping client after write failure: %v", err)
				conn.Close()
				delete(h.clients, conn)
				if h.clientGauge != nil {
					h.clientGauge.Dec()
				}
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe upgrades the request and registers the connection.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Hub] Upgrade failed: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()
	if h.clientGauge != nil {
		h.clientGauge.Inc()
	}

	log.Printf("[Hub] Client connected (%d total)", total)
	go h.readPump(conn)
}

// readPump discards inbound frames until the connection drops. The stream is
// push-only, but reading is what surfaces the disconnect.
func (h *Hub) readPump(conn *websocket.Conn) {
	defer func() {
		// The broadcast loop may have evicted this client already; only
		// the goroutine that removes it from the map decrements the gauge.
		h.mutex.Lock()
		_, present := h.clients[conn]
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mutex.Unlock()
		if present && h.clientGauge != nil {
			h.clientGauge.Dec()
		}
		conn.Close()
		log.Printf("[Hub] Client disconnected (%d remaining)", remaining)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Hub] Read error: %v", err)
			}
			return
		}
	}
}

// Broadcast queues one JSON payload for every connected client.
func (h *Hub) Broadcast(data []byte) {
	h.broadcast <- data
}
