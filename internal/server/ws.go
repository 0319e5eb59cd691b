package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/ayusman/agni/internal/app"
	"github.com/ayusman/agni/internal/log"
)

const (
	clientBuffer = 16
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

type client struct {
	send    chan []byte
	limiter *rate.Limiter
}

// EventHub broadcasts app events to websocket clients as JSON text messages.
// Each client has its own rate limit; events over the limit, or arriving
// while the client's buffer is full, are dropped for that client only.
type EventHub struct {
	limit   rate.Limit
	burst   int
	clients map[*client]struct{}
	mu      sync.RWMutex
	dropped atomic.Int64
}

// NewEventHub creates a hub that lets each client receive perSecond events.
func NewEventHub(perSecond float64) *EventHub {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &EventHub{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[*client]struct{}),
	}
}

// Publish queues e for every connected client. It never blocks.
func (h *EventHub) Publish(e app.Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warn(log.Fields{"type": e.Type, "error": err}, "encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.limiter.Allow() {
			h.dropped.Add(1)
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many per-client deliveries were skipped.
func (h *EventHub) Dropped() int64 {
	return h.dropped.Load()
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn(log.Fields{"remote": r.RemoteAddr, "error": err}, "websocket upgrade")
		return
	}
	defer conn.Close()

	c := &client{
		send:    make(chan []byte, clientBuffer),
		limiter: rate.NewLimiter(h.limit, h.burst),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()

	// Reads only detect the close; clients have nothing to say.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case msg := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
