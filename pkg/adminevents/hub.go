// Package adminevents implements the admin API's live event feed: a
// WebSocket push hub that fans out broker-level events (the admin API
// publishes group and topic creation) to every connected operator
// dashboard. It never carries application Messages — those stay on the
// core wire protocol — and is adapted from the reference WebSocket
// hub/client pair, trimmed to the admin plane's much lighter fan-out need:
// each client has only a small fixed-size send buffer and is dropped when
// it fills, with no nonce dedup and no reconnect bookkeeping.
package adminevents

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Event is one admin-level notification pushed to every connected
// dashboard.
type Event struct {
	Kind      string `json:"kind"`
	GroupID   string `json:"group_id,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub tracks every connected dashboard and fans out published events to
// each of them non-blockingly; a dashboard that falls behind is dropped
// rather than allowed to stall the publisher.
type Hub struct {
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}

	publish    chan Event
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// NewHub returns an unstarted Hub; call Run to begin its event loop.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*client]struct{}),
		publish:    make(chan Event, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run drives the hub's fan-out loop until Shutdown is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				c.conn.Close()
			}
			h.clients = nil
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case ev := <-h.publish:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
					delete(h.clients, c)
					close(c.send)
					c.conn.Close()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish enqueues ev for fan-out. It never blocks the caller.
func (h *Hub) Publish(ev Event) {
	ev.Timestamp = time.Now().Unix()
	select {
	case h.publish <- ev:
	default:
		h.logger.Warn().Str("kind", ev.Kind).Msg("admin event dropped, publish channel full")
	}
}

// Shutdown stops the hub and closes every connected dashboard socket.
func (h *Hub) Shutdown() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// ServeWS upgrades r to a WebSocket connection and registers it to
// receive every future published Event until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("admin events upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan Event, 16)}
	h.register <- c

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) writeLoop(c *client) {
	for ev := range c.send {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// readLoop only exists to detect client disconnects; the admin event
// feed is one-directional.
func (h *Hub) readLoop(c *client) {
	defer func() { h.unregister <- c }()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
