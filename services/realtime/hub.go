// Package realtime pushes attendance change notifications to websocket clients.
package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brijeshkumar2024/smart-attendance/core"
)

const (
	writeWait = 10 * time.Second

	// pongWait must be longer than pingPeriod
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendQueueSize = 16
)

type (
	// Hub fans attendance events out to connected websocket clients.
	// Clients that cannot keep up are dropped.
	Hub struct {
		logger core.Logger

		clients    map[*client]bool
		register   chan *client
		unregister chan *client
		broadcast  chan []byte
	}

	client struct {
		hub  *Hub
		conn *websocket.Conn
		send chan []byte
	}
)

var _ core.Broadcaster = (*Hub)(nil)

func NewHub(logger core.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, sendQueueSize),
	}
}

// Run processes registrations and broadcasts until `done` is closed.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			h.drop(c)
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default: // slow client
					h.drop(c)
				}
			}
		case <-done:
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// BroadcastAttendanceChange queues an event for delivery to all clients.
// Delivery is best effort; the event is dropped when the queue is full.
func (h *Hub) BroadcastAttendanceChange(evt core.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("marshaling attendance event", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("dropping attendance event, broadcast queue full")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request to a websocket subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, sendQueueSize)}
	h.register <- c

	go c.writePump()
	go c.readPump()
	return nil
}

// readPump discards inbound messages and detects client disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
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

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
