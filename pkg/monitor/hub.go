package monitor

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/lumenvr/go-lumen/internal/log"
)

const (
	// writeWait is how long to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024
)

// hub fans broadcast messages out to the connected websocket clients
// using the channel-based fan-out pattern. Slow clients are dropped
// rather than allowed to stall the feed.
type hub struct {
	name string

	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	quit       chan struct{}

	// mu guards clients for count reads from outside the run loop.
	mu sync.RWMutex
}

func newHub(name string) *hub {
	return &hub{
		name:       name,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		quit:       make(chan struct{}),
	}
}

// run is the hub's main loop. Call in a goroutine; stop ends it.
func (h *hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Info("feed client connected", "feed", h.name, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Info("feed client disconnected", "feed", h.name, "clients", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Buffer full: the client cannot keep up.
					close(client.send)
					delete(h.clients, client)
					log.Warn("dropped slow feed client", "feed", h.name)
				}
			}
			h.mu.Unlock()

		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *hub) stop() {
	close(h.quit)
}

// broadcastJSON encodes v and queues it for all clients. The message
// is dropped when the broadcast queue is full.
func (h *hub) broadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
	default:
		log.Warn("feed broadcast queue full, dropping message", "feed", h.name)
	}
	return nil
}

func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// wsClient is one websocket subscriber.
type wsClient struct {
	hub  *hub
	conn *websocket.Conn
	send chan []byte
}

func newWSClient(h *hub, conn *websocket.Conn) *wsClient {
	return &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
	}
}

// serve registers with the hub and runs the read and write pumps. It
// blocks until the connection closes.
func (c *wsClient) serve() {
	select {
	case c.hub.register <- c:
	case <-c.hub.quit:
		c.conn.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

// readPump drains the connection to detect disconnects and receive
// pongs. Subscribers are not expected to send anything.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
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
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only goroutine writing to the connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
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
