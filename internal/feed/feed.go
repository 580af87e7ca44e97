// Package feed broadcasts warning and error events from the processing
// pipeline to connected admin websocket clients.
package feed

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Level string

const (
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Event struct {
	Level     Level     `json:"level"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	queueSize     = 100
	clientBuffer  = 16
	writeDeadline = 10 * time.Second
	pingPeriod    = 30 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan *Event
}

// Hub fans events out to every connected client. Publishing never blocks the
// pipeline: events are dropped when the queue or a client buffer is full.
type Hub struct {
	upgrader websocket.Upgrader
	queue    chan *Event

	mu      sync.Mutex
	clients map[*client]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		queue:   make(chan *Event, queueSize),
		clients: make(map[*client]bool),
		stopCh:  make(chan struct{}),
	}
}

func (h *Hub) Start() {
	h.wg.Add(1)
	go h.broadcaster()
}

func (h *Hub) Stop() {
	close(h.stopCh)
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

func (h *Hub) Warnf(source, format string, args ...interface{}) {
	h.publish(LevelWarning, source, fmt.Sprintf(format, args...))
}

func (h *Hub) Errorf(source, format string, args ...interface{}) {
	h.publish(LevelError, source, fmt.Sprintf(format, args...))
}

func (h *Hub) publish(level Level, source, message string) {
	event := &Event{
		Level:     level,
		Source:    source,
		Message:   message,
		Timestamp: time.Now(),
	}

	select {
	case h.queue <- event:
	default:
		log.Printf("[feed] queue full, dropping %s event from %s", level, source)
	}
}

func (h *Hub) broadcaster() {
	defer h.wg.Done()

	for {
		select {
		case <-h.stopCh:
			return
		case event := <-h.queue:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- event:
				default:
					// Slow consumer; drop the event rather than stall.
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount reports the number of connected admin clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades an admin request to a websocket session and streams
// events until the client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	c := &client{
		conn: conn,
		send: make(chan *Event, clientBuffer),
	}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writer(c)
	h.reader(c)
	return nil
}

func (h *Hub) writer(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reader drains incoming frames so close and pong control messages are
// processed; admin clients never send data frames.
func (h *Hub) reader(c *client) {
	defer h.drop(c)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}
