package game

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"rugroulette/internal/logging"
)

const (
	writeWait        = 10 * time.Second
	clientQueueSize  = 256
	outboundCapacity = 1024
)

// Conn is the write side of a client connection.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Broadcaster delivers engine events either to every connection or to a
// single one.
type Broadcaster interface {
	Broadcast(evt Event)
	Send(id SessionID, evt Event)
}

type Client struct {
	id   SessionID
	conn Conn
	send chan []byte
	done chan struct{}
}

type outbound struct {
	target SessionID
	all    bool
	event  Event
}

// Hub fans events out to connected clients. All deliveries pass through one
// FIFO queue and each client has its own ordered write queue, so every client
// sees events in the order they were produced.
type Hub struct {
	clients    map[SessionID]*Client
	outbound   chan outbound
	register   chan *Client
	unregister chan SessionID
	failed     chan *Client
	stop       chan struct{}
	done       chan struct{}
	mu         sync.RWMutex
	log        zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[SessionID]*Client),
		outbound:   make(chan outbound, outboundCapacity),
		register:   make(chan *Client),
		unregister: make(chan SessionID),
		failed:     make(chan *Client),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		log:        logging.WithComponent(logger, "hub"),
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.id]; ok {
				close(old.send)
			}
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			go client.writePump(h)
			h.log.Info().Str("session_id", string(client.id)).Int("total", total).Msg("Client connected")

		case id := <-h.unregister:
			h.drop(id, "disconnected")

		case client := <-h.failed:
			h.mu.RLock()
			current := h.clients[client.id] == client
			h.mu.RUnlock()
			if current {
				h.drop(client.id, "write error")
			}

		case msg := <-h.outbound:
			h.deliver(msg)

		case <-h.stop:
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop closes every client and ends Run.
func (h *Hub) Stop() {
	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
	<-h.done
}

func (h *Hub) deliver(msg outbound) {
	data, err := json.Marshal(msg.event)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(msg.event.Type)).Msg("Marshal error")
		return
	}

	if !msg.all {
		h.mu.RLock()
		client, ok := h.clients[msg.target]
		h.mu.RUnlock()
		if ok && !client.enqueue(data) {
			h.drop(client.id, "slow consumer")
		}
		return
	}

	var slow []SessionID
	h.mu.RLock()
	for id, client := range h.clients {
		if !client.enqueue(data) {
			slow = append(slow, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range slow {
		h.drop(id, "slow consumer")
	}
}

func (h *Hub) drop(id SessionID, reason string) {
	h.mu.Lock()
	client, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.log.Info().Str("session_id", string(id)).Str("reason", reason).Int("total", total).Msg("Client removed")
	}
}

// Broadcast queues evt for every connected client. It blocks only while the
// hub queue is full, never on a slow client.
func (h *Hub) Broadcast(evt Event) {
	h.push(outbound{all: true, event: evt})
}

// Send queues evt for the client with the given id only.
func (h *Hub) Send(id SessionID, evt Event) {
	h.push(outbound{target: id, event: evt})
}

func (h *Hub) push(msg outbound) {
	select {
	case h.outbound <- msg:
	case <-h.stop:
	}
}

// RegisterClient adds conn under id. The returned channel is closed once the
// client's writer has stopped and closed conn.
func (h *Hub) RegisterClient(id SessionID, conn Conn) <-chan struct{} {
	client := &Client{
		id:   id,
		conn: conn,
		send: make(chan []byte, clientQueueSize),
		done: make(chan struct{}),
	}
	select {
	case h.register <- client:
	case <-h.stop:
		conn.Close()
		close(client.done)
	}
	return client.done
}

func (h *Hub) UnregisterClient(id SessionID) {
	select {
	case h.unregister <- id:
	case <-h.stop:
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writePump owns all writes to conn. A failed write closes conn, which ends
// the reader's loop, and asks the hub to drop this client.
func (c *Client) writePump(h *Hub) {
	defer close(c.done)
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Warn().Err(err).Str("session_id", string(c.id)).Msg("Write error")
			c.conn.Close()
			select {
			case h.failed <- c:
			case <-h.stop:
			}
			// Drain until the hub closes the queue.
			for range c.send {
			}
			return
		}
	}
}
