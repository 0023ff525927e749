package remote

import (
	"sync"

	"github.com/charmbracelet/log"
)

// clientSendBuffer bounds how many outstanding frames a slow client can
// accumulate before it starts missing events rather than stalling the
// evaluator's event loop (spec §4.G: broadcast must never block on a
// client).
const clientSendBuffer = 32

// client is one connected observer's outbound queue.
type client struct {
	id   uint64
	send chan Frame
}

// Hub tracks connected clients and fans out evaluator events to all of
// them, without ever blocking the sender on a slow client (spec §4.G).
//
// Grounded on rustyguts-bken/server/room.go's Room: a mutex-protected map
// of connected clients plus a Broadcast that iterates it under lock.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint64]*client
	nextID  uint64
	log     *log.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		clients: make(map[uint64]*client),
		log:     logger.With("component", "remote.hub"),
	}
}

// Join registers a new client and returns its send queue and an id to
// Leave with later.
func (h *Hub) Join() (id uint64, send <-chan Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	c := &client{id: h.nextID, send: make(chan Frame, clientSendBuffer)}
	h.clients[c.id] = c
	return c.id, c.send
}

// Leave removes a client, closing its send queue.
func (h *Hub) Leave(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.send)
	}
}

// Broadcast fans f out to every connected client. A client whose queue is
// already full drops the frame rather than stalling the others (spec §4.G:
// "broadcasts... to connected observers", no per-client delivery guarantee
// is specified).
func (h *Hub) Broadcast(f Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- f:
		default:
			h.log.Warn("client queue full, dropping frame", "client", c.id, "type", f.Type)
		}
	}
}

// Count reports the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
