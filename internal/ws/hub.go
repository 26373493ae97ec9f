package ws

import (
	"sync"
)

// conn is the slice of a websocket connection the fan-out needs. Tests swap
// in fakes; production uses *clientConn.
type conn interface {
	write(mt int, data []byte) error
	close() error
}

// Hub fans auction events out to the spectators of each auction. Rooms are
// created on first join and dropped again when the last spectator leaves, so
// an idle server holds no per-auction state.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub() *Hub {
	return &Hub{rooms: map[string]*room{}}
}

// Broadcast is called by the Redis subscriber.
func (h *Hub) Broadcast(auctionID string, msg []byte) {
	h.mu.Lock()
	r := h.rooms[auctionID]
	h.mu.Unlock()
	if r != nil {
		r.broadcast(msg)
	}
}

func (h *Hub) Join(auctionID string, c conn) {
	h.mu.Lock()
	r, ok := h.rooms[auctionID]
	if !ok {
		r = newRoom(auctionID)
		h.rooms[auctionID] = r
	}
	h.mu.Unlock()
	r.add(c)
}

func (h *Hub) Leave(auctionID string, c conn) {
	h.mu.Lock()
	r := h.rooms[auctionID]
	if r != nil && r.remove(c) == 0 {
		delete(h.rooms, auctionID)
	}
	h.mu.Unlock()
	if r != nil {
		_ = c.close()
	}
}

// Spectators reports the number of clients watching an auction.
func (h *Hub) Spectators(auctionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[auctionID]; ok {
		return r.size()
	}
	return 0
}
