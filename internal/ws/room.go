package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// room is the spectator set of one auction.
type room struct {
	auctionID string

	mu    sync.RWMutex
	conns map[conn]struct{}
}

func newRoom(auctionID string) *room {
	return &room{auctionID: auctionID, conns: map[conn]struct{}{}}
}

func (r *room) add(c conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

// remove drops one spectator and reports how many remain. Safe to call for a
// connection that was already pruned.
func (r *room) remove(c conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
	return len(r.conns)
}

func (r *room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *room) broadcast(msg []byte) {
	// Snapshot under the read lock, do the I/O outside it.
	r.mu.RLock()
	conns := make([]conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	var failed []conn
	for _, c := range conns {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			failed = append(failed, c)
		}
	}
	if len(failed) == 0 {
		return
	}
	// Dead writers get pruned here; their readers notice the closed socket
	// and finish the teardown through Hub.Leave.
	zap.L().Debug("ws.prune",
		zap.String("auction_id", r.auctionID),
		zap.Int("count", len(failed)))
	for _, c := range failed {
		r.remove(c)
		_ = c.close()
	}
}
