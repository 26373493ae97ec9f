// Package notify carries side-channel notifications out of the auction core.
// State transitions enqueue a keyed message after they commit; a separate
// dispatcher drains the queue and delivers at-least-once. The core never
// depends on delivery succeeding.
package notify

import (
	"context"
	"sync"

	"bidspot/internal/models"
)

// Message is one outbound notification. Key is the idempotency key: retries
// and duplicate enqueues of the same logical event share the same Key, and
// the dispatcher delivers each Key at most once per dedupe window.
type Message struct {
	Key       string                  `json:"key"`
	Kind      models.NotificationKind `json:"kind"`
	UserID    string                  `json:"user_id"`
	AuctionID string                  `json:"auction_id,omitempty"`
	WinnerID  string                  `json:"winner_id,omitempty"`
	Body      string                  `json:"body"`
}

// WinnerKey builds the idempotency key for a winner notification. One key per
// (auction, user) pair: resolution and promotion retries collapse onto it.
func WinnerKey(auctionID, userID string) string {
	return "winner:" + auctionID + ":" + userID
}

// OutbidKey is unique per displacing bid, so a user outbid twice is told twice.
func OutbidKey(auctionID, displacingBidID string) string {
	return "outbid:" + auctionID + ":" + displacingBidID
}

type Outbox interface {
	Enqueue(ctx context.Context, msg Message) error
}

// MemOutbox records enqueued messages in memory. Intended for tests.
type MemOutbox struct {
	mu   sync.Mutex
	msgs []Message
}

var _ Outbox = (*MemOutbox)(nil)

func NewMemOutbox() *MemOutbox { return &MemOutbox{} }

func (o *MemOutbox) Enqueue(_ context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *MemOutbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, len(o.msgs))
	copy(out, o.msgs)
	return out
}
