// Package capacitygate decides whether a bid enters the ledger. The only
// hard rejections are timing and price ordering; capacity never blocks
// admission. An auction at max_spots still accepts higher bids so that late
// bidders can displace current occupants before close; the winner set is
// capped at resolution, not here.
package capacitygate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bidspot/internal/events"
	"bidspot/internal/models"
	"bidspot/internal/notify"
	"bidspot/internal/services/bidledger"
	"bidspot/internal/store"
)

var (
	ErrAuctionClosed = errors.New("auction closed")
	ErrBidTooLow     = errors.New("bid must exceed current price")

	// ErrBusy means the conditional price update kept losing against
	// concurrent bids until the retry budget ran out. Transient; the client
	// may simply bid again.
	ErrBusy = errors.New("auction busy, try again")
)

type ICapacityGate interface {
	AdmitBid(ctx context.Context, auctionID, userID string, amount decimal.Decimal) (*models.Bid, error)
}

type gate struct {
	st         store.Store
	ledger     bidledger.IBidLedger
	outbox     notify.Outbox
	pub        *events.Publisher
	maxRetries int
}

var _ ICapacityGate = (*gate)(nil)

func New(st store.Store, ledger bidledger.IBidLedger, outbox notify.Outbox, pub *events.Publisher, maxRetries int) ICapacityGate {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &gate{st: st, ledger: ledger, outbox: outbox, pub: pub, maxRetries: maxRetries}
}

func (g *gate) AdmitBid(ctx context.Context, auctionID, userID string, amount decimal.Decimal) (*models.Bid, error) {
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		bid, err := g.tryAdmit(ctx, auctionID, userID, amount)
		if errors.Is(err, store.ErrPriceConflict) {
			continue // fresh read on the next pass
		}
		return bid, err
	}
	return nil, ErrBusy
}

func (g *gate) tryAdmit(ctx context.Context, auctionID, userID string, amount decimal.Decimal) (*models.Bid, error) {
	now := time.Now().UTC()

	a, err := g.st.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("admit bid: %w", err)
	}
	if a.Status != models.AuctionActive || !now.Before(a.EndsAt) {
		return nil, ErrAuctionClosed
	}
	if !amount.GreaterThan(a.CurrentPrice) {
		return nil, ErrBidTooLow
	}

	// Remember who is on top before this bid lands; they are the one being
	// outbid if the admission goes through.
	ranked, err := g.ledger.RankedBidders(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("admit bid: %w", err)
	}
	var displaced *models.RankedBidder
	if len(ranked) > 0 && ranked[0].UserID != userID {
		displaced = &ranked[0]
	}

	bid := &models.Bid{
		ID:        uuid.NewString(),
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
		Status:    models.BidActive,
		CreatedAt: now,
	}
	if err := g.st.AdmitBid(ctx, bid, a.CurrentPrice); err != nil {
		if errors.Is(err, store.ErrPriceConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("admit bid: %w", err)
	}

	if displaced != nil {
		msg := notify.Message{
			Key:       notify.OutbidKey(auctionID, bid.ID),
			Kind:      models.NotifyOutbid,
			UserID:    displaced.UserID,
			AuctionID: auctionID,
			Body:      fmt.Sprintf("You have been outbid on auction %s: new high bid %s", auctionID, amount.String()),
		}
		if err := g.outbox.Enqueue(ctx, msg); err != nil {
			zap.L().Warn("gate.outbid_enqueue",
				zap.String("auction_id", auctionID),
				zap.String("user_id", displaced.UserID),
				zap.Error(err))
		}
	}

	g.pub.Publish(ctx, auctionID, "bid", map[string]any{
		"user_id": userID,
		"amount":  amount.String(),
	})
	return bid, nil
}
