// Package bidledger is the read side of the bid record: the ranking query
// that every winner decision is derived from, plus pre-close cancellation.
package bidledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bidspot/internal/models"
	"bidspot/internal/store"
)

var ErrNotCancellable = errors.New("bid not cancellable")

type IBidLedger interface {
	// RankedBidders returns distinct users ordered by their highest active
	// bid, descending; ties break by earliest placement.
	RankedBidders(ctx context.Context, auctionID string) ([]models.RankedBidder, error)
	CancelBid(ctx context.Context, bidID, ownerID string) error
}

type bidLedger struct {
	st store.Store
}

var _ IBidLedger = (*bidLedger)(nil)

func New(st store.Store) IBidLedger {
	return &bidLedger{st: st}
}

func (l *bidLedger) RankedBidders(ctx context.Context, auctionID string) ([]models.RankedBidder, error) {
	bids, err := l.st.ListActiveBids(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("rank auction %s: %w", auctionID, err)
	}
	return Rank(bids), nil
}

func (l *bidLedger) CancelBid(ctx context.Context, bidID, ownerID string) error {
	ok, err := l.st.CancelBid(ctx, bidID, ownerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cancel bid %s: %w", bidID, err)
	}
	if !ok {
		return ErrNotCancellable
	}
	return nil
}

// Rank reduces a flat bid list to one entry per user (their highest active
// bid) and orders entries by amount descending. Ties break by earliest
// CreatedAt, then bid ID, so the order is total and repeated calls over the
// same bids always agree.
func Rank(bids []models.Bid) []models.RankedBidder {
	best := make(map[string]*models.Bid, len(bids))
	order := make([]string, 0, len(bids))
	for i := range bids {
		b := &bids[i]
		if b.Status != models.BidActive {
			continue
		}
		cur, ok := best[b.UserID]
		if !ok {
			order = append(order, b.UserID)
			best[b.UserID] = b
			continue
		}
		if b.Amount.GreaterThan(cur.Amount) ||
			(b.Amount.Equal(cur.Amount) && b.CreatedAt.Before(cur.CreatedAt)) {
			best[b.UserID] = b
		}
	}

	ranked := make([]models.RankedBidder, 0, len(order))
	for _, userID := range order {
		b := best[userID]
		ranked = append(ranked, models.RankedBidder{
			UserID:   b.UserID,
			BidID:    b.ID,
			Amount:   b.Amount,
			PlacedAt: b.CreatedAt,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.GreaterThan(b.Amount)
		}
		if !a.PlacedAt.Equal(b.PlacedAt) {
			return a.PlacedAt.Before(b.PlacedAt)
		}
		return a.BidID < b.BidID
	})
	return ranked
}
