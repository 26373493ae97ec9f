// Package payment records the terminal "paid" transition reported by the
// external payment gateway's webhook. Capture itself happens elsewhere; the
// core only flips winner and bid state.
package payment

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"bidspot/internal/events"
	"bidspot/internal/store"
)

var ErrNoPendingPayment = errors.New("no pending payment for this user and auction")

type IPaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, auctionID, userID string) error
}

type confirmer struct {
	st  store.Store
	pub *events.Publisher
}

var _ IPaymentConfirmer = (*confirmer)(nil)

func New(st store.Store, pub *events.Publisher) IPaymentConfirmer {
	return &confirmer{st: st, pub: pub}
}

func (c *confirmer) ConfirmPayment(ctx context.Context, auctionID, userID string) error {
	w, err := c.st.GetWinner(ctx, auctionID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoPendingPayment
		}
		return fmt.Errorf("confirm payment: %w", err)
	}

	ok, err := c.st.MarkWinnerPaid(ctx, auctionID, userID)
	if err != nil {
		return fmt.Errorf("confirm payment: %w", err)
	}
	if !ok {
		// Already paid, or the deadline sweep demoted the winner first.
		return ErrNoPendingPayment
	}

	if err := c.st.MarkBidPaid(ctx, w.WinningBidID); err != nil {
		zap.L().Error("payment.mark_bid",
			zap.String("bid_id", w.WinningBidID), zap.Error(err))
	}

	c.pub.Publish(ctx, auctionID, "winner_paid", map[string]any{
		"user_id": userID,
	})
	return nil
}
