// Package paymentsupervisor polls for winners whose payment deadline has
// lapsed, demotes them and hands the vacated spot to the next eligible
// bidder. It runs on a timer; overlapping runs are safe because both the
// demotion and the promotion are conditional writes.
package paymentsupervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bidspot/internal/events"
	"bidspot/internal/services/winnerresolver"
	"bidspot/internal/store"
)

// SweepResult reports one demotion and, when a spot could be refilled, the
// promoted user.
type SweepResult struct {
	AuctionID      string `json:"auction_id"`
	DemotedUserID  string `json:"demoted_user_id"`
	PromotedUserID string `json:"promoted_user_id,omitempty"`
}

type IPaymentSupervisor interface {
	SweepMissedPayments(ctx context.Context) ([]SweepResult, error)
}

type supervisor struct {
	st       store.Store
	resolver winnerresolver.IWinnerResolver
	pub      *events.Publisher
}

var _ IPaymentSupervisor = (*supervisor)(nil)

func New(st store.Store, resolver winnerresolver.IWinnerResolver, pub *events.Publisher) IPaymentSupervisor {
	return &supervisor{st: st, resolver: resolver, pub: pub}
}

func (s *supervisor) SweepMissedPayments(ctx context.Context) ([]SweepResult, error) {
	now := time.Now().UTC()
	lapsed, err := s.st.ListLapsedWinners(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	results := make([]SweepResult, 0, len(lapsed))
	for _, w := range lapsed {
		// Conditional pending -> missed; losing it means payment arrived or
		// another sweep already demoted this winner. Skip either way.
		demoted, err := s.st.MarkWinnerMissed(ctx, w.ID)
		if err != nil {
			zap.L().Error("sweep.mark_missed",
				zap.String("winner_id", w.ID), zap.Error(err))
			continue
		}
		if !demoted {
			continue
		}
		zap.L().Info("sweep.demoted",
			zap.String("auction_id", w.AuctionID),
			zap.String("user_id", w.UserID),
			zap.Time("deadline", w.PaymentDeadline))

		res := SweepResult{AuctionID: w.AuctionID, DemotedUserID: w.UserID}

		promoted, err := s.resolver.PromoteNext(ctx, w.AuctionID)
		switch {
		case err == nil:
			res.PromotedUserID = promoted.UserID
		case errors.Is(err, winnerresolver.ErrNoEligibleBidder):
			zap.L().Info("sweep.spot_vacant", zap.String("auction_id", w.AuctionID))
		case errors.Is(err, winnerresolver.ErrAlreadyPromoted):
			zap.L().Info("sweep.promotion_raced", zap.String("auction_id", w.AuctionID))
		default:
			zap.L().Error("sweep.promote",
				zap.String("auction_id", w.AuctionID), zap.Error(err))
		}

		s.pub.Publish(ctx, w.AuctionID, "payment_missed", map[string]any{
			"demoted_user_id":  res.DemotedUserID,
			"promoted_user_id": res.PromotedUserID,
		})
		results = append(results, res)
	}
	return results, nil
}
