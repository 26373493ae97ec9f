// Package winnerresolver closes ended auctions exactly once and turns the
// bid ranking into Winner rows. It also owns promotion: filling a single
// vacated spot with the next eligible bidder, using the same idempotent
// winner insert as initial resolution.
package winnerresolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bidspot/internal/events"
	"bidspot/internal/models"
	"bidspot/internal/notify"
	"bidspot/internal/services/bidledger"
	"bidspot/internal/store"
)

var (
	// ErrAlreadyProcessing: another caller holds the per-auction lock right
	// now. Expected under concurrent scheduler ticks; treat as a no-op.
	ErrAlreadyProcessing = errors.New("auction winners already being processed")
	// ErrNothingToProcess: the auction has not ended yet.
	ErrNothingToProcess = errors.New("nothing to process")
	// ErrNoEligibleBidder: every ranked bidder already holds a winner row,
	// so the vacated spot stays vacant.
	ErrNoEligibleBidder = errors.New("no eligible bidder to promote")
	// ErrAlreadyPromoted: a concurrent sweep promoted the candidate between
	// our ranking read and the insert. The spot is filled; nothing to do.
	ErrAlreadyPromoted = errors.New("next bidder already promoted concurrently")
)

// Result is the winner set of a resolved auction.
type Result struct {
	AuctionID string          `json:"auction_id"`
	Winners   []models.Winner `json:"winners"`
}

type IWinnerResolver interface {
	// ResolveAuction closes an ended auction exactly once. Safe to call
	// repeatedly: once winners are processed it returns the existing set.
	ResolveAuction(ctx context.Context, auctionID string) (*Result, error)
	// PromoteNext fills one vacated spot with the highest-ranked bidder who
	// does not already hold a winner row, on a fresh payment deadline.
	PromoteNext(ctx context.Context, auctionID string) (*models.Winner, error)
}

type resolver struct {
	st            store.Store
	ledger        bidledger.IBidLedger
	outbox        notify.Outbox
	pub           *events.Publisher
	paymentWindow time.Duration
}

var _ IWinnerResolver = (*resolver)(nil)

func New(st store.Store, ledger bidledger.IBidLedger, outbox notify.Outbox, pub *events.Publisher, paymentWindow time.Duration) IWinnerResolver {
	return &resolver{
		st:            st,
		ledger:        ledger,
		outbox:        outbox,
		pub:           pub,
		paymentWindow: paymentWindow,
	}
}

func (r *resolver) ResolveAuction(ctx context.Context, auctionID string) (*Result, error) {
	now := time.Now().UTC()

	locked, err := r.st.TryLockResolution(ctx, auctionID, now)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", auctionID, err)
	}
	if !locked {
		a, err := r.st.GetAuction(ctx, auctionID)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", auctionID, err)
		}
		if a.WinnersProcessed {
			winners, err := r.st.ListWinners(ctx, auctionID)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", auctionID, err)
			}
			return &Result{AuctionID: auctionID, Winners: winners}, nil
		}
		if a.WinnersBeingProcessed {
			return nil, ErrAlreadyProcessing
		}
		return nil, ErrNothingToProcess
	}

	// Lock held from here. It is released on every exit path; processed is
	// only recorded once the winner set has been computed. The unlock must
	// not ride on the caller's context: a client disconnect or shutdown
	// mid-run would fail the release and strand the auction locked forever.
	processed := false
	defer func() {
		unlockCtx := context.WithoutCancel(ctx)
		if err := r.st.UnlockResolution(unlockCtx, auctionID, processed); err != nil {
			zap.L().Error("resolve.unlock", zap.String("auction_id", auctionID), zap.Error(err))
		}
	}()

	a, err := r.st.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", auctionID, err)
	}
	if err := r.st.MarkAuctionCompleted(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", auctionID, err)
	}

	ranked, err := r.ledger.RankedBidders(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", auctionID, err)
	}
	if len(ranked) > a.MaxSpots {
		ranked = ranked[:a.MaxSpots]
	}
	// The winner set is decided; per-winner failures below are logged and
	// must not keep the auction from being marked processed.
	processed = true

	for _, entry := range ranked {
		if err := r.ensureWinner(ctx, auctionID, entry, now); err != nil {
			zap.L().Error("resolve.winner",
				zap.String("auction_id", auctionID),
				zap.String("user_id", entry.UserID),
				zap.Error(err))
		}
	}

	winners, err := r.st.ListWinners(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", auctionID, err)
	}

	r.pub.Publish(ctx, auctionID, "completed", map[string]any{
		"winner_count": len(winners),
	})
	return &Result{AuctionID: auctionID, Winners: winners}, nil
}

func (r *resolver) PromoteNext(ctx context.Context, auctionID string) (*models.Winner, error) {
	ranked, err := r.ledger.RankedBidders(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("promote %s: %w", auctionID, err)
	}
	existing, err := r.st.ListWinners(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("promote %s: %w", auctionID, err)
	}
	taken := make(map[string]struct{}, len(existing))
	for _, w := range existing {
		// Any winner row blocks re-promotion, including payment_missed:
		// a demoted user never gets the spot back.
		taken[w.UserID] = struct{}{}
	}

	for _, entry := range ranked {
		if _, ok := taken[entry.UserID]; ok {
			continue
		}
		now := time.Now().UTC()
		w := &models.Winner{
			ID:              uuid.NewString(),
			AuctionID:       auctionID,
			UserID:          entry.UserID,
			WinningBidID:    entry.BidID,
			PaymentDeadline: now.Add(r.paymentWindow),
			Status:          models.WinnerPendingPayment,
			CreatedAt:       now,
		}
		created, err := r.st.InsertWinnerIfAbsent(ctx, w)
		if err != nil {
			return nil, fmt.Errorf("promote %s: %w", auctionID, err)
		}
		if !created {
			// Lost the race against an overlapping sweep. The spot this
			// call was filling is taken; do not promote a further bidder.
			return nil, ErrAlreadyPromoted
		}
		r.announceWinner(ctx, w)
		r.pub.Publish(ctx, auctionID, "promoted", map[string]any{
			"user_id": w.UserID,
		})
		return w, nil
	}
	return nil, ErrNoEligibleBidder
}

// ensureWinner idempotently materializes one winner row plus its
// notifications. Re-runs for an existing (auction, user) pair are no-ops.
func (r *resolver) ensureWinner(ctx context.Context, auctionID string, entry models.RankedBidder, now time.Time) error {
	w := &models.Winner{
		ID:              uuid.NewString(),
		AuctionID:       auctionID,
		UserID:          entry.UserID,
		WinningBidID:    entry.BidID,
		PaymentDeadline: now.Add(r.paymentWindow),
		Status:          models.WinnerPendingPayment,
		CreatedAt:       now,
	}
	created, err := r.st.InsertWinnerIfAbsent(ctx, w)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	r.announceWinner(ctx, w)
	return nil
}

// announceWinner writes the in-band notification row and enqueues the
// outbound message. Both are best effort; winner state is the source of truth.
func (r *resolver) announceWinner(ctx context.Context, w *models.Winner) {
	body := fmt.Sprintf("You won a spot in auction %s. Payment is due by %s.",
		w.AuctionID, w.PaymentDeadline.Format(time.RFC3339))

	n := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    w.UserID,
		Kind:      models.NotifyWinner,
		AuctionID: w.AuctionID,
		Message:   body,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.st.InsertNotification(ctx, n); err != nil {
		zap.L().Warn("resolve.notification_row",
			zap.String("auction_id", w.AuctionID),
			zap.String("user_id", w.UserID),
			zap.Error(err))
	}

	msg := notify.Message{
		Key:       notify.WinnerKey(w.AuctionID, w.UserID),
		Kind:      models.NotifyWinner,
		UserID:    w.UserID,
		AuctionID: w.AuctionID,
		WinnerID:  w.ID,
		Body:      body,
	}
	if err := r.outbox.Enqueue(ctx, msg); err != nil {
		zap.L().Warn("resolve.winner_enqueue",
			zap.String("auction_id", w.AuctionID),
			zap.String("user_id", w.UserID),
			zap.Error(err))
	}
}
