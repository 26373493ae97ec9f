package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"bidspot/internal/models"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrPriceConflict is returned by AdmitBid when the conditional price
	// update lost against a concurrent bid. The caller re-reads and retries.
	ErrPriceConflict = errors.New("current price changed concurrently")
)

// Store is the persistence surface of the auction core. Every mutation that
// guards an invariant (price ordering, single resolution, one winner per
// user) is a single conditional write so that concurrent callers serialize
// on the row, not on in-process state.
type Store interface {
	// Auctions
	CreateAuction(ctx context.Context, a *models.Auction) error
	GetAuction(ctx context.Context, id string) (*models.Auction, error)
	ListAuctions(ctx context.Context, status string, limit, offset int) ([]models.Auction, error)
	// ListEndedUnprocessed returns ids of auctions past their end time that
	// have neither been resolved nor are currently locked for resolution.
	ListEndedUnprocessed(ctx context.Context, now time.Time, limit int) ([]string, error)

	// Bids
	//
	// AdmitBid inserts the bid and swaps Auction.CurrentPrice from
	// observedPrice to bid.Amount in one atomic step, then refreshes
	// FilledSpots as the count of distinct active bidders. Returns
	// ErrPriceConflict when another bid changed the price first.
	AdmitBid(ctx context.Context, bid *models.Bid, observedPrice decimal.Decimal) error
	// CancelBid flips an active bid to cancelled iff ownerID matches and the
	// auction has not ended (checked against now inside the same statement).
	// Returns false when nothing matched. On success the auction's
	// CurrentPrice and FilledSpots are recomputed from the remaining bids.
	CancelBid(ctx context.Context, bidID, ownerID string, now time.Time) (bool, error)
	GetBid(ctx context.Context, id string) (*models.Bid, error)
	ListActiveBids(ctx context.Context, auctionID string) ([]models.Bid, error)
	MarkBidPaid(ctx context.Context, bidID string) error

	// Resolution lock (per-auction, the only lock in the system).
	//
	// TryLockResolution attempts winners_being_processed false -> true,
	// scoped to ends_at < now and winners_processed = false. Returns false
	// when the row is already locked, already processed or not yet ended.
	TryLockResolution(ctx context.Context, auctionID string, now time.Time) (bool, error)
	// UnlockResolution releases the lock and records whether the winner set
	// was computed. Must be called on every exit path after a successful
	// TryLockResolution.
	UnlockResolution(ctx context.Context, auctionID string, processed bool) error
	MarkAuctionCompleted(ctx context.Context, auctionID string) error

	// Winners
	//
	// InsertWinnerIfAbsent is the idempotent-insert primitive shared by
	// resolution and promotion: it re-checks for an existing
	// (auction_id, user_id) row immediately before inserting and treats a
	// uniqueness conflict as "already present". Returns true iff this call
	// created the row.
	InsertWinnerIfAbsent(ctx context.Context, w *models.Winner) (bool, error)
	GetWinner(ctx context.Context, auctionID, userID string) (*models.Winner, error)
	ListWinners(ctx context.Context, auctionID string) ([]models.Winner, error)
	// ListLapsedWinners returns winners still pending payment whose deadline
	// is strictly before now.
	ListLapsedWinners(ctx context.Context, now time.Time) ([]models.Winner, error)
	// MarkWinnerMissed flips pending_payment -> payment_missed. Returns false
	// when the winner was not pending (already paid, or a concurrent sweep
	// got there first).
	MarkWinnerMissed(ctx context.Context, winnerID string) (bool, error)
	// MarkWinnerPaid flips pending_payment -> paid. Returns false when no
	// pending winner matched.
	MarkWinnerPaid(ctx context.Context, auctionID, userID string) (bool, error)
	SetWinnerEmailSent(ctx context.Context, winnerID string) error

	// In-band notifications
	InsertNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)

	// Identity
	GetUser(ctx context.Context, id string) (*models.User, error)
}
