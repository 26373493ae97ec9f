package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AuctionStatus string

const (
	AuctionActive    AuctionStatus = "active"
	AuctionClosing   AuctionStatus = "closing"
	AuctionCompleted AuctionStatus = "completed"
)

type BidStatus string

const (
	BidActive    BidStatus = "active"
	BidCancelled BidStatus = "cancelled"
	BidPaid      BidStatus = "paid"
)

type WinnerStatus string

const (
	WinnerPendingPayment   WinnerStatus = "pending_payment"
	WinnerPaid             WinnerStatus = "paid"
	WinnerPaymentMissed    WinnerStatus = "payment_missed"
	WinnerServiceDelivered WinnerStatus = "service_delivered"
)

type NotificationKind string

const (
	NotifyWinner        NotificationKind = "winner"
	NotifyOutbid        NotificationKind = "outbid"
	NotifyNewAuction    NotificationKind = "new_auction"
	NotifyAuctionEnding NotificationKind = "auction_ending"
)

// Auction is a limited-spot timed auction. CurrentPrice and FilledSpots are
// denormalized from the active bids; FilledSpots counts distinct active
// bidders and may exceed MaxSpots (over-subscription is allowed, only
// resolution caps the winner set).
type Auction struct {
	ID                    string          `json:"id"`
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	StartingPrice         decimal.Decimal `json:"starting_price"`
	CurrentPrice          decimal.Decimal `json:"current_price"`
	MaxSpots              int             `json:"max_spots"`
	FilledSpots           int             `json:"filled_spots"`
	EndsAt                time.Time       `json:"ends_at"`
	Status                AuctionStatus   `json:"status"`
	WinnersProcessed      bool            `json:"winners_processed"`
	WinnersBeingProcessed bool            `json:"-"`
	CreatedBy             string          `json:"created_by"`
	CreatedAt             time.Time       `json:"created_at"`
}

type Bid struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    BidStatus       `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Winner is one occupied spot. At most one row exists per
// (AuctionID, UserID); WinningBidID references the bid that earned the spot
// and is immutable once set.
type Winner struct {
	ID              string       `json:"id"`
	AuctionID       string       `json:"auction_id"`
	UserID          string       `json:"user_id"`
	WinningBidID    string       `json:"winning_bid_id"`
	PaymentDeadline time.Time    `json:"payment_deadline"`
	Status          WinnerStatus `json:"status"`
	EmailSent       bool         `json:"email_sent"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Notification is the in-band (on-site) notification record. Outbound email
// delivery is handled separately by the dispatcher.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Kind      NotificationKind `json:"kind"`
	AuctionID string           `json:"auction_id,omitempty"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}

type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// RankedBidder is one entry of a ranking query: a distinct user together
// with their highest active bid.
type RankedBidder struct {
	UserID   string          `json:"user_id"`
	BidID    string          `json:"bid_id"`
	Amount   decimal.Decimal `json:"amount"`
	PlacedAt time.Time       `json:"placed_at"`
}
