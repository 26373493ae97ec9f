// Package auction covers the lifecycle around the bidding core: creating
// auctions, reading them back, and listing winner sets.
package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidspot/internal/identity"
	"bidspot/internal/models"
	"bidspot/internal/store"
)

var (
	ErrNotAuthorized = errors.New("user is not allowed to create auctions")
	ErrEndsInPast    = errors.New("ends_at must be in the future")
	ErrNoSpots       = errors.New("max_spots must be positive")
)

type CreateParams struct {
	Title         string
	Description   string
	StartingPrice decimal.Decimal
	MaxSpots      int
	EndsAt        time.Time
	CreatedBy     string
}

type IAuctionService interface {
	CreateAuction(ctx context.Context, p CreateParams) (*models.Auction, error)
	GetAuction(ctx context.Context, id string) (*models.Auction, error)
	ListAuctions(ctx context.Context, status string, limit, offset int) ([]models.Auction, error)
	ListWinners(ctx context.Context, auctionID string) ([]models.Winner, error)
}

type auctionService struct {
	st  store.Store
	dir identity.Directory
}

var _ IAuctionService = (*auctionService)(nil)

func NewAuctionService(st store.Store, dir identity.Directory) IAuctionService {
	return &auctionService{st: st, dir: dir}
}

func (svc *auctionService) CreateAuction(ctx context.Context, p CreateParams) (*models.Auction, error) {
	isAdmin, err := svc.dir.IsAdmin(ctx, p.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}
	if !isAdmin {
		return nil, ErrNotAuthorized
	}
	if p.MaxSpots < 1 {
		return nil, ErrNoSpots
	}
	now := time.Now().UTC()
	if !p.EndsAt.After(now) {
		return nil, ErrEndsInPast
	}

	a := &models.Auction{
		ID:            uuid.NewString(),
		Title:         p.Title,
		Description:   p.Description,
		StartingPrice: p.StartingPrice,
		CurrentPrice:  p.StartingPrice,
		MaxSpots:      p.MaxSpots,
		EndsAt:        p.EndsAt.UTC(),
		Status:        models.AuctionActive,
		CreatedBy:     p.CreatedBy,
		CreatedAt:     now,
	}
	if err := svc.st.CreateAuction(ctx, a); err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}
	return a, nil
}

func (svc *auctionService) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	a, err := svc.st.GetAuction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("auction %s: %w", id, err)
	}
	return a, nil
}

func (svc *auctionService) ListAuctions(ctx context.Context, status string, limit, offset int) ([]models.Auction, error) {
	return svc.st.ListAuctions(ctx, status, limit, offset)
}

func (svc *auctionService) ListWinners(ctx context.Context, auctionID string) ([]models.Winner, error) {
	if _, err := svc.st.GetAuction(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("auction %s: %w", auctionID, err)
	}
	return svc.st.ListWinners(ctx, auctionID)
}
