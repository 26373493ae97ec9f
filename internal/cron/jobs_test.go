package cronrunner

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidspot/internal/models"
	"bidspot/internal/notify"
	"bidspot/internal/services/bidledger"
	"bidspot/internal/services/winnerresolver"
	"bidspot/internal/store/memstore"
)

func TestResolveDueAuctions(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	st := memstore.New()

	ended := &models.Auction{
		ID:            "ended",
		StartingPrice: decimal.NewFromInt(1),
		CurrentPrice:  decimal.NewFromInt(1),
		MaxSpots:      1,
		EndsAt:        now.Add(time.Hour),
		Status:        models.AuctionActive,
	}
	require.NoError(t, st.CreateAuction(ctx, ended))
	require.NoError(t, st.AdmitBid(ctx, &models.Bid{
		ID: "b1", AuctionID: "ended", UserID: "alice",
		Amount: decimal.NewFromInt(10), Status: models.BidActive, CreatedAt: now,
	}, decimal.NewFromInt(1)))
	stored, err := st.GetAuction(ctx, "ended")
	require.NoError(t, err)
	stored.EndsAt = now.Add(-time.Minute)
	require.NoError(t, st.CreateAuction(ctx, stored))

	require.NoError(t, st.CreateAuction(ctx, &models.Auction{
		ID:            "running",
		StartingPrice: decimal.NewFromInt(1),
		CurrentPrice:  decimal.NewFromInt(1),
		MaxSpots:      1,
		EndsAt:        now.Add(time.Hour),
		Status:        models.AuctionActive,
	}))

	resolver := winnerresolver.New(st, bidledger.New(st), notify.NewMemOutbox(), nil, 24*time.Hour)
	job := ResolveDueAuctions(st, resolver)

	job(ctx)

	a, err := st.GetAuction(ctx, "ended")
	require.NoError(t, err)
	assert.True(t, a.WinnersProcessed)
	assert.Equal(t, models.AuctionCompleted, a.Status)

	winners, err := st.ListWinners(ctx, "ended")
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Equal(t, "alice", winners[0].UserID)

	running, err := st.GetAuction(ctx, "running")
	require.NoError(t, err)
	assert.False(t, running.WinnersProcessed)
	assert.Equal(t, models.AuctionActive, running.Status)

	// Second tick is a no-op.
	job(ctx)
	winners, err = st.ListWinners(ctx, "ended")
	require.NoError(t, err)
	assert.Len(t, winners, 1)
}
