package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidspot/internal/models"
	"bidspot/internal/store"
)

func openAuction(t *testing.T, m *MemStore, maxSpots int) *models.Auction {
	t.Helper()
	a := &models.Auction{
		ID:            "auc1",
		StartingPrice: decimal.NewFromInt(5),
		CurrentPrice:  decimal.NewFromInt(5),
		MaxSpots:      maxSpots,
		EndsAt:        time.Now().UTC().Add(time.Hour),
		Status:        models.AuctionActive,
	}
	require.NoError(t, m.CreateAuction(context.Background(), a))
	return a
}

func bid(id, user string, amount int64) *models.Bid {
	return &models.Bid{
		ID:        id,
		AuctionID: "auc1",
		UserID:    user,
		Amount:    decimal.NewFromInt(amount),
		Status:    models.BidActive,
		CreatedAt: time.Now().UTC(),
	}
}

func TestAdmitBid_SwapsPriceOnMatch(t *testing.T) {
	ctx := context.Background()
	m := New()
	openAuction(t, m, 3)

	require.NoError(t, m.AdmitBid(ctx, bid("b1", "alice", 10), decimal.NewFromInt(5)))

	a, err := m.GetAuction(ctx, "auc1")
	require.NoError(t, err)
	assert.True(t, a.CurrentPrice.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 1, a.FilledSpots)
}

func TestAdmitBid_StaleObservedPrice(t *testing.T) {
	ctx := context.Background()
	m := New()
	openAuction(t, m, 3)

	require.NoError(t, m.AdmitBid(ctx, bid("b1", "alice", 10), decimal.NewFromInt(5)))
	err := m.AdmitBid(ctx, bid("b2", "bob", 12), decimal.NewFromInt(5))
	assert.ErrorIs(t, err, store.ErrPriceConflict)

	a, err := m.GetAuction(ctx, "auc1")
	require.NoError(t, err)
	assert.True(t, a.CurrentPrice.Equal(decimal.NewFromInt(10)), "losing swap leaves the price untouched")
}

func TestAdmitBid_CountsDistinctBidders(t *testing.T) {
	ctx := context.Background()
	m := New()
	openAuction(t, m, 3)

	require.NoError(t, m.AdmitBid(ctx, bid("b1", "alice", 10), decimal.NewFromInt(5)))
	require.NoError(t, m.AdmitBid(ctx, bid("b2", "alice", 12), decimal.NewFromInt(10)))
	require.NoError(t, m.AdmitBid(ctx, bid("b3", "bob", 15), decimal.NewFromInt(12)))

	a, err := m.GetAuction(ctx, "auc1")
	require.NoError(t, err)
	assert.Equal(t, 2, a.FilledSpots, "two bids from one user fill one spot")
}

func TestCancelBid_RecomputesPriceAndSpots(t *testing.T) {
	ctx := context.Background()
	m := New()
	openAuction(t, m, 3)

	require.NoError(t, m.AdmitBid(ctx, bid("b1", "alice", 10), decimal.NewFromInt(5)))
	require.NoError(t, m.AdmitBid(ctx, bid("b2", "bob", 20), decimal.NewFromInt(10)))

	ok, err := m.CancelBid(ctx, "b2", "bob", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	a, err := m.GetAuction(ctx, "auc1")
	require.NoError(t, err)
	assert.True(t, a.CurrentPrice.Equal(decimal.NewFromInt(10)), "price falls back to the highest remaining bid")
	assert.Equal(t, 1, a.FilledSpots)
}

func TestCancelBid_LastBidRestoresStartingPrice(t *testing.T) {
	ctx := context.Background()
	m := New()
	openAuction(t, m, 3)

	require.NoError(t, m.AdmitBid(ctx, bid("b1", "alice", 10), decimal.NewFromInt(5)))

	ok, err := m.CancelBid(ctx, "b1", "alice", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	a, err := m.GetAuction(ctx, "auc1")
	require.NoError(t, err)
	assert.True(t, a.CurrentPrice.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 0, a.FilledSpots)
}

func TestCancelBid_WrongOwner(t *testing.T) {
	ctx := context.Background()
	m := New()
	openAuction(t, m, 3)
	require.NoError(t, m.AdmitBid(ctx, bid("b1", "alice", 10), decimal.NewFromInt(5)))

	ok, err := m.CancelBid(ctx, "b1", "bob", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTryLockResolution(t *testing.T) {
	ctx := context.Background()
	m := New()
	a := openAuction(t, m, 3)
	a.EndsAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, m.CreateAuction(ctx, a))

	locked, err := m.TryLockResolution(ctx, "auc1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, locked)

	again, err := m.TryLockResolution(ctx, "auc1", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, again, "lock is exclusive")

	require.NoError(t, m.UnlockResolution(ctx, "auc1", true))
	after, err := m.TryLockResolution(ctx, "auc1", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, after, "processed auctions never relock")
}

func TestTryLockResolution_NotEnded(t *testing.T) {
	ctx := context.Background()
	m := New()
	openAuction(t, m, 3)

	locked, err := m.TryLockResolution(ctx, "auc1", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestInsertWinnerIfAbsent(t *testing.T) {
	ctx := context.Background()
	m := New()
	openAuction(t, m, 3)

	w := &models.Winner{
		ID: "w1", AuctionID: "auc1", UserID: "alice",
		WinningBidID:    "b1",
		Status:          models.WinnerPendingPayment,
		PaymentDeadline: time.Now().UTC().Add(24 * time.Hour),
	}
	created, err := m.InsertWinnerIfAbsent(ctx, w)
	require.NoError(t, err)
	assert.True(t, created)

	dup := *w
	dup.ID = "w2"
	created, err = m.InsertWinnerIfAbsent(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created, "one winner row per user per auction")

	winners, err := m.ListWinners(ctx, "auc1")
	require.NoError(t, err)
	assert.Len(t, winners, 1)
}

func TestListLapsedWinners(t *testing.T) {
	ctx := context.Background()
	m := New()
	openAuction(t, m, 3)

	now := time.Now().UTC()
	for _, w := range []models.Winner{
		{ID: "w1", AuctionID: "auc1", UserID: "alice", Status: models.WinnerPendingPayment, PaymentDeadline: now.Add(-time.Minute)},
		{ID: "w2", AuctionID: "auc1", UserID: "bob", Status: models.WinnerPendingPayment, PaymentDeadline: now.Add(time.Hour)},
		{ID: "w3", AuctionID: "auc1", UserID: "carol", Status: models.WinnerPaid, PaymentDeadline: now.Add(-time.Hour)},
	} {
		cp := w
		created, err := m.InsertWinnerIfAbsent(ctx, &cp)
		require.NoError(t, err)
		require.True(t, created)
	}

	lapsed, err := m.ListLapsedWinners(ctx, now)
	require.NoError(t, err)
	require.Len(t, lapsed, 1)
	assert.Equal(t, "alice", lapsed[0].UserID)
}
