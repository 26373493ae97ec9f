package paymentsupervisor

import (
	"context"
	"sync"
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

const paymentWindow = 24 * time.Hour

type fixture struct {
	st  *memstore.MemStore
	res winnerresolver.IWinnerResolver
	sup IPaymentSupervisor
}

// resolvedAuction seeds an ended, resolved auction with the given bids.
func resolvedAuction(t *testing.T, maxSpots int, bids ...models.Bid) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	st := memstore.New()
	require.NoError(t, st.CreateAuction(ctx, &models.Auction{
		ID:            "auc1",
		StartingPrice: decimal.NewFromInt(1),
		CurrentPrice:  decimal.NewFromInt(1),
		MaxSpots:      maxSpots,
		EndsAt:        now.Add(time.Hour),
		Status:        models.AuctionActive,
	}))
	for i := range bids {
		a, err := st.GetAuction(ctx, "auc1")
		require.NoError(t, err)
		observed := a.CurrentPrice
		if bids[i].Amount.LessThanOrEqual(observed) {
			observed = bids[i].Amount.Sub(decimal.NewFromInt(1))
			a.CurrentPrice = observed
			require.NoError(t, st.CreateAuction(ctx, a))
		}
		require.NoError(t, st.AdmitBid(ctx, &bids[i], observed))
	}
	a, err := st.GetAuction(ctx, "auc1")
	require.NoError(t, err)
	a.EndsAt = now.Add(-time.Minute)
	require.NoError(t, st.CreateAuction(ctx, a))

	res := winnerresolver.New(st, bidledger.New(st), notify.NewMemOutbox(), nil, paymentWindow)
	_, err = res.ResolveAuction(ctx, "auc1")
	require.NoError(t, err)

	return &fixture{st: st, res: res, sup: New(st, res, nil)}
}

func seedBid(id, user string, amount int64, at time.Time) models.Bid {
	return models.Bid{
		ID:        id,
		AuctionID: "auc1",
		UserID:    user,
		Amount:    decimal.NewFromInt(amount),
		Status:    models.BidActive,
		CreatedAt: at,
	}
}

// lapse rewinds a winner's deadline into the past.
func lapse(t *testing.T, st *memstore.MemStore, auctionID, userID string) {
	t.Helper()
	ctx := context.Background()
	w, err := st.GetWinner(ctx, auctionID, userID)
	require.NoError(t, err)
	st.SetWinnerDeadline(w.ID, time.Now().UTC().Add(-time.Minute))
}

func TestSweep_PromotesNextEligible(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().UTC().Add(-time.Hour)
	// max_spots=2: winners alice($50) and bob($40); carol($30) waits.
	f := resolvedAuction(t, 2,
		seedBid("b1", "alice", 50, t0),
		seedBid("b2", "bob", 40, t0.Add(time.Minute)),
		seedBid("b3", "carol", 30, t0.Add(2*time.Minute)),
	)

	lapse(t, f.st, "auc1", "alice")

	results, err := f.sup.SweepMissedPayments(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alice", results[0].DemotedUserID)
	assert.Equal(t, "carol", results[0].PromotedUserID, "bob keeps his spot; carol fills the vacancy")

	alice, err := f.st.GetWinner(ctx, "auc1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.WinnerPaymentMissed, alice.Status)

	bob, err := f.st.GetWinner(ctx, "auc1", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.WinnerPendingPayment, bob.Status, "bob is not re-evaluated")

	carol, err := f.st.GetWinner(ctx, "auc1", "carol")
	require.NoError(t, err)
	assert.Equal(t, models.WinnerPendingPayment, carol.Status)
}

func TestSweep_FreshDeadlineForPromoted(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().UTC().Add(-time.Hour)
	f := resolvedAuction(t, 1,
		seedBid("b1", "alice", 20, t0),
		seedBid("b2", "bob", 10, t0.Add(time.Minute)),
	)

	lapse(t, f.st, "auc1", "alice")
	before := time.Now().UTC()

	_, err := f.sup.SweepMissedPayments(ctx)
	require.NoError(t, err)

	bob, err := f.st.GetWinner(ctx, "auc1", "bob")
	require.NoError(t, err)
	assert.False(t, bob.PaymentDeadline.Before(before.Add(paymentWindow)),
		"promoted winner gets a full fresh window, never the demoted one's deadline")
}

func TestSweep_NoEligibleBidder(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().UTC().Add(-time.Hour)
	f := resolvedAuction(t, 1, seedBid("b1", "alice", 20, t0))

	lapse(t, f.st, "auc1", "alice")

	results, err := f.sup.SweepMissedPayments(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alice", results[0].DemotedUserID)
	assert.Empty(t, results[0].PromotedUserID, "spot stays vacant")

	winners, err := f.st.ListWinners(ctx, "auc1")
	require.NoError(t, err)
	assert.Len(t, winners, 1)
}

func TestSweep_DemotedUserNeverRepromoted(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().UTC().Add(-time.Hour)
	f := resolvedAuction(t, 1,
		seedBid("b1", "alice", 20, t0),
		seedBid("b2", "bob", 10, t0.Add(time.Minute)),
	)

	lapse(t, f.st, "auc1", "alice")
	_, err := f.sup.SweepMissedPayments(ctx)
	require.NoError(t, err)

	// Bob misses too. Alice still ranks highest but already holds a
	// payment_missed row, so nobody is left to promote.
	lapse(t, f.st, "auc1", "bob")
	results, err := f.sup.SweepMissedPayments(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "bob", results[0].DemotedUserID)
	assert.Empty(t, results[0].PromotedUserID)
}

func TestSweep_IgnoresPaidAndFutureDeadlines(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().UTC().Add(-time.Hour)
	f := resolvedAuction(t, 2,
		seedBid("b1", "alice", 50, t0),
		seedBid("b2", "bob", 40, t0.Add(time.Minute)),
	)

	// Alice pays; bob's deadline is still in the future.
	ok, err := f.st.MarkWinnerPaid(ctx, "auc1", "alice")
	require.NoError(t, err)
	require.True(t, ok)

	results, err := f.sup.SweepMissedPayments(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSweep_ConcurrentRunsDoNotDoublePromote(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().UTC().Add(-time.Hour)
	f := resolvedAuction(t, 1,
		seedBid("b1", "alice", 30, t0),
		seedBid("b2", "bob", 20, t0.Add(time.Minute)),
		seedBid("b3", "carol", 10, t0.Add(2*time.Minute)),
	)

	lapse(t, f.st, "auc1", "alice")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sup.SweepMissedPayments(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	winners, err := f.st.ListWinners(ctx, "auc1")
	require.NoError(t, err)

	byUser := map[string]int{}
	pending := 0
	for _, w := range winners {
		byUser[w.UserID]++
		if w.Status == models.WinnerPendingPayment {
			pending++
		}
	}
	for user, n := range byUser {
		assert.Equalf(t, 1, n, "user %s must hold at most one winner row", user)
	}
	assert.Equal(t, 1, pending, "exactly one promoted winner despite overlapping sweeps")
}
