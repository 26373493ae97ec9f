package auction

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidspot/internal/identity"
	"bidspot/internal/models"
	"bidspot/internal/store"
	"bidspot/internal/store/memstore"
)

func newService(t *testing.T) (IAuctionService, *memstore.MemStore) {
	t.Helper()
	st := memstore.New()
	st.AddUser(models.User{ID: "admin", Email: "admin@example.com", IsAdmin: true})
	st.AddUser(models.User{ID: "alice", Email: "alice@example.com"})
	return NewAuctionService(st, identity.NewDirectory(st)), st
}

func validParams() CreateParams {
	return CreateParams{
		Title:         "GPU hours",
		StartingPrice: decimal.NewFromInt(100),
		MaxSpots:      3,
		EndsAt:        time.Now().UTC().Add(48 * time.Hour),
		CreatedBy:     "admin",
	}
}

func TestCreateAuction(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	a, err := svc.CreateAuction(ctx, validParams())
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, models.AuctionActive, a.Status)
	assert.True(t, a.CurrentPrice.Equal(a.StartingPrice))
	assert.Equal(t, 0, a.FilledSpots)

	stored, err := st.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Title, stored.Title)
}

func TestCreateAuction_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	tests := []struct {
		name    string
		mutate  func(*CreateParams)
		wantErr error
	}{
		{"non_admin", func(p *CreateParams) { p.CreatedBy = "alice" }, ErrNotAuthorized},
		{"zero_spots", func(p *CreateParams) { p.MaxSpots = 0 }, ErrNoSpots},
		{"ends_in_past", func(p *CreateParams) { p.EndsAt = time.Now().UTC().Add(-time.Hour) }, ErrEndsInPast},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(&p)
			_, err := svc.CreateAuction(ctx, p)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestGetAuction_NotFound(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.GetAuction(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListWinners_UnknownAuction(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.ListWinners(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListAuctions_FiltersByStatus(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	a, err := svc.CreateAuction(ctx, validParams())
	require.NoError(t, err)
	_, err = svc.CreateAuction(ctx, validParams())
	require.NoError(t, err)
	require.NoError(t, st.MarkAuctionCompleted(ctx, a.ID))

	active, err := svc.ListAuctions(ctx, string(models.AuctionActive), 10, 0)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := svc.ListAuctions(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
