// Package memstore is a concurrency-safe in-memory Store used by unit tests
// and local development. Conditional writes take the store mutex for their
// whole read-check-write sequence, which gives them the same atomicity the
// Postgres implementation gets from single conditional UPDATEs.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bidspot/internal/models"
	"bidspot/internal/store"
)

type MemStore struct {
	mu            sync.RWMutex
	auctions      map[string]*models.Auction
	bids          map[string]*models.Bid
	winners       map[string]*models.Winner
	notifications map[string][]models.Notification // userID -> rows
	users         map[string]*models.User

	// AdmitHook, when set, runs between the price check and the price swap
	// of AdmitBid with the mutex released. Tests use it to interleave a
	// competing bid and exercise the conflict path.
	AdmitHook func()
}

var _ store.Store = (*MemStore)(nil)

func New() *MemStore {
	return &MemStore{
		auctions:      make(map[string]*models.Auction),
		bids:          make(map[string]*models.Bid),
		winners:       make(map[string]*models.Winner),
		notifications: make(map[string][]models.Notification),
		users:         make(map[string]*models.User),
	}
}

func (m *MemStore) CreateAuction(_ context.Context, a *models.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.auctions[a.ID] = &cp
	return nil
}

func (m *MemStore) GetAuction(_ context.Context, id string) (*models.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemStore) ListAuctions(_ context.Context, status string, limit, offset int) ([]models.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Auction, 0, len(m.auctions))
	for _, a := range m.auctions {
		if status != "" && string(a.Status) != status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndsAt.After(out[j].EndsAt) })
	if offset >= len(out) {
		return []models.Auction{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) ListEndedUnprocessed(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, a := range m.auctions {
		if a.EndsAt.Before(now) && !a.WinnersProcessed && !a.WinnersBeingProcessed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *MemStore) AdmitBid(_ context.Context, bid *models.Bid, observedPrice decimal.Decimal) error {
	if hook := m.AdmitHook; hook != nil {
		m.mu.RLock()
		a, ok := m.auctions[bid.AuctionID]
		stale := !ok || !a.CurrentPrice.Equal(observedPrice)
		m.mu.RUnlock()
		if stale {
			if !ok {
				return store.ErrNotFound
			}
			return store.ErrPriceConflict
		}
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[bid.AuctionID]
	if !ok {
		return store.ErrNotFound
	}
	if a.Status != models.AuctionActive || !bid.CreatedAt.Before(a.EndsAt) {
		return store.ErrPriceConflict
	}
	if !a.CurrentPrice.Equal(observedPrice) {
		return store.ErrPriceConflict
	}
	cp := *bid
	m.bids[bid.ID] = &cp
	a.CurrentPrice = bid.Amount
	a.FilledSpots = m.distinctActiveBidders(bid.AuctionID)
	return nil
}

func (m *MemStore) CancelBid(_ context.Context, bidID, ownerID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[bidID]
	if !ok || b.UserID != ownerID || b.Status != models.BidActive {
		return false, nil
	}
	a, ok := m.auctions[b.AuctionID]
	if !ok || !now.Before(a.EndsAt) {
		return false, nil
	}
	b.Status = models.BidCancelled
	a.CurrentPrice = m.highestActiveAmount(b.AuctionID, a.StartingPrice)
	a.FilledSpots = m.distinctActiveBidders(b.AuctionID)
	return true, nil
}

func (m *MemStore) GetBid(_ context.Context, id string) (*models.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bids[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemStore) ListActiveBids(_ context.Context, auctionID string) ([]models.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Bid
	for _, b := range m.bids {
		if b.AuctionID == auctionID && b.Status == models.BidActive {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) MarkBidPaid(_ context.Context, bidID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[bidID]
	if !ok {
		return store.ErrNotFound
	}
	b.Status = models.BidPaid
	return nil
}

func (m *MemStore) TryLockResolution(_ context.Context, auctionID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[auctionID]
	if !ok {
		return false, store.ErrNotFound
	}
	if a.WinnersBeingProcessed || a.WinnersProcessed || !a.EndsAt.Before(now) {
		return false, nil
	}
	a.WinnersBeingProcessed = true
	a.Status = models.AuctionClosing
	return true, nil
}

func (m *MemStore) UnlockResolution(_ context.Context, auctionID string, processed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[auctionID]
	if !ok {
		return store.ErrNotFound
	}
	a.WinnersBeingProcessed = false
	if processed {
		a.WinnersProcessed = true
	}
	return nil
}

func (m *MemStore) MarkAuctionCompleted(_ context.Context, auctionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[auctionID]
	if !ok {
		return store.ErrNotFound
	}
	a.Status = models.AuctionCompleted
	return nil
}

func (m *MemStore) InsertWinnerIfAbsent(_ context.Context, w *models.Winner) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.winners {
		if existing.AuctionID == w.AuctionID && existing.UserID == w.UserID {
			return false, nil
		}
	}
	cp := *w
	m.winners[w.ID] = &cp
	return true, nil
}

func (m *MemStore) GetWinner(_ context.Context, auctionID, userID string) (*models.Winner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.winners {
		if w.AuctionID == auctionID && w.UserID == userID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MemStore) ListWinners(_ context.Context, auctionID string) ([]models.Winner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Winner
	for _, w := range m.winners {
		if w.AuctionID == auctionID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) ListLapsedWinners(_ context.Context, now time.Time) ([]models.Winner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Winner
	for _, w := range m.winners {
		if w.Status == models.WinnerPendingPayment && w.PaymentDeadline.Before(now) {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) MarkWinnerMissed(_ context.Context, winnerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.winners[winnerID]
	if !ok || w.Status != models.WinnerPendingPayment {
		return false, nil
	}
	w.Status = models.WinnerPaymentMissed
	return true, nil
}

func (m *MemStore) MarkWinnerPaid(_ context.Context, auctionID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.winners {
		if w.AuctionID == auctionID && w.UserID == userID && w.Status == models.WinnerPendingPayment {
			w.Status = models.WinnerPaid
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) SetWinnerEmailSent(_ context.Context, winnerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.winners[winnerID]
	if !ok {
		return store.ErrNotFound
	}
	w.EmailSent = true
	return nil
}

func (m *MemStore) InsertNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[n.UserID] = append(m.notifications[n.UserID], *n)
	return nil
}

func (m *MemStore) ListNotifications(_ context.Context, userID string, limit int) ([]models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.notifications[userID]
	out := make([]models.Notification, len(rows))
	copy(out, rows)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// SetWinnerDeadline rewrites a winner's payment deadline. Intended for tests.
func (m *MemStore) SetWinnerDeadline(winnerID string, deadline time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.winners[winnerID]; ok {
		w.PaymentDeadline = deadline
	}
}

// AddUser seeds an identity row. Intended for tests and local development.
func (m *MemStore) AddUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = &u
}

// callers must hold mu
func (m *MemStore) distinctActiveBidders(auctionID string) int {
	seen := make(map[string]struct{})
	for _, b := range m.bids {
		if b.AuctionID == auctionID && b.Status == models.BidActive {
			seen[b.UserID] = struct{}{}
		}
	}
	return len(seen)
}

// callers must hold mu
func (m *MemStore) highestActiveAmount(auctionID string, floor decimal.Decimal) decimal.Decimal {
	high := floor
	for _, b := range m.bids {
		if b.AuctionID == auctionID && b.Status == models.BidActive && b.Amount.GreaterThan(high) {
			high = b.Amount
		}
	}
	return high
}
