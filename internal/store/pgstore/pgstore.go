// Package pgstore implements store.Store on Postgres. Every invariant-guarding
// mutation is a single conditional UPDATE (or INSERT ... ON CONFLICT) so the
// database serializes concurrent writers; no advisory locks are used.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bidspot/internal/models"
	"bidspot/internal/store"
)

type PgStore struct {
	db *sql.DB
}

var _ store.Store = (*PgStore)(nil)

func New(db *sql.DB) *PgStore { return &PgStore{db: db} }

const auctionCols = `id, title, description, starting_price, current_price,
       max_spots, filled_spots, ends_at, status,
       winners_processed, winners_being_processed, created_by, created_at`

func (s *PgStore) CreateAuction(ctx context.Context, a *models.Auction) error {
	const q = `
	INSERT INTO auctions (id, title, description, starting_price, current_price,
	                      max_spots, filled_spots, ends_at, status,
	                      winners_processed, winners_being_processed, created_by, created_at)
	     VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := s.db.ExecContext(ctx, q,
		a.ID, a.Title, a.Description, a.StartingPrice, a.CurrentPrice,
		a.MaxSpots, a.FilledSpots, a.EndsAt, a.Status,
		a.WinnersProcessed, a.WinnersBeingProcessed, a.CreatedBy, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create auction %s: %w", a.ID, err)
	}
	return nil
}

func (s *PgStore) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+auctionCols+` FROM auctions WHERE id = $1`, id)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return a, err
}

func (s *PgStore) ListAuctions(ctx context.Context, status string, limit, offset int) ([]models.Auction, error) {
	if limit == 0 {
		limit = 10
	}
	var (
		rows *sql.Rows
		err  error
	)
	base := `SELECT ` + auctionCols + ` FROM auctions`
	if status != "" {
		rows, err = s.db.QueryContext(ctx,
			base+` WHERE status = $1 ORDER BY ends_at DESC LIMIT $2 OFFSET $3`,
			status, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx,
			base+` ORDER BY ends_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]models.Auction, 0, limit)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

func (s *PgStore) ListEndedUnprocessed(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const q = `
	SELECT id FROM auctions
	 WHERE ends_at < $1
	   AND winners_processed = false
	   AND winners_being_processed = false
	 ORDER BY ends_at
	 LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PgStore) AdmitBid(ctx context.Context, bid *models.Bid, observedPrice decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Compare-and-swap keyed on the price the caller observed. Losing the
	// swap means another bid landed in between; the caller re-reads and
	// retries.
	const swap = `
	UPDATE auctions SET current_price = $1
	 WHERE id = $2 AND current_price = $3
	   AND status = 'active' AND ends_at > $4`
	res, err := tx.ExecContext(ctx, swap, bid.Amount, bid.AuctionID, observedPrice, bid.CreatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrPriceConflict
	}

	const ins = `
	INSERT INTO bids (id, auction_id, user_id, amount, status, created_at)
	     VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := tx.ExecContext(ctx, ins,
		bid.ID, bid.AuctionID, bid.UserID, bid.Amount, bid.Status, bid.CreatedAt); err != nil {
		return err
	}

	if err := refreshFilledSpots(ctx, tx, bid.AuctionID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PgStore) CancelBid(ctx context.Context, bidID, ownerID string, now time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	// Owner and end-time are checked inside the statement, not from a cached
	// read, so a cancellation racing the auction end cannot slip through.
	const q = `
	UPDATE bids SET status = 'cancelled'
	 WHERE id = $1 AND user_id = $2 AND status = 'active'
	   AND auction_id IN (SELECT id FROM auctions WHERE ends_at > $3)
	RETURNING auction_id`
	var auctionID string
	err = tx.QueryRowContext(ctx, q, bidID, ownerID, now).Scan(&auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	const refresh = `
	UPDATE auctions
	   SET current_price = GREATEST(starting_price, COALESCE(
	          (SELECT MAX(amount) FROM bids WHERE auction_id = $1 AND status = 'active'), 0))
	 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, refresh, auctionID); err != nil {
		return false, err
	}
	if err := refreshFilledSpots(ctx, tx, auctionID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *PgStore) GetBid(ctx context.Context, id string) (*models.Bid, error) {
	const q = `SELECT id, auction_id, user_id, amount, status, created_at FROM bids WHERE id = $1`
	b := &models.Bid{}
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&b.ID, &b.AuctionID, &b.UserID, &b.Amount, &b.Status, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *PgStore) ListActiveBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	const q = `
	SELECT id, auction_id, user_id, amount, status, created_at
	  FROM bids
	 WHERE auction_id = $1 AND status = 'active'
	 ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, q, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.UserID, &b.Amount, &b.Status, &b.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func (s *PgStore) MarkBidPaid(ctx context.Context, bidID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE bids SET status = 'paid' WHERE id = $1`, bidID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PgStore) TryLockResolution(ctx context.Context, auctionID string, now time.Time) (bool, error) {
	const q = `
	UPDATE auctions
	   SET winners_being_processed = true, status = 'closing'
	 WHERE id = $1
	   AND winners_being_processed = false
	   AND winners_processed = false
	   AND ends_at < $2`
	res, err := s.db.ExecContext(ctx, q, auctionID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *PgStore) UnlockResolution(ctx context.Context, auctionID string, processed bool) error {
	const q = `
	UPDATE auctions
	   SET winners_being_processed = false,
	       winners_processed = winners_processed OR $2
	 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, auctionID, processed)
	return err
}

func (s *PgStore) MarkAuctionCompleted(ctx context.Context, auctionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auctions SET status = 'completed' WHERE id = $1`, auctionID)
	return err
}

func (s *PgStore) InsertWinnerIfAbsent(ctx context.Context, w *models.Winner) (bool, error) {
	// Re-check immediately before the insert; the unique index on
	// (auction_id, user_id) backstops the window in between, and a conflict
	// is treated as "row already exists", not an error.
	var exists bool
	const check = `SELECT EXISTS(SELECT 1 FROM winners WHERE auction_id = $1 AND user_id = $2)`
	if err := s.db.QueryRowContext(ctx, check, w.AuctionID, w.UserID).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	const ins = `
	INSERT INTO winners (id, auction_id, user_id, winning_bid_id,
	                     payment_deadline, status, email_sent, created_at)
	     VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	ON CONFLICT (auction_id, user_id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, ins,
		w.ID, w.AuctionID, w.UserID, w.WinningBidID,
		w.PaymentDeadline, w.Status, w.EmailSent, w.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const winnerCols = `id, auction_id, user_id, winning_bid_id, payment_deadline, status, email_sent, created_at`

func (s *PgStore) GetWinner(ctx context.Context, auctionID, userID string) (*models.Winner, error) {
	const q = `SELECT ` + winnerCols + ` FROM winners WHERE auction_id = $1 AND user_id = $2`
	w := &models.Winner{}
	err := s.db.QueryRowContext(ctx, q, auctionID, userID).Scan(
		&w.ID, &w.AuctionID, &w.UserID, &w.WinningBidID,
		&w.PaymentDeadline, &w.Status, &w.EmailSent, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *PgStore) ListWinners(ctx context.Context, auctionID string) ([]models.Winner, error) {
	const q = `SELECT ` + winnerCols + ` FROM winners WHERE auction_id = $1 ORDER BY created_at, id`
	return s.queryWinners(ctx, q, auctionID)
}

func (s *PgStore) ListLapsedWinners(ctx context.Context, now time.Time) ([]models.Winner, error) {
	const q = `
	SELECT ` + winnerCols + ` FROM winners
	 WHERE status = 'pending_payment' AND payment_deadline < $1
	 ORDER BY payment_deadline`
	return s.queryWinners(ctx, q, now)
}

func (s *PgStore) MarkWinnerMissed(ctx context.Context, winnerID string) (bool, error) {
	const q = `UPDATE winners SET status = 'payment_missed' WHERE id = $1 AND status = 'pending_payment'`
	res, err := s.db.ExecContext(ctx, q, winnerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *PgStore) MarkWinnerPaid(ctx context.Context, auctionID, userID string) (bool, error) {
	const q = `
	UPDATE winners SET status = 'paid'
	 WHERE auction_id = $1 AND user_id = $2 AND status = 'pending_payment'`
	res, err := s.db.ExecContext(ctx, q, auctionID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *PgStore) SetWinnerEmailSent(ctx context.Context, winnerID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE winners SET email_sent = true WHERE id = $1`, winnerID)
	return err
}

func (s *PgStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	const q = `
	INSERT INTO notifications (id, user_id, kind, auction_id, message, created_at)
	     VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := s.db.ExecContext(ctx, q, n.ID, n.UserID, n.Kind, n.AuctionID, n.Message, n.CreatedAt)
	return err
}

func (s *PgStore) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit == 0 {
		limit = 50
	}
	const q = `
	SELECT id, user_id, kind, coalesce(auction_id,''), message, created_at
	  FROM notifications
	 WHERE user_id = $1
	 ORDER BY created_at DESC
	 LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.AuctionID, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func (s *PgStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	const q = `SELECT id, email, is_admin FROM users WHERE id = $1`
	u := &models.User{}
	err := s.db.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.Email, &u.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (*models.Auction, error) {
	a := &models.Auction{}
	err := row.Scan(
		&a.ID, &a.Title, &a.Description, &a.StartingPrice, &a.CurrentPrice,
		&a.MaxSpots, &a.FilledSpots, &a.EndsAt, &a.Status,
		&a.WinnersProcessed, &a.WinnersBeingProcessed, &a.CreatedBy, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *PgStore) queryWinners(ctx context.Context, q string, args ...any) ([]models.Winner, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Winner
	for rows.Next() {
		var w models.Winner
		if err := rows.Scan(&w.ID, &w.AuctionID, &w.UserID, &w.WinningBidID,
			&w.PaymentDeadline, &w.Status, &w.EmailSent, &w.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

func refreshFilledSpots(ctx context.Context, tx *sql.Tx, auctionID string) error {
	const q = `
	UPDATE auctions
	   SET filled_spots = (SELECT COUNT(DISTINCT user_id) FROM bids
	                        WHERE auction_id = $1 AND status = 'active')
	 WHERE id = $1`
	_, err := tx.ExecContext(ctx, q, auctionID)
	return err
}
