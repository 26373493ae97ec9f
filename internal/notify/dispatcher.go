package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bidspot/internal/identity"
	"bidspot/internal/models"
	"bidspot/internal/store"
)

const (
	dedupePrefix = "notif_sent:"
	dedupeTTL    = 48 * time.Hour
)

// Sender delivers one notification to an address. Implementations wrap an
// email provider; delivery errors are reported, never retried here.
type Sender interface {
	Send(ctx context.Context, email string, msg Message) error
}

// LogSender writes deliveries to the log instead of an email provider.
type LogSender struct{}

func (LogSender) Send(_ context.Context, email string, msg Message) error {
	zap.L().Info("notify.send",
		zap.String("to", email),
		zap.String("kind", string(msg.Kind)),
		zap.String("key", msg.Key),
		zap.String("body", msg.Body))
	return nil
}

// Dispatcher tails the outbox stream and delivers each message best-effort.
// A SetNX guard keyed on the message's idempotency key keeps redelivered
// stream entries from producing duplicate emails.
type Dispatcher struct {
	rdc    *redis.Client
	st     store.Store
	dir    identity.Directory
	sender Sender
}

func NewDispatcher(rdc *redis.Client, st store.Store, dir identity.Directory, sender Sender) *Dispatcher {
	return &Dispatcher{rdc: rdc, st: st, dir: dir, sender: sender}
}

// Run tails the stream until ctx is cancelled. Must be started once at boot.
func (d *Dispatcher) Run(ctx context.Context) {
	go func() {
		lastID := "0-0"
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			next, err := d.readBatch(ctx, lastID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				zap.L().Warn("notify.xread", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			lastID = next
		}
	}()
}

// readBatch reads one batch starting after lastID, delivers it, and trims the
// stream up to the delivered position so it never grows without bound. The
// trim also keeps restart rescans (the tail behind the dedupe guard) short.
func (d *Dispatcher) readBatch(ctx context.Context, lastID string) (string, error) {
	res, err := d.rdc.XRead(ctx, &redis.XReadArgs{
		Streams: []string{Stream, lastID},
		Count:   100,
		Block:   2000 * time.Millisecond,
	}).Result()
	if err == redis.Nil || (err == nil && len(res) == 0) {
		return lastID, nil
	}
	if err != nil {
		return lastID, err
	}
	entries := res[0].Messages
	for _, m := range entries {
		d.deliver(ctx, decode(m))
	}
	lastID = entries[len(entries)-1].ID
	if err := d.rdc.XTrimMinID(ctx, Stream, lastID).Err(); err != nil {
		zap.L().Warn("notify.xtrim", zap.Error(err))
	}
	return lastID, nil
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	if msg.Key == "" || msg.UserID == "" {
		return
	}

	// First writer of the dedupe key owns delivery; everyone else drops out.
	fresh, err := d.rdc.SetNX(ctx, dedupePrefix+msg.Key, 1, dedupeTTL).Result()
	if err != nil {
		zap.L().Warn("notify.dedupe", zap.String("key", msg.Key), zap.Error(err))
		return
	}
	if !fresh {
		return
	}

	email, err := d.dir.Email(ctx, msg.UserID)
	if err != nil {
		zap.L().Warn("notify.lookup_email",
			zap.String("user_id", msg.UserID), zap.Error(err))
		d.release(ctx, msg.Key)
		return
	}
	if err := d.sender.Send(ctx, email, msg); err != nil {
		zap.L().Error("notify.deliver_failed",
			zap.String("key", msg.Key), zap.Error(err))
		d.release(ctx, msg.Key)
		return
	}

	if msg.Kind == models.NotifyWinner && msg.WinnerID != "" {
		if err := d.st.SetWinnerEmailSent(ctx, msg.WinnerID); err != nil {
			zap.L().Warn("notify.mark_email_sent",
				zap.String("winner_id", msg.WinnerID), zap.Error(err))
		}
	}
}

// release drops the dedupe key after a failed delivery attempt so a
// redelivered stream entry gets another shot at it.
func (d *Dispatcher) release(ctx context.Context, key string) {
	if err := d.rdc.Del(ctx, dedupePrefix+key).Err(); err != nil {
		zap.L().Warn("notify.dedupe_release", zap.String("key", key), zap.Error(err))
	}
}

func decode(m redis.XMessage) Message {
	str := func(k string) string {
		v, _ := m.Values[k].(string)
		return v
	}
	return Message{
		Key:       str("key"),
		Kind:      models.NotificationKind(str("kind")),
		UserID:    str("user"),
		AuctionID: str("auction"),
		WinnerID:  str("winner"),
		Body:      str("body"),
	}
}
