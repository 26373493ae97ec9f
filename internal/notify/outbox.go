package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Stream is the Redis stream every outbound notification goes through.
const Stream = "notif_stream"

// RedisOutbox appends messages to a Redis stream. The stream is the handoff
// point between the auction core and the dispatcher; entries survive a
// dispatcher restart, which is where the at-least-once guarantee comes from.
type RedisOutbox struct {
	rdc *redis.Client
}

var _ Outbox = (*RedisOutbox)(nil)

func NewRedisOutbox(rdc *redis.Client) *RedisOutbox {
	return &RedisOutbox{rdc: rdc}
}

func (o *RedisOutbox) Enqueue(ctx context.Context, msg Message) error {
	err := o.rdc.XAdd(ctx, &redis.XAddArgs{
		Stream: Stream,
		Values: map[string]any{
			"key":     msg.Key,
			"kind":    string(msg.Kind),
			"user":    msg.UserID,
			"auction": msg.AuctionID,
			"winner":  msg.WinnerID,
			"body":    msg.Body,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue notification %s: %w", msg.Key, err)
	}
	return nil
}
