// Package events publishes per-auction live events to Redis Pub/Sub so that
// every instance's websocket hub can fan them out. Publishing is best effort:
// a lost event never fails the state transition that produced it.
package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "auc:"
const channelSuffix = ":events"

// Channel returns the Pub/Sub channel carrying events for one auction.
func Channel(auctionID string) string {
	return channelPrefix + auctionID + channelSuffix
}

type Publisher struct {
	rdc *redis.Client
}

func NewPublisher(rdc *redis.Client) *Publisher {
	return &Publisher{rdc: rdc}
}

// Publish sends {"event": <event>, ...body} on the auction's channel.
// Safe to call on a nil Publisher (tests run without Redis).
func (p *Publisher) Publish(ctx context.Context, auctionID, event string, body map[string]any) {
	if p == nil || p.rdc == nil {
		return
	}
	payload := make(map[string]any, len(body)+1)
	for k, v := range body {
		payload[k] = v
	}
	payload["event"] = event

	raw, err := json.Marshal(payload)
	if err != nil {
		zap.L().Warn("events.marshal", zap.String("event", event), zap.Error(err))
		return
	}
	if err := p.rdc.Publish(ctx, Channel(auctionID), raw).Err(); err != nil {
		zap.L().Warn("events.publish",
			zap.String("auction_id", auctionID),
			zap.String("event", event),
			zap.Error(err))
	}
}
