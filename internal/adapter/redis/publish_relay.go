package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pscheid92/activate/internal/domain"
	"github.com/pscheid92/activate/internal/platform/correlation"
	goredis "github.com/redis/go-redis/v9"
)

const publishChannel = "activate:publish"

type relayMessage struct {
	ChannelID string         `json:"visualizerId"`
	Removed   bool           `json:"removed"`
	Payload   domain.Payload `json:"mediaContent"`
	// CorrelationID carries the originating request's id into every instance's logs.
	CorrelationID string `json:"correlationId,omitempty"`
}

// LocalHub applies relayed publishes to the display clients of this instance.
type LocalHub interface {
	Publish(ctx context.Context, channelID string, payload domain.Payload) error
	PublishChannelRemoved(ctx context.Context, channelID string) error
}

// LocalCache drops this instance's in-memory binding before a relayed publish is applied.
type LocalCache interface {
	InvalidateLocal(channelID string)
}

// PublishRelay implements domain.ContentPublisher over Redis pub/sub so every
// instance, including the sender, applies the change to its own hub. A single
// pub/sub channel keeps per-channel publish order across instances.
type PublishRelay struct {
	rdb   *goredis.Client
	hub   LocalHub
	cache LocalCache
}

func NewPublishRelay(rdb *goredis.Client, hub LocalHub, cache LocalCache) *PublishRelay {
	return &PublishRelay{rdb: rdb, hub: hub, cache: cache}
}

func (r *PublishRelay) Publish(ctx context.Context, channelID string, payload domain.Payload) error {
	return r.send(ctx, relayMessage{ChannelID: channelID, Payload: payload})
}

func (r *PublishRelay) PublishChannelRemoved(ctx context.Context, channelID string) error {
	return r.send(ctx, relayMessage{ChannelID: channelID, Removed: true, Payload: domain.NoContent()})
}

func (r *PublishRelay) send(ctx context.Context, msg relayMessage) error {
	msg.CorrelationID, _ = correlation.ID(ctx)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal relay message: %w", err)
	}
	if err := r.rdb.Publish(ctx, publishChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to relay publish for %s: %w", msg.ChannelID, err)
	}
	return nil
}

// Start subscribes to the relay channel and returns once the subscription is
// confirmed. Messages are then applied in the background until ctx is done.
// A failed subscription is returned, since an instance without it would
// never see publishes made through its peers.
func (r *PublishRelay) Start(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, publishChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", publishChannel, err)
	}

	go func() {
		defer func() { _ = pubsub.Close() }()

		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.handleMessage(ctx, msg.Payload)
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (r *PublishRelay) handleMessage(ctx context.Context, raw string) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		slog.WarnContext(ctx, "Dropping malformed relay message", "error", err)
		return
	}
	if msg.ChannelID == "" {
		slog.WarnContext(ctx, "Dropping relay message without channel")
		return
	}

	if correlation.Valid(msg.CorrelationID) {
		ctx = correlation.WithID(ctx, msg.CorrelationID)
	}

	r.cache.InvalidateLocal(msg.ChannelID)

	var err error
	if msg.Removed {
		err = r.hub.PublishChannelRemoved(ctx, msg.ChannelID)
	} else {
		err = r.hub.Publish(ctx, msg.ChannelID, msg.Payload)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to apply relayed publish", "channel_id", msg.ChannelID, "removed", msg.Removed, "error", err)
	}
}
