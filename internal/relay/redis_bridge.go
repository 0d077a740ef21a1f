package relay

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"connection-chat/internal/observability"
)

// DefaultRedisChannel is the pub/sub channel shared by all instances.
const DefaultRedisChannel = "chat:events"

// RedisBridge relays events over Redis pub/sub.
type RedisBridge struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisBridge builds a RedisBridge on channel.
func NewRedisBridge(rdb *redis.Client, channel string, logger *zap.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{rdb: rdb, channel: channel, logger: logger}
}

// Publish sends ev to every subscribed instance.
func (r *RedisBridge) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, raw).Err()
}

// Subscribe returns once the subscription is confirmed by Redis.
func (r *RedisBridge) Subscribe(ctx context.Context, fn Handler) (func() error, error) {
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	go func() {
		for msg := range sub.Channel() {
			ev, ok := decodeEvent([]byte(msg.Payload), r.logger)
			if !ok {
				continue
			}
			fn(ev)
		}
	}()
	return sub.Close, nil
}

func decodeEvent(raw []byte, logger *zap.Logger) (Event, bool) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		logger.Warn("relay dropped undecodable event", zap.Error(err))
		observability.IncRelayDropped("decode_error")
		return Event{}, false
	}
	return ev, true
}
