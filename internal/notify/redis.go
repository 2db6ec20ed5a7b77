package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultChannel = "clinic:changes"

// RedisBroadcaster republishes every event on a Redis pub/sub channel so
// views served by other processes can refresh.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

func NewRedisBroadcaster(client *redis.Client, channel string, logger zerolog.Logger) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroadcaster{client: client, channel: channel, logger: logger}
}

func (r *RedisBroadcaster) OnEvent(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.channel, err)
	}
	return nil
}

// Subscribe relays events published by any process to fn until ctx ends.
func (r *RedisBroadcaster) Subscribe(ctx context.Context, fn func(Event)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if ev, ok := r.decode(msg.Payload); ok {
				fn(ev)
			}
		}
	}
}

// Relay hands events published by other processes to l until ctx ends.
// Events carrying origin already went through the local bus and are skipped.
func (r *RedisBroadcaster) Relay(ctx context.Context, origin string, l Listener) error {
	return r.Subscribe(ctx, func(ev Event) {
		r.relay(ctx, origin, l, ev)
	})
}

func (r *RedisBroadcaster) relay(ctx context.Context, origin string, l Listener, ev Event) {
	if ev.Origin == origin {
		return
	}
	if err := deliver(ctx, l, ev); err != nil {
		r.logger.Error().Err(err).
			Str("origin", ev.Origin).
			Str("entity", ev.EntityType+"/"+ev.EntityID).
			Str("action", ev.Action).
			Msg("failed to relay change event")
	}
}

func (r *RedisBroadcaster) decode(payload string) (Event, bool) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		r.logger.Warn().Err(err).
			Str("channel", r.channel).
			Int("bytes", len(payload)).
			Msg("dropping undecodable change event")
		return Event{}, false
	}
	return ev, true
}
