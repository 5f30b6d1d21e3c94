package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/safar/go-bookstore/internal/metrics"
)

const TypeNewPurchase = "new_purchase"

type Event struct {
	Type     string    `json:"type"`
	BookID   int64     `json:"bookId"`
	Title    string    `json:"title"`
	Quantity int       `json:"quantity"`
	At       time.Time `json:"at"`
}

// Broadcaster publishes activity events to every subscriber of the feed.
type Broadcaster interface {
	Publish(ctx context.Context, events ...Event) error
}

// LocalBroadcaster delivers straight to the hub of this process.
type LocalBroadcaster struct {
	hub *Hub
}

func NewLocalBroadcaster(hub *Hub) *LocalBroadcaster {
	return &LocalBroadcaster{hub: hub}
}

func (b *LocalBroadcaster) Publish(ctx context.Context, events ...Event) error {
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal feed event: %w", err)
		}
		if b.hub.Broadcast(payload) {
			metrics.FeedMessages.WithLabelValues("published").Inc()
		}
	}
	return nil
}

// RedisBroadcaster fans events out through a Redis channel so that clients
// connected to any API instance see purchases made through every other.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  zerolog.Logger
}

func NewRedisBroadcaster(client *redis.Client, channel string, hub *Hub, logger zerolog.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger.With().Str("component", "feed").Str("channel", channel).Logger(),
	}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, events ...Event) error {
	pipe := b.client.Pipeline()
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal feed event: %w", err)
		}
		pipe.Publish(ctx, b.channel, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		metrics.FeedMessages.WithLabelValues("failed").Add(float64(len(events)))
		return fmt.Errorf("publish feed events: %w", err)
	}
	metrics.FeedMessages.WithLabelValues("published").Add(float64(len(events)))
	return nil
}

// Run relays messages from the Redis channel into the local hub until ctx
// is cancelled.
func (b *RedisBroadcaster) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info().Msg("feed subscription started")

	messages := sub.Channel()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.hub.Broadcast([]byte(msg.Payload))
		case <-ctx.Done():
			return nil
		}
	}
}
