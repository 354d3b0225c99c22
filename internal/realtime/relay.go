package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
)

// DefaultRelayChannel is the redis pub/sub channel shared by all instances
const DefaultRelayChannel = "lounge:events"

// envelope is what travels over the redis channel. It carries either an event
// or an eviction.
type envelope struct {
	Topic string           `json:"topic"`
	Event json.RawMessage  `json:"event,omitempty"`
	Evict model.IdentityID `json:"evict,omitempty"`
}

// RedisRelay publishes events to a redis channel and delivers everything it
// receives on that channel to local hubs, so every instance sees every event.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hubs    *HubManager
	logger  *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisRelay creates a relay; call Start to begin receiving
func NewRedisRelay(client *redis.Client, channel string, hubs *HubManager, logger *slog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		hubs:    hubs,
		logger:  logger.With(slog.String("component", "relay")),
	}
}

// Start subscribes to the channel and forwards messages until ctx is cancelled or Close is called
func (r *RedisRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub != nil {
		return errors.New("relay already started")
	}

	pubsub := r.client.Subscribe(ctx, r.channel)
	// Wait for the subscription confirmation so publishes after Start are not lost
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	r.pubsub = pubsub
	r.done = make(chan struct{})
	go r.forward(pubsub.Channel(), r.done)
	r.logger.Info("relay subscribed", slog.String("channel", r.channel))
	return nil
}

func (r *RedisRelay) forward(ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range ch {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			r.logger.Warn("relay dropped malformed envelope", slog.Any("error", err))
			continue
		}
		if env.Evict != "" {
			r.hubs.Evict(env.Topic, env.Evict)
			continue
		}
		r.hubs.Deliver(env.Topic, env.Event)
	}
}

// Publish sends the event to every instance, including this one
func (r *RedisRelay) Publish(ctx context.Context, topic string, event model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("failed to encode event", slog.String("topic", topic), slog.Any("error", err))
		return
	}
	payload, err := json.Marshal(envelope{Topic: topic, Event: data})
	if err != nil {
		r.logger.Error("failed to encode envelope", slog.String("topic", topic), slog.Any("error", err))
		return
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("relay publish failed, delivering locally",
			slog.String("topic", topic),
			slog.Any("error", err))
		r.hubs.Deliver(topic, data)
	}
}

// Evict ends the identity's streams on topic on every instance. The local hub
// is evicted directly as well, so this instance never depends on the round trip.
func (r *RedisRelay) Evict(ctx context.Context, topic string, identityID model.IdentityID) {
	r.hubs.Evict(topic, identityID)
	payload, err := json.Marshal(envelope{Topic: topic, Evict: identityID})
	if err != nil {
		r.logger.Error("failed to encode envelope", slog.String("topic", topic), slog.Any("error", err))
		return
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("relay eviction publish failed",
			slog.String("topic", topic),
			slog.String("identity_id", string(identityID)),
			slog.Any("error", err))
	}
}

// Close unsubscribes and waits for the forwarding goroutine to exit
func (r *RedisRelay) Close() error {
	r.mu.Lock()
	pubsub, done := r.pubsub, r.done
	r.pubsub = nil
	r.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}

var _ Publisher = (*RedisRelay)(nil)
