package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
)

// Publisher is implemented by anything services can emit realtime events through.
// Evict ends an identity's open streams on a topic, for members who lost access.
type Publisher interface {
	Publish(ctx context.Context, topic string, event model.Event)
	Evict(ctx context.Context, topic string, identityID model.IdentityID)
}

// LobbyTopic carries room directory changes
const LobbyTopic = "lobby"

// RoomTopic is the topic watched by everyone streaming a room
func RoomTopic(id model.RoomID) string {
	return "room:" + string(id)
}

// UserTopic is the topic for notifications addressed to one identity
func UserTopic(id model.IdentityID) string {
	return "user:" + string(id)
}

// LocalBroker delivers events to hubs in this process only
type LocalBroker struct {
	hubs   *HubManager
	logger *slog.Logger
}

// NewLocalBroker creates a broker over the given hubs
func NewLocalBroker(hubs *HubManager, logger *slog.Logger) *LocalBroker {
	return &LocalBroker{
		hubs:   hubs,
		logger: logger.With(slog.String("component", "broker")),
	}
}

// Publish encodes the event and hands it to the topic's hub, if anyone is watching
func (b *LocalBroker) Publish(ctx context.Context, topic string, event model.Event) {
	if b.hubs.GetHub(topic) == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to encode event",
			slog.String("topic", topic),
			slog.String("type", string(event.Type)),
			slog.Any("error", err))
		return
	}
	b.hubs.Deliver(topic, data)
}

// Evict disconnects the identity's streams on topic
func (b *LocalBroker) Evict(_ context.Context, topic string, identityID model.IdentityID) {
	b.hubs.Evict(topic, identityID)
}

// Nop discards every event
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, string, model.Event) {}

// Evict implements Publisher
func (Nop) Evict(context.Context, string, model.IdentityID) {}

var (
	_ Publisher = (*LocalBroker)(nil)
	_ Publisher = Nop{}
)
