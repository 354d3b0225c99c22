package chat

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/dependencies/clock"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/realtime"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

// Poster appends messages to a room's log and announces them to the room stream.
// Other services use it for system messages.
type Poster struct {
	storage   storage.Storage
	publisher realtime.Publisher
	clock     clock.Clock
	logger    *slog.Logger
}

// NewPoster creates a new Poster
func NewPoster(storage storage.Storage, publisher realtime.Publisher, clock clock.Clock, logger *slog.Logger) *Poster {
	return &Poster{
		storage:   storage,
		publisher: publisher,
		clock:     clock,
		logger:    logger.With(slog.String("component", "poster")),
	}
}

// PostSystem appends a server message with no sender
func (p *Poster) PostSystem(ctx context.Context, roomID model.RoomID, body string) (*model.Message, error) {
	msg := &model.Message{
		ID:        newMessageID(),
		RoomID:    roomID,
		Body:      body,
		Type:      model.MessageSystem,
		CreatedAt: p.clock.Now(),
	}
	if err := p.append(ctx, msg, nil, model.Display{Name: "system"}); err != nil {
		return nil, err
	}
	return msg, nil
}

// Notice posts a system message and only logs failures, for callers whose own
// operation has already committed
func (p *Poster) Notice(ctx context.Context, roomID model.RoomID, body string) {
	if _, err := p.PostSystem(ctx, roomID, body); err != nil {
		p.logger.Warn("failed to post system message",
			slog.String("room_id", string(roomID)),
			slog.Any("error", err))
	}
}

func (p *Poster) append(ctx context.Context, msg *model.Message, mentions []*model.Mention, sender model.Display) error {
	if err := p.storage.AppendMessage(ctx, msg, mentions); err != nil {
		return err
	}
	p.publisher.Publish(ctx, realtime.RoomTopic(msg.RoomID), model.Event{
		Type:      model.EventNewMessage,
		RoomID:    msg.RoomID,
		Timestamp: msg.CreatedAt,
		Payload:   model.MessageView{Message: *msg, Sender: sender},
	})
	return nil
}

func newMessageID() model.MessageID {
	return model.MessageID(uuid.NewString())
}
