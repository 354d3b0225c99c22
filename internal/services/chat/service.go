package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/text/cases"
	"golang.org/x/time/rate"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/realtime"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/policy"
)

// Config holds configuration for the chat service
type Config struct {
	MaxLength int
	// Retention applies to ordinary rooms; PermanentRetention to permanent ones.
	// Zero keeps messages forever.
	Retention          time.Duration
	PermanentRetention time.Duration
	MessagesPerSecond  float64
	Burst              int
	// LimiterTTL is how long an idle sender's limiter is kept
	LimiterTTL  time.Duration
	LimiterSize int
}

// DefaultConfig returns default chat configuration
func DefaultConfig() Config {
	return Config{
		MaxLength:          500,
		Retention:          24 * time.Hour,
		PermanentRetention: 7 * 24 * time.Hour,
		MessagesPerSecond:  1,
		Burst:              5,
		LimiterTTL:         10 * time.Minute,
		LimiterSize:        8192,
	}
}

// PhraseChecker is offered every posted message body
type PhraseChecker interface {
	CheckPhrase(ctx context.Context, roomID model.RoomID, identity *model.Identity, body string) (bool, error)
}

// MentionDetails accompanies a mention notification
type MentionDetails struct {
	MessageID model.MessageID `json:"message_id"`
	From      model.Display   `json:"from"`
	Body      string          `json:"body"`
}

// Service posts and reads room messages
type Service struct {
	*Poster
	phrases PhraseChecker
	cfg     Config
	logger  *slog.Logger

	limiterMu sync.Mutex
	limiters  *expirable.LRU[model.IdentityID, *rate.Limiter]
}

// New creates a new chat service. phrases may be nil.
func New(poster *Poster, phrases PhraseChecker, cfg Config, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.MaxLength == 0 {
		cfg.MaxLength = def.MaxLength
	}
	if cfg.MessagesPerSecond == 0 {
		cfg.MessagesPerSecond = def.MessagesPerSecond
	}
	if cfg.Burst == 0 {
		cfg.Burst = def.Burst
	}
	if cfg.LimiterTTL == 0 {
		cfg.LimiterTTL = def.LimiterTTL
	}
	if cfg.LimiterSize == 0 {
		cfg.LimiterSize = def.LimiterSize
	}
	return &Service{
		Poster:   poster,
		phrases:  phrases,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "chat")),
		limiters: expirable.NewLRU[model.IdentityID, *rate.Limiter](cfg.LimiterSize, nil, cfg.LimiterTTL),
	}
}

// Send posts a member's message to the room
func (s *Service) Send(ctx context.Context, roomID model.RoomID, actor *model.Identity, body string) (*model.MessageView, error) {
	if actor == nil {
		return nil, model.ErrUnauthenticated
	}
	body, err := s.normalizeBody(body)
	if err != nil {
		return nil, err
	}

	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	member := room.GetMember(actor.ID)
	if member == nil {
		return nil, model.ErrNotInRoom
	}
	now := s.clock.Now()
	if room.ActiveMute(actor.ID, now) != nil {
		return nil, model.ErrMuted
	}
	if !s.allow(actor.ID, now) {
		return nil, model.ErrRateLimited
	}

	msg := &model.Message{
		ID:        newMessageID(),
		RoomID:    roomID,
		SenderID:  actor.ID,
		Body:      body,
		Type:      model.MessageNormal,
		CreatedAt: now,
	}
	recipients := s.mentioned(ctx, room, actor.ID, body)
	mentions := make([]*model.Mention, 0, len(recipients))
	for _, id := range recipients {
		mentions = append(mentions, &model.Mention{
			ID:          model.MentionID(uuid.NewString()),
			MessageID:   msg.ID,
			RoomID:      roomID,
			RecipientID: id,
			SenderID:    actor.ID,
			CreatedAt:   now,
		})
	}

	sender := model.ResolveDisplay(actor.ID, s.sender(ctx, actor), member)
	if err := s.append(ctx, msg, mentions, sender); err != nil {
		return nil, err
	}

	_, err = s.storage.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		if m := r.GetMember(actor.ID); m != nil {
			m.LastActivity = now
			m.MessageCount++
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to record member activity",
			slog.String("room_id", string(roomID)),
			slog.String("identity_id", string(actor.ID)),
			slog.Any("error", err))
	}

	for _, id := range recipients {
		s.notifyMention(ctx, id, msg, sender)
	}

	if s.phrases != nil {
		if _, err := s.phrases.CheckPhrase(ctx, roomID, actor, body); err != nil {
			s.logger.Warn("phrase check failed",
				slog.String("room_id", string(roomID)),
				slog.Any("error", err))
		}
	}

	return &model.MessageView{Message: *msg, Sender: sender}, nil
}

// Announce posts a staff announcement. The actor need not be a member.
func (s *Service) Announce(ctx context.Context, roomID model.RoomID, actor *model.Identity, body string) (*model.MessageView, error) {
	if err := policy.Authorize(actor, nil, policy.Announce); err != nil {
		return nil, err
	}
	body, err := s.normalizeBody(body)
	if err != nil {
		return nil, err
	}
	if _, err := s.storage.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:        newMessageID(),
		RoomID:    roomID,
		SenderID:  actor.ID,
		Body:      body,
		Type:      model.MessageAnnouncement,
		CreatedAt: s.clock.Now(),
	}
	sender := model.ResolveDisplay(actor.ID, s.sender(ctx, actor), nil)
	if err := s.append(ctx, msg, nil, sender); err != nil {
		return nil, err
	}
	return &model.MessageView{Message: *msg, Sender: sender}, nil
}

// History returns the room's messages in order, each joined with the sender's
// current display metadata. Members and staff may read it.
func (s *Service) History(ctx context.Context, roomID model.RoomID, actor *model.Identity) ([]model.MessageView, error) {
	if actor == nil {
		return nil, model.ErrUnauthenticated
	}
	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.GetMember(actor.ID) == nil && !actor.IsStaff() {
		return nil, model.ErrNotInRoom
	}

	msgs, err := s.storage.ListMessages(ctx, roomID)
	if err != nil {
		return nil, err
	}

	users := make(map[model.IdentityID]*model.User)
	views := make([]model.MessageView, 0, len(msgs))
	for _, m := range msgs {
		view := model.MessageView{Message: *m}
		if m.SenderID == "" {
			view.Sender = model.Display{Name: "system"}
			views = append(views, view)
			continue
		}
		user, seen := users[m.SenderID]
		if !seen {
			u, err := s.storage.GetUser(ctx, m.SenderID)
			if err != nil && !errors.Is(err, model.ErrUserNotFound) {
				return nil, err
			}
			user = u
			users[m.SenderID] = u
		}
		view.Sender = model.ResolveDisplay(m.SenderID, user, room.GetMember(m.SenderID))
		views = append(views, view)
	}
	return views, nil
}

// Mentions returns the identity's mention rows in the order they were made
func (s *Service) Mentions(ctx context.Context, identityID model.IdentityID) ([]*model.Mention, error) {
	return s.storage.ListMentions(ctx, identityID)
}

// MarkMentionsRead marks every mention of the identity read
func (s *Service) MarkMentionsRead(ctx context.Context, identityID model.IdentityID) (int, error) {
	n, err := s.storage.MarkMentionsRead(ctx, identityID)
	if err != nil {
		return 0, err
	}
	s.publisher.Publish(ctx, realtime.UserTopic(identityID), model.Event{
		Type:      model.EventNotificationsUpdate,
		Timestamp: s.clock.Now(),
		Payload:   model.NotificationsPayload{Kind: model.NotifyMention},
	})
	return n, nil
}

// SweepRetention deletes messages older than each room's retention
func (s *Service) SweepRetention(ctx context.Context) (int, error) {
	rooms, err := s.storage.ListRooms(ctx)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	total := 0
	for _, r := range rooms {
		retention := s.cfg.Retention
		if r.Permanent {
			retention = s.cfg.PermanentRetention
		}
		if retention <= 0 {
			continue
		}
		n, err := s.storage.DeleteMessagesBefore(ctx, r.ID, now.Add(-retention))
		if errors.Is(err, model.ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return total, err
		}
		total += n
	}
	if total > 0 {
		s.logger.Info("message retention sweep", slog.Int("deleted", total))
	}
	return total, nil
}

func (s *Service) normalizeBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", model.ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > s.cfg.MaxLength {
		return "", model.ErrMessageTooLong
	}
	return body, nil
}

func (s *Service) allow(id model.IdentityID, now time.Time) bool {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	limiter, ok := s.limiters.Get(id)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst)
		s.limiters.Add(id, limiter)
	}
	return limiter.AllowN(now, 1)
}

func (s *Service) sender(ctx context.Context, actor *model.Identity) *model.User {
	user, err := s.storage.GetUser(ctx, actor.ID)
	if err != nil {
		return &model.User{
			ID:               actor.ID,
			DisplayName:      actor.DisplayName,
			Color:            actor.Color,
			AvatarHue:        actor.AvatarHue,
			AvatarSaturation: actor.AvatarSaturation,
		}
	}
	return user
}

// mentioned returns the members, other than the sender, whose current display
// name appears in body as @name
func (s *Service) mentioned(ctx context.Context, room *model.Room, sender model.IdentityID, body string) []model.IdentityID {
	if !strings.Contains(body, "@") {
		return nil
	}
	fold := cases.Fold()
	folded := fold.String(body)

	var ids []model.IdentityID
	for _, m := range room.Members {
		if m.IdentityID == sender {
			continue
		}
		user, err := s.storage.GetUser(ctx, m.IdentityID)
		if err != nil || user.DisplayName == "" {
			continue
		}
		if containsMention(folded, "@"+fold.String(user.DisplayName)) {
			ids = append(ids, m.IdentityID)
		}
	}
	return ids
}

// containsMention reports whether tag occurs in body and is not followed by a
// letter or digit, so @al does not match @alice
func containsMention(body, tag string) bool {
	for offset := 0; ; {
		i := strings.Index(body[offset:], tag)
		if i < 0 {
			return false
		}
		end := offset + i + len(tag)
		if end == len(body) {
			return true
		}
		next, _ := utf8.DecodeRuneInString(body[end:])
		if !unicode.IsLetter(next) && !unicode.IsDigit(next) && next != '_' {
			return true
		}
		offset = offset + i + 1
	}
}

func (s *Service) notifyMention(ctx context.Context, recipient model.IdentityID, msg *model.Message, from model.Display) {
	unread := 0
	if mentions, err := s.storage.ListMentions(ctx, recipient); err == nil {
		for _, m := range mentions {
			if !m.Read {
				unread++
			}
		}
	}
	s.publisher.Publish(ctx, realtime.UserTopic(recipient), model.Event{
		Type:      model.EventNotificationsUpdate,
		RoomID:    msg.RoomID,
		Timestamp: msg.CreatedAt,
		Payload: model.NotificationsPayload{
			Kind:    model.NotifyMention,
			Unread:  unread,
			RoomID:  msg.RoomID,
			Details: MentionDetails{MessageID: msg.ID, From: from, Body: msg.Body},
		},
	})
}
