package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/dependencies/clock"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/realtime"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/policy"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

const (
	MaxReasonLength       = 200
	MaxKnockMessageLength = 200
)

// Config holds configuration for the moderation service
type Config struct {
	// KnockWindow is how long a knock stays answerable
	KnockWindow time.Duration
	// AccessKeyTTL is how long an accepted knock's entry key stays valid
	AccessKeyTTL time.Duration
}

// DefaultConfig returns default moderation configuration
func DefaultConfig() Config {
	return Config{
		KnockWindow:  time.Hour,
		AccessKeyTTL: 10 * time.Minute,
	}
}

// Evictor removes a member once a ban has been recorded
type Evictor interface {
	Evict(ctx context.Context, roomID model.RoomID, target model.IdentityID, reason string) (bool, error)
}

// KnockResolvedDetails is sent to the knocker when the host answers
type KnockResolvedDetails struct {
	KnockID model.KnockID     `json:"knock_id"`
	Status  model.KnockStatus `json:"status"`
}

// KnockDetails is sent to the host when someone knocks
type KnockDetails struct {
	KnockID     model.KnockID    `json:"knock_id"`
	IdentityID  model.IdentityID `json:"identity_id"`
	DisplayName string           `json:"display_name"`
	Message     string           `json:"message,omitempty"`
}

// Service handles bans, mutes and knock-to-enter
type Service struct {
	*Bans
	storage   storage.Storage
	rooms     Evictor
	publisher realtime.Publisher
	clock     clock.Clock
	cfg       Config
	logger    *slog.Logger
}

// New creates a new moderation service
func New(storage storage.Storage, rooms Evictor, publisher realtime.Publisher, clock clock.Clock, cfg Config, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.KnockWindow == 0 {
		cfg.KnockWindow = def.KnockWindow
	}
	if cfg.AccessKeyTTL == 0 {
		cfg.AccessKeyTTL = def.AccessKeyTTL
	}
	return &Service{
		Bans:      NewBans(storage, clock),
		storage:   storage,
		rooms:     rooms,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "moderation")),
	}
}

// Ban records a room ban and removes the target from the room. A zero duration
// bans until explicitly lifted.
func (s *Service) Ban(ctx context.Context, roomID model.RoomID, actor *model.Identity, target model.IdentityID, duration time.Duration, reason string) (*model.Ban, error) {
	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, room, policy.Ban); err != nil {
		return nil, err
	}
	ban, err := s.recordBan(ctx, roomID, actor, target, duration, reason)
	if err != nil && !errors.Is(err, model.ErrAlreadyBanned) {
		return nil, err
	}
	// Banning again finishes an eviction that failed the first time
	if _, everr := s.rooms.Evict(ctx, roomID, target, model.ReasonBanned); everr != nil {
		s.logger.Warn("failed to evict banned member",
			slog.String("room_id", string(roomID)),
			slog.String("identity_id", string(target)),
			slog.Any("error", everr))
		return nil, fmt.Errorf("evict banned member: %w", everr)
	}
	if err != nil {
		return nil, err
	}
	return ban, nil
}

// Unban lifts a room ban
func (s *Service) Unban(ctx context.Context, roomID model.RoomID, actor *model.Identity, target model.IdentityID) error {
	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if err := policy.Authorize(actor, room, policy.Ban); err != nil {
		return err
	}
	return s.storage.DeleteBan(ctx, roomID, target)
}

// ListBans returns the room's bans that are still in effect
func (s *Service) ListBans(ctx context.Context, roomID model.RoomID, actor *model.Identity) ([]*model.Ban, error) {
	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, room, policy.Ban); err != nil {
		return nil, err
	}
	return s.activeBans(ctx, roomID)
}

// SiteBan bans the target from every room and removes it from the rooms it is in
func (s *Service) SiteBan(ctx context.Context, actor *model.Identity, target model.IdentityID, duration time.Duration, reason string) (*model.Ban, error) {
	if err := policy.Authorize(actor, nil, policy.SiteBan); err != nil {
		return nil, err
	}
	ban, err := s.recordBan(ctx, model.SiteScope, actor, target, duration, reason)
	if err != nil && !errors.Is(err, model.ErrAlreadyBanned) {
		return nil, err
	}

	rooms, lerr := s.storage.ListRooms(ctx)
	if lerr != nil {
		return nil, fmt.Errorf("list rooms for site ban: %w", lerr)
	}
	var failed []error
	for _, r := range rooms {
		if r.GetMember(target) == nil {
			continue
		}
		if _, everr := s.rooms.Evict(ctx, r.ID, target, model.ReasonBanned); everr != nil {
			s.logger.Warn("failed to evict site-banned member",
				slog.String("room_id", string(r.ID)),
				slog.String("identity_id", string(target)),
				slog.Any("error", everr))
			failed = append(failed, fmt.Errorf("evict from %s: %w", r.ID, everr))
		}
	}
	if len(failed) > 0 {
		return nil, errors.Join(failed...)
	}
	if err != nil {
		return nil, err
	}
	return ban, nil
}

// SiteUnban lifts a site ban
func (s *Service) SiteUnban(ctx context.Context, actor *model.Identity, target model.IdentityID) error {
	if err := policy.Authorize(actor, nil, policy.SiteBan); err != nil {
		return err
	}
	return s.storage.DeleteBan(ctx, model.SiteScope, target)
}

// ListSiteBans returns site bans still in effect
func (s *Service) ListSiteBans(ctx context.Context, actor *model.Identity) ([]*model.Ban, error) {
	if err := policy.Authorize(actor, nil, policy.SiteBan); err != nil {
		return nil, err
	}
	return s.activeBans(ctx, model.SiteScope)
}

func (s *Service) activeBans(ctx context.Context, scope model.RoomID) ([]*model.Ban, error) {
	bans, err := s.storage.ListBans(ctx, scope)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	active := bans[:0]
	for _, b := range bans {
		if b.ActiveAt(now) {
			active = append(active, b)
		}
	}
	return active, nil
}

func (s *Service) recordBan(ctx context.Context, scope model.RoomID, actor *model.Identity, target model.IdentityID, duration time.Duration, reason string) (*model.Ban, error) {
	if duration < 0 {
		return nil, model.ErrInvalidSettings
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return nil, model.ErrInvalidSettings
	}
	targetUser, err := s.lookupTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	if err := policy.CanModerate(actor, targetUser); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	existing, err := s.storage.GetBan(ctx, scope, target)
	if err == nil && existing.ActiveAt(now) {
		return nil, model.ErrAlreadyBanned
	}
	if err != nil && !errors.Is(err, model.ErrBanNotFound) {
		return nil, err
	}

	ban := &model.Ban{
		RoomID:     scope,
		IdentityID: target,
		BannedBy:   actor.ID,
		Reason:     reason,
		CreatedAt:  now,
	}
	if duration > 0 {
		expires := now.Add(duration)
		ban.ExpiresAt = &expires
	}
	if err := s.storage.SaveBan(ctx, ban); err != nil {
		return nil, err
	}

	s.logger.Info("ban recorded",
		slog.String("scope", string(scope)),
		slog.String("identity_id", string(target)),
		slog.String("banned_by", string(actor.ID)),
		slog.Duration("duration", duration))
	return ban, nil
}

// Mute silences target in the room. A zero duration mutes until unmuted.
func (s *Service) Mute(ctx context.Context, roomID model.RoomID, actor *model.Identity, target model.IdentityID, duration time.Duration) error {
	if actor == nil {
		return model.ErrUnauthenticated
	}
	if duration < 0 {
		return model.ErrInvalidSettings
	}
	targetUser, err := s.lookupTarget(ctx, target)
	if err != nil {
		return err
	}
	if err := policy.CanModerate(actor, targetUser); err != nil {
		return err
	}

	now := s.clock.Now()
	mute := model.Mute{IdentityID: target, MutedBy: actor.ID}
	if duration > 0 {
		expires := now.Add(duration)
		mute.ExpiresAt = &expires
	}
	_, err = s.storage.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		if err := policy.Authorize(actor, r, policy.Mute); err != nil {
			return err
		}
		if r.GetMember(target) == nil {
			return model.ErrNotInRoom
		}
		r.RemoveMute(target)
		m := mute
		if mute.ExpiresAt != nil {
			t := *mute.ExpiresAt
			m.ExpiresAt = &t
		}
		r.Mutes = append(r.Mutes, m)
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}
	s.publishMember(ctx, roomID, model.ReasonMuted, target)
	return nil
}

// Unmute lifts a mute
func (s *Service) Unmute(ctx context.Context, roomID model.RoomID, actor *model.Identity, target model.IdentityID) error {
	_, err := s.storage.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		if err := policy.Authorize(actor, r, policy.Mute); err != nil {
			return err
		}
		r.RemoveMute(target)
		return nil
	})
	if err != nil {
		return err
	}
	s.publishMember(ctx, roomID, model.ReasonUnmuted, target)
	return nil
}

// Knock asks the host of a gated room for entry
func (s *Service) Knock(ctx context.Context, roomID model.RoomID, actor *model.Identity, message string) (*model.Knock, error) {
	if actor == nil {
		return nil, model.ErrUnauthenticated
	}
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) > MaxKnockMessageLength {
		return nil, model.ErrMessageTooLong
	}

	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsGated() {
		return nil, model.ErrKnockNotNeeded
	}
	if room.GetMember(actor.ID) != nil {
		return nil, model.ErrAlreadyInRoom
	}
	state, err := s.IsBanned(ctx, roomID, actor.ID)
	if err != nil {
		return nil, err
	}
	if state.Banned {
		return nil, model.ErrBanned
	}

	now := s.clock.Now()
	knocks, err := s.storage.ListKnocks(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for _, k := range knocks {
		if k.IdentityID != actor.ID || k.Status != model.KnockPending {
			continue
		}
		if !k.ExpiredAt(now, s.cfg.KnockWindow) {
			return nil, model.ErrKnockPending
		}
		if err := s.retireKnock(ctx, k.ID, now); err != nil {
			return nil, err
		}
	}

	knock := &model.Knock{
		ID:          model.KnockID(uuid.NewString()),
		RoomID:      roomID,
		IdentityID:  actor.ID,
		DisplayName: actor.DisplayName,
		Message:     message,
		Status:      model.KnockPending,
		CreatedAt:   now,
	}
	// Storage admits one pending knock per identity and room, so a concurrent
	// knock that passed the check above fails here with ErrKnockPending
	if err := s.storage.SaveKnock(ctx, knock); err != nil {
		return nil, err
	}

	if host := room.GetHost(); host != nil {
		s.publisher.Publish(ctx, realtime.UserTopic(host.IdentityID), model.Event{
			Type:      model.EventNotificationsUpdate,
			RoomID:    roomID,
			Timestamp: now,
			Payload: model.NotificationsPayload{
				Kind:   model.NotifyKnock,
				RoomID: roomID,
				Details: KnockDetails{
					KnockID:     knock.ID,
					IdentityID:  actor.ID,
					DisplayName: actor.DisplayName,
					Message:     message,
				},
			},
		})
	}
	return knock, nil
}

// retireKnock marks a pending knock past the window as expired so the identity
// may knock again
func (s *Service) retireKnock(ctx context.Context, id model.KnockID, now time.Time) error {
	_, err := s.storage.UpdateKnock(ctx, id, func(k *model.Knock) error {
		if k.Status == model.KnockPending && k.ExpiredAt(now, s.cfg.KnockWindow) {
			k.Status = model.KnockExpired
		}
		return nil
	})
	if errors.Is(err, model.ErrKnockNotFound) {
		return nil
	}
	return err
}

// PendingKnocks lists knocks still awaiting an answer within the window
func (s *Service) PendingKnocks(ctx context.Context, roomID model.RoomID, actor *model.Identity) ([]*model.Knock, error) {
	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, room, policy.ResolveKnock); err != nil {
		return nil, err
	}

	knocks, err := s.storage.ListKnocks(ctx, roomID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	pending := make([]*model.Knock, 0, len(knocks))
	for _, k := range knocks {
		if k.Status == model.KnockPending && !k.ExpiredAt(now, s.cfg.KnockWindow) {
			pending = append(pending, k)
		}
	}
	return pending, nil
}

// ResolveKnock accepts or denies a knock exactly once. Accepting grants the
// knocker a one-time access key. Knocks past the window are treated as gone.
// If the key cannot be granted the knock goes back to pending, so the host can
// answer it again.
func (s *Service) ResolveKnock(ctx context.Context, knockID model.KnockID, actor *model.Identity, accept bool) (*model.Knock, error) {
	knock, err := s.storage.GetKnock(ctx, knockID)
	if err != nil {
		return nil, err
	}
	room, err := s.storage.GetRoom(ctx, knock.RoomID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, room, policy.ResolveKnock); err != nil {
		return nil, err
	}

	status := model.KnockDenied
	if accept {
		status = model.KnockAccepted
	}
	now := s.clock.Now()
	knock, err = s.storage.UpdateKnock(ctx, knockID, func(k *model.Knock) error {
		if k.Status == model.KnockExpired {
			return model.ErrKnockNotFound
		}
		if k.Status != model.KnockPending {
			return model.ErrKnockResolved
		}
		if k.ExpiredAt(now, s.cfg.KnockWindow) {
			return model.ErrKnockNotFound
		}
		k.Status = status
		k.ResolvedAt = &now
		k.ResolvedBy = actor.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if accept {
		_, err := s.storage.UpdateRoom(ctx, knock.RoomID, func(r *model.Room) error {
			r.GrantAccessKey(model.AccessKey{
				IdentityID: knock.IdentityID,
				GrantedBy:  actor.ID,
				ExpiresAt:  now.Add(s.cfg.AccessKeyTTL),
			})
			return nil
		})
		if err != nil {
			if rerr := s.reopenKnock(ctx, knockID, actor.ID, now); rerr != nil {
				s.logger.Error("accepted knock left without an access key",
					slog.String("knock_id", string(knockID)),
					slog.Any("error", rerr))
				return nil, errors.Join(err, rerr)
			}
			return nil, err
		}
	}

	s.publisher.Publish(ctx, realtime.UserTopic(knock.IdentityID), model.Event{
		Type:      model.EventNotificationsUpdate,
		RoomID:    knock.RoomID,
		Timestamp: now,
		Payload: model.NotificationsPayload{
			Kind:    model.NotifyKnockResolved,
			RoomID:  knock.RoomID,
			Details: KnockResolvedDetails{KnockID: knock.ID, Status: knock.Status},
		},
	})
	return knock, nil
}

// reopenKnock undoes an acceptance by actor at resolvedAt
func (s *Service) reopenKnock(ctx context.Context, id model.KnockID, actor model.IdentityID, resolvedAt time.Time) error {
	_, err := s.storage.UpdateKnock(ctx, id, func(k *model.Knock) error {
		if k.Status != model.KnockAccepted || k.ResolvedBy != actor || k.ResolvedAt == nil || !k.ResolvedAt.Equal(resolvedAt) {
			return model.ErrKnockResolved
		}
		k.Status = model.KnockPending
		k.ResolvedAt = nil
		k.ResolvedBy = ""
		return nil
	})
	return err
}

// SweepBans deletes bans whose expiry has passed
func (s *Service) SweepBans(ctx context.Context) (int, error) {
	return s.storage.DeleteExpiredBans(ctx, s.clock.Now())
}

// PurgeKnocks deletes knocks older than the knock window
func (s *Service) PurgeKnocks(ctx context.Context) (int, error) {
	return s.storage.DeleteKnocksBefore(ctx, s.clock.Now().Add(-s.cfg.KnockWindow))
}

func (s *Service) lookupTarget(ctx context.Context, id model.IdentityID) (*model.User, error) {
	user, err := s.storage.GetUser(ctx, id)
	if errors.Is(err, model.ErrUserNotFound) {
		return &model.User{ID: id}, nil
	}
	return user, err
}

func (s *Service) publishMember(ctx context.Context, roomID model.RoomID, reason string, target model.IdentityID) {
	s.publisher.Publish(ctx, realtime.RoomTopic(roomID), model.Event{
		Type:      model.EventUserUpdate,
		RoomID:    roomID,
		Timestamp: s.clock.Now(),
		Payload:   model.UserUpdatePayload{Reason: reason, IdentityID: target},
	})
}
