package rooms

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/dependencies/clock"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/dependencies/random"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/realtime"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/policy"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/presence"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

// BanChecker answers whether an identity is barred from a room
type BanChecker interface {
	IsBanned(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) (model.BanState, error)
}

// Noticer posts system messages in a room
type Noticer interface {
	Notice(ctx context.Context, roomID model.RoomID, body string)
}

// CreateSettings describes a new room
type CreateSettings struct {
	Name        string
	Description string
	Background  string
	Capacity    int
	Password    string
	InviteOnly  bool
	Permanent   bool
}

// SettingsUpdate holds optional room setting changes; nil fields are left alone.
// An empty Password removes the password.
type SettingsUpdate struct {
	Name        *string
	Description *string
	Background  *string
	Capacity    *int
	Password    *string
	InviteOnly  *bool
	Permanent   *bool
}

// JoinOptions carries entry credentials
type JoinOptions struct {
	Password string
}

// StyleUpdate changes a member's per-room look. Reset clears every override.
// An empty Color clears the colour override.
type StyleUpdate struct {
	Color            *model.Color
	AvatarHue        *int
	AvatarSaturation *int
	Reset            bool
}

// Service manages the room directory, membership and host authority
type Service struct {
	storage   storage.Storage
	bans      BanChecker
	notices   Noticer
	publisher realtime.Publisher
	evaluator presence.Evaluator
	clock     clock.Clock
	random    random.Random
	cfg       Config
	logger    *slog.Logger
}

// New creates a new rooms service
func New(
	storage storage.Storage,
	bans BanChecker,
	notices Noticer,
	publisher realtime.Publisher,
	evaluator presence.Evaluator,
	clock clock.Clock,
	random random.Random,
	cfg Config,
	logger *slog.Logger,
) *Service {
	def := DefaultConfig()
	if cfg.MaxCapacity == 0 {
		cfg.MaxCapacity = def.MaxCapacity
	}
	if cfg.DefaultCapacity == 0 {
		cfg.DefaultCapacity = min(def.DefaultCapacity, cfg.MaxCapacity)
	}
	if cfg.HostOnLeave == "" {
		cfg.HostOnLeave = def.HostOnLeave
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = def.BcryptCost
	}
	return &Service{
		storage:   storage,
		bans:      bans,
		notices:   notices,
		publisher: publisher,
		evaluator: evaluator,
		clock:     clock,
		random:    random,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "rooms")),
	}
}

// CreateRoom creates a room with the actor as its host
func (s *Service) CreateRoom(ctx context.Context, actor *model.Identity, settings CreateSettings) (*model.Room, error) {
	if actor == nil {
		return nil, model.ErrUnauthenticated
	}
	if err := s.checkBan(ctx, model.SiteScope, actor.ID); err != nil {
		return nil, err
	}

	name, err := normalizeRoomName(settings.Name)
	if err != nil {
		return nil, err
	}
	if err := validateText(settings.Description, settings.Background); err != nil {
		return nil, err
	}
	capacity := settings.Capacity
	if capacity == 0 {
		capacity = s.cfg.DefaultCapacity
	}
	if err := s.validateCapacity(capacity); err != nil {
		return nil, err
	}
	if settings.Permanent {
		if err := policy.Authorize(actor, nil, policy.CreatePermanent); err != nil {
			return nil, err
		}
	}
	hash, err := s.hashPassword(settings.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	room := &model.Room{
		Name:         name,
		Description:  strings.TrimSpace(settings.Description),
		Background:   strings.TrimSpace(settings.Background),
		Capacity:     capacity,
		PasswordHash: hash,
		InviteOnly:   settings.InviteOnly,
		Permanent:    settings.Permanent,
		CreatedBy:    actor.ID,
		Members: []model.Member{
			{
				IdentityID:   actor.ID,
				IsHost:       true,
				JoinedAt:     now,
				LastActivity: now,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for attempt := 0; ; attempt++ {
		room.ID = model.RoomID(s.random.String(RoomIDLength, RoomIDAlphabet))
		err = s.storage.CreateRoom(ctx, room)
		if err == nil {
			break
		}
		if !errors.Is(err, model.ErrRoomExists) || attempt+1 >= createAttempts {
			return nil, err
		}
	}

	s.logger.Info("room created",
		slog.String("room_id", string(room.ID)),
		slog.String("created_by", string(actor.ID)))
	s.publishRoom(ctx, room, RoomCreated)
	return room, nil
}

// GetRoom retrieves a room by id
func (s *Service) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	return s.storage.GetRoom(ctx, id)
}

// ListRooms returns public summaries of every room
func (s *Service) ListRooms(ctx context.Context) ([]Summary, error) {
	rooms, err := s.storage.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, Summarize(r))
	}
	return out, nil
}

// UpdateSettings changes room settings; the actor needs edit rights in the room
func (s *Service) UpdateSettings(ctx context.Context, roomID model.RoomID, actor *model.Identity, update SettingsUpdate) (*model.Room, error) {
	var name string
	if update.Name != nil {
		n, err := normalizeRoomName(*update.Name)
		if err != nil {
			return nil, err
		}
		name = n
	}
	var description, background string
	if update.Description != nil {
		description = *update.Description
	}
	if update.Background != nil {
		background = *update.Background
	}
	if err := validateText(description, background); err != nil {
		return nil, err
	}
	if update.Capacity != nil {
		if err := s.validateCapacity(*update.Capacity); err != nil {
			return nil, err
		}
	}
	var hash string
	if update.Password != nil {
		h, err := s.hashPassword(*update.Password)
		if err != nil {
			return nil, err
		}
		hash = h
	}

	now := s.clock.Now()
	room, err := s.storage.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		if err := policy.Authorize(actor, r, policy.EditRoom); err != nil {
			return err
		}
		if update.Permanent != nil {
			if err := policy.Authorize(actor, r, policy.CreatePermanent); err != nil {
				return err
			}
			r.Permanent = *update.Permanent
		}
		if update.Capacity != nil {
			if *update.Capacity < len(r.Members) {
				return model.ErrCapacityBelowSize
			}
			r.Capacity = *update.Capacity
		}
		if update.Name != nil {
			r.Name = name
		}
		if update.Description != nil {
			r.Description = strings.TrimSpace(description)
		}
		if update.Background != nil {
			r.Background = strings.TrimSpace(background)
		}
		if update.Password != nil {
			r.PasswordHash = hash
		}
		if update.InviteOnly != nil {
			r.InviteOnly = *update.InviteOnly
		}
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishRoom(ctx, room, RoomUpdated)
	return room, nil
}

// DeleteRoom removes a room and everything in it
func (s *Service) DeleteRoom(ctx context.Context, roomID model.RoomID, actor *model.Identity) error {
	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if err := policy.Authorize(actor, room, policy.DeleteRoom); err != nil {
		return err
	}
	if err := s.storage.DeleteRoom(ctx, roomID); err != nil {
		return err
	}

	s.logger.Info("room deleted",
		slog.String("room_id", string(roomID)),
		slog.String("deleted_by", string(actor.ID)))
	s.publishRoom(ctx, room, RoomDeleted)
	return nil
}

// Join admits the actor to a room. Entry is checked in order: bans, existing
// membership, capacity, then the gate (password or a one-time access key).
// Staff bypass the gate but not bans or capacity.
func (s *Service) Join(ctx context.Context, roomID model.RoomID, actor *model.Identity, opts JoinOptions) (*model.Room, error) {
	if actor == nil {
		return nil, model.ErrUnauthenticated
	}
	if err := s.checkBan(ctx, roomID, actor.ID); err != nil {
		return nil, err
	}

	current, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	// bcrypt is slow, so compare against the hash seen now and only honour the
	// result if the hash is unchanged at commit
	checkedHash := current.PasswordHash
	passwordOK := current.HasPassword() && opts.Password != "" &&
		bcrypt.CompareHashAndPassword([]byte(checkedHash), []byte(opts.Password)) == nil

	now := s.clock.Now()
	var becameHost bool
	room, err := s.storage.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		becameHost = false
		if r.GetMember(actor.ID) != nil {
			return model.ErrAlreadyInRoom
		}
		if r.IsFull() {
			return model.ErrRoomFull
		}
		if r.IsGated() && !actor.IsStaff() {
			switch {
			case r.HasPassword() && passwordOK && r.PasswordHash == checkedHash:
			case r.ConsumeAccessKey(actor.ID, now):
			default:
				return model.ErrRoomLocked
			}
		}
		becameHost = r.HostCount() == 0
		r.Members = append(r.Members, model.Member{
			IdentityID:   actor.ID,
			IsHost:       becameHost,
			JoinedAt:     now,
			LastActivity: now,
		})
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	// A ban saved while the join was in flight may have found nobody to evict
	if err := s.checkBan(ctx, roomID, actor.ID); errors.Is(err, model.ErrBanned) {
		if _, rerr := ignoreGone(s.remove(ctx, roomID, actor.ID, model.ReasonBanned, nil)); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	} else if err != nil {
		s.logger.Warn("ban re-check after join failed",
			slog.String("room_id", string(roomID)),
			slog.String("identity_id", string(actor.ID)),
			slog.Any("error", err))
	}

	payload := model.UserUpdatePayload{Reason: model.ReasonJoined, IdentityID: actor.ID}
	if becameHost {
		payload.HostID = actor.ID
	}
	s.publishMembers(ctx, room, payload)
	s.notices.Notice(ctx, roomID, actor.DisplayName+" entered the room")
	return room, nil
}

// Leave removes the identity's membership row
func (s *Service) Leave(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) error {
	_, err := s.remove(ctx, roomID, identityID, model.ReasonLeft, nil)
	return err
}

// Disconnect removes a member that has gone away. Removing an identity that is
// not in the room, or a room that no longer exists, is a no-op.
func (s *Service) Disconnect(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) (bool, error) {
	return ignoreGone(s.remove(ctx, roomID, identityID, model.ReasonDisconnected, nil))
}

var errStillActive = errors.New("member is still active")

// DisconnectIdle removes a member only if it is still past the disconnect
// threshold when the removal commits
func (s *Service) DisconnectIdle(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) (bool, error) {
	now := s.clock.Now()
	removed, err := ignoreGone(s.remove(ctx, roomID, identityID, model.ReasonDisconnected, func(_ *model.Room, m *model.Member) error {
		if s.evaluator.State(m.LastActivity, now) != presence.StateDisconnected {
			return errStillActive
		}
		return nil
	}))
	if errors.Is(err, errStillActive) {
		return false, nil
	}
	return removed, err
}

// LeaveAll removes the identity from every room it is in
func (s *Service) LeaveAll(ctx context.Context, identityID model.IdentityID) error {
	rooms, err := s.storage.ListRooms(ctx)
	if err != nil {
		return err
	}
	for _, r := range rooms {
		if r.GetMember(identityID) == nil {
			continue
		}
		if _, err := ignoreGone(s.remove(ctx, r.ID, identityID, model.ReasonLeft, nil)); err != nil {
			return err
		}
	}
	return nil
}

// Kick removes target from the room; the actor needs kick rights
func (s *Service) Kick(ctx context.Context, roomID model.RoomID, actor *model.Identity, target model.IdentityID) error {
	if actor == nil {
		return model.ErrUnauthenticated
	}
	targetUser, err := s.lookupTarget(ctx, target)
	if err != nil {
		return err
	}
	if err := policy.CanModerate(actor, targetUser); err != nil {
		return err
	}
	_, err = s.remove(ctx, roomID, target, model.ReasonKicked, func(r *model.Room, _ *model.Member) error {
		return policy.Authorize(actor, r, policy.Kick)
	})
	return err
}

// Evict removes target without an authorization check, for callers that have
// already authorized the action (bans). Absent members are not an error.
func (s *Service) Evict(ctx context.Context, roomID model.RoomID, target model.IdentityID, reason string) (bool, error) {
	return ignoreGone(s.remove(ctx, roomID, target, reason, nil))
}

// GrantHost makes target the only host; the actor must be the host or staff
func (s *Service) GrantHost(ctx context.Context, roomID model.RoomID, actor *model.Identity, target model.IdentityID) (*model.Room, error) {
	return s.changeHost(ctx, roomID, func(r *model.Room) error {
		if err := policy.Authorize(actor, r, policy.ManageHost); err != nil {
			return err
		}
		if r.GetMember(target) == nil {
			return model.ErrNotInRoom
		}
		r.SetHost(target)
		return nil
	})
}

// RevokeHost removes host from target, leaving the room host-less
func (s *Service) RevokeHost(ctx context.Context, roomID model.RoomID, actor *model.Identity, target model.IdentityID) (*model.Room, error) {
	return s.changeHost(ctx, roomID, func(r *model.Room) error {
		if err := policy.Authorize(actor, r, policy.ManageHost); err != nil {
			return err
		}
		if !r.IsHost(target) {
			return model.ErrTargetNotHost
		}
		r.ClearHost()
		return nil
	})
}

// PassHost hands host from the actor to target. Only the current host may pass;
// the demotion and promotion commit together.
func (s *Service) PassHost(ctx context.Context, roomID model.RoomID, actor *model.Identity, target model.IdentityID) (*model.Room, error) {
	if actor == nil {
		return nil, model.ErrUnauthenticated
	}
	return s.changeHost(ctx, roomID, func(r *model.Room) error {
		if !r.IsHost(actor.ID) {
			return model.ErrNotHost
		}
		if target == actor.ID {
			return model.ErrCannotTargetSelf
		}
		if r.GetMember(target) == nil {
			return model.ErrNotInRoom
		}
		r.SetHost(target)
		return nil
	})
}

// ClaimHost lets a member take host of a host-less room
func (s *Service) ClaimHost(ctx context.Context, roomID model.RoomID, actor *model.Identity) (*model.Room, error) {
	if actor == nil {
		return nil, model.ErrUnauthenticated
	}
	return s.changeHost(ctx, roomID, func(r *model.Room) error {
		if r.GetMember(actor.ID) == nil {
			return model.ErrNotInRoom
		}
		if r.HostCount() > 0 {
			return model.ErrHostAlreadySet
		}
		r.SetHost(actor.ID)
		return nil
	})
}

func (s *Service) changeHost(ctx context.Context, roomID model.RoomID, fn storage.RoomMutator) (*model.Room, error) {
	now := s.clock.Now()
	var before model.IdentityID
	room, err := s.storage.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		before = ""
		if h := r.GetHost(); h != nil {
			before = h.IdentityID
		}
		if err := fn(r); err != nil {
			return err
		}
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	var after model.IdentityID
	if h := room.GetHost(); h != nil {
		after = h.IdentityID
	}
	if after != before {
		s.logger.Info("host changed",
			slog.String("room_id", string(roomID)),
			slog.String("from", string(before)),
			slog.String("to", string(after)))
		s.publishMembers(ctx, room, model.UserUpdatePayload{Reason: model.ReasonHostChanged, IdentityID: before, HostID: after})
		if after != "" {
			s.notices.Notice(ctx, roomID, s.displayName(ctx, after)+" is now the host")
		}
	}
	return room, nil
}

// Heartbeat resets the member's last activity
func (s *Service) Heartbeat(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) error {
	now := s.clock.Now()
	_, err := s.storage.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		m := r.GetMember(identityID)
		if m == nil {
			return model.ErrNotInRoom
		}
		m.LastActivity = now
		return nil
	})
	return err
}

// UpdateMemberStyle sets the member's per-room cosmetic overrides
func (s *Service) UpdateMemberStyle(ctx context.Context, roomID model.RoomID, identityID model.IdentityID, update StyleUpdate) (*model.Room, error) {
	if update.Color != nil && *update.Color != "" && !update.Color.IsValid() {
		return nil, model.ErrInvalidColor
	}
	hue, sat := 0, 0
	if update.AvatarHue != nil {
		hue = *update.AvatarHue
	}
	if update.AvatarSaturation != nil {
		sat = *update.AvatarSaturation
	}
	if err := model.ValidateAvatar(hue, sat); err != nil {
		return nil, err
	}

	room, err := s.storage.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		m := r.GetMember(identityID)
		if m == nil {
			return model.ErrNotInRoom
		}
		if update.Reset {
			m.Style = model.MemberStyle{}
		}
		if update.Color != nil {
			m.Style.Color = *update.Color
		}
		if update.AvatarHue != nil {
			v := *update.AvatarHue
			m.Style.AvatarHue = &v
		}
		if update.AvatarSaturation != nil {
			v := *update.AvatarSaturation
			m.Style.AvatarSaturation = &v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishMembers(ctx, room, model.UserUpdatePayload{Reason: model.ReasonStyleChanged, IdentityID: identityID})
	return room, nil
}

// Members lists the room's members with current display metadata and presence
func (s *Service) Members(ctx context.Context, roomID model.RoomID) ([]MemberView, error) {
	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	room.SortMembers()

	now := s.clock.Now()
	views := make([]MemberView, 0, len(room.Members))
	for i := range room.Members {
		m := &room.Members[i]
		user, err := s.storage.GetUser(ctx, m.IdentityID)
		if err != nil && !errors.Is(err, model.ErrUserNotFound) {
			return nil, err
		}
		views = append(views, MemberView{
			Display:      model.ResolveDisplay(m.IdentityID, user, m),
			IsHost:       m.IsHost,
			JoinedAt:     m.JoinedAt,
			LastActivity: m.LastActivity,
			MessageCount: m.MessageCount,
			State:        s.evaluator.State(m.LastActivity, now),
		})
	}
	return views, nil
}

// IsMember reports whether identityID is currently in the room
func (s *Service) IsMember(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) (bool, error) {
	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room.GetMember(identityID) != nil, nil
}

// remove deletes one membership row, applying the host-on-leave policy in the
// same atomic update. check, if set, runs inside the update and can veto it.
func (s *Service) remove(ctx context.Context, roomID model.RoomID, identityID model.IdentityID, reason string, check func(*model.Room, *model.Member) error) (bool, error) {
	now := s.clock.Now()
	var newHost model.IdentityID
	room, err := s.storage.UpdateRoom(ctx, roomID, func(r *model.Room) error {
		newHost = ""
		m := r.GetMember(identityID)
		if m == nil {
			return model.ErrNotInRoom
		}
		if check != nil {
			if err := check(r, m); err != nil {
				return err
			}
		}
		removed, _ := r.RemoveMember(identityID)
		if removed.IsHost && s.cfg.HostOnLeave == HostReassign {
			if next := r.EarliestMember(); next != nil {
				r.SetHost(next.IdentityID)
				newHost = next.IdentityID
			}
		}
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return false, err
	}

	name := s.displayName(ctx, identityID)
	s.publishMembers(ctx, room, model.UserUpdatePayload{Reason: reason, IdentityID: identityID, HostID: newHost})
	// Nothing published after this reaches the removed member's streams
	s.publisher.Evict(ctx, realtime.RoomTopic(roomID), identityID)

	if len(room.Members) == 0 && !room.Permanent {
		deleted, err := s.storage.DeleteRoomIfEmpty(ctx, roomID)
		if err != nil {
			s.logger.Warn("failed to delete empty room",
				slog.String("room_id", string(roomID)),
				slog.Any("error", err))
		}
		if deleted {
			s.logger.Info("empty room deleted", slog.String("room_id", string(roomID)))
			s.publishRoom(ctx, room, RoomDeleted)
			return true, nil
		}
	}

	s.notices.Notice(ctx, roomID, name+leaveNotice(reason))
	if newHost != "" {
		s.notices.Notice(ctx, roomID, s.displayName(ctx, newHost)+" is now the host")
	}
	return true, nil
}

func leaveNotice(reason string) string {
	switch reason {
	case model.ReasonKicked:
		return " was kicked"
	case model.ReasonBanned:
		return " was banned"
	case model.ReasonDisconnected:
		return " lost connection"
	default:
		return " left the room"
	}
}

// ignoreGone turns "already gone" into a successful no-op
func ignoreGone(removed bool, err error) (bool, error) {
	if errors.Is(err, model.ErrNotInRoom) || errors.Is(err, model.ErrRoomNotFound) {
		return false, nil
	}
	return removed, err
}

func (s *Service) checkBan(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) error {
	if s.bans == nil {
		return nil
	}
	state, err := s.bans.IsBanned(ctx, roomID, identityID)
	if err != nil {
		return err
	}
	if state.Banned {
		return model.ErrBanned
	}
	return nil
}

func (s *Service) lookupTarget(ctx context.Context, id model.IdentityID) (*model.User, error) {
	user, err := s.storage.GetUser(ctx, id)
	if errors.Is(err, model.ErrUserNotFound) {
		return &model.User{ID: id}, nil
	}
	return user, err
}

func (s *Service) displayName(ctx context.Context, id model.IdentityID) string {
	user, err := s.storage.GetUser(ctx, id)
	if err != nil {
		return model.DepartedName
	}
	return user.DisplayName
}

func (s *Service) publishMembers(ctx context.Context, room *model.Room, payload model.UserUpdatePayload) {
	now := s.clock.Now()
	s.publisher.Publish(ctx, realtime.RoomTopic(room.ID), model.Event{
		Type:      model.EventUserUpdate,
		RoomID:    room.ID,
		Timestamp: now,
		Payload:   payload,
	})
	// Member counts show in the directory
	s.publisher.Publish(ctx, realtime.LobbyTopic, model.Event{
		Type:      model.EventRoomUpdate,
		RoomID:    room.ID,
		Timestamp: now,
		Payload:   RoomUpdatePayload{Reason: RoomUpdated, Room: Summarize(room)},
	})
}

func (s *Service) publishRoom(ctx context.Context, room *model.Room, reason string) {
	event := model.Event{
		Type:      model.EventRoomUpdate,
		RoomID:    room.ID,
		Timestamp: s.clock.Now(),
		Payload:   RoomUpdatePayload{Reason: reason, Room: Summarize(room)},
	}
	s.publisher.Publish(ctx, realtime.LobbyTopic, event)
	if reason != RoomCreated {
		s.publisher.Publish(ctx, realtime.RoomTopic(room.ID), event)
	}
}

func (s *Service) validateCapacity(capacity int) error {
	if capacity < model.MinRoomCapacity || capacity > s.cfg.MaxCapacity {
		return model.ErrInvalidCapacity
	}
	return nil
}

func (s *Service) hashPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	if len(password) > 72 {
		return "", model.ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func normalizeRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n == 0 || n > model.MaxRoomNameLength {
		return "", model.ErrInvalidRoomName
	}
	return name, nil
}

func validateText(description, background string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionLength || len(background) > MaxBackgroundLength {
		return model.ErrInvalidSettings
	}
	return nil
}
