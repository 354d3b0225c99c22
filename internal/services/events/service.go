// Package events runs the in-room reward spawns: the ghost hunt, claimed by
// typing its phrase, and the pumpkin, claimed by id.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/dependencies/clock"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/dependencies/random"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/realtime"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/policy"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

// spawnChanceScale is the resolution of SpawnChance rolls
const spawnChanceScale = 10000

// RewardTier is one weighted outcome of a reward roll
type RewardTier struct {
	Reward int
	Weight int
}

// Config holds configuration for event spawns
type Config struct {
	GhostDuration   time.Duration
	PumpkinDuration time.Duration
	// SpawnChance is the per-room probability, in [0, 1], that an auto-spawn
	// pass spawns something
	SpawnChance float64
	// ActiveWithin limits auto-spawns to rooms with a member active this recently
	ActiveWithin time.Duration
	Phrases      []string
	Rewards      []RewardTier
}

// DefaultConfig returns default event configuration
func DefaultConfig() Config {
	return Config{
		GhostDuration:   5 * time.Minute,
		PumpkinDuration: 2 * time.Minute,
		SpawnChance:     0.05,
		ActiveWithin:    10 * time.Minute,
		Phrases:         []string{"boo", "ghost", "trick or treat", "spooky", "who goes there"},
		Rewards: []RewardTier{
			{Reward: 10, Weight: 70},
			{Reward: 25, Weight: 25},
			{Reward: 100, Weight: 5},
		},
	}
}

// Validate checks the reward table and durations
func (c Config) Validate() error {
	if c.GhostDuration <= 0 || c.PumpkinDuration <= 0 {
		return errors.New("event durations must be positive")
	}
	if c.SpawnChance < 0 || c.SpawnChance > 1 {
		return errors.New("spawn chance must be between 0 and 1")
	}
	if len(c.Phrases) == 0 {
		return errors.New("at least one ghost phrase is required")
	}
	positive := false
	for _, t := range c.Rewards {
		if t.Reward < 0 || t.Weight < 0 {
			return errors.New("reward tiers must not be negative")
		}
		if t.Weight > 0 {
			positive = true
		}
	}
	if !positive {
		return errors.New("at least one reward tier needs a positive weight")
	}
	return nil
}

// Noticer posts system messages in a room
type Noticer interface {
	Notice(ctx context.Context, roomID model.RoomID, body string)
}

// RewardDetails accompanies a reward notification
type RewardDetails struct {
	SpawnID model.SpawnID   `json:"spawn_id"`
	Kind    model.SpawnKind `json:"kind"`
	Reward  int             `json:"reward"`
	Balance int             `json:"balance"`
}

// Service spawns and settles event rewards
type Service struct {
	storage   storage.Storage
	notices   Noticer
	publisher realtime.Publisher
	clock     clock.Clock
	random    random.Random
	cfg       Config
	logger    *slog.Logger
}

// New creates a new events service
func New(storage storage.Storage, notices Noticer, publisher realtime.Publisher, clock clock.Clock, random random.Random, cfg Config, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.GhostDuration == 0 {
		cfg.GhostDuration = def.GhostDuration
	}
	if cfg.PumpkinDuration == 0 {
		cfg.PumpkinDuration = def.PumpkinDuration
	}
	if cfg.ActiveWithin == 0 {
		cfg.ActiveWithin = def.ActiveWithin
	}
	if len(cfg.Phrases) == 0 {
		cfg.Phrases = def.Phrases
	}
	if len(cfg.Rewards) == 0 {
		cfg.Rewards = def.Rewards
	}
	return &Service{
		storage:   storage,
		notices:   notices,
		publisher: publisher,
		clock:     clock,
		random:    random,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "events")),
	}
}

// Trigger spawns an event on behalf of staff
func (s *Service) Trigger(ctx context.Context, roomID model.RoomID, actor *model.Identity, kind model.SpawnKind) (*model.Spawn, error) {
	if err := policy.Authorize(actor, nil, policy.SpawnEvent); err != nil {
		return nil, err
	}
	switch kind {
	case model.SpawnGhost:
		return s.SpawnGhost(ctx, roomID)
	case model.SpawnPumpkin:
		return s.SpawnPumpkin(ctx, roomID)
	default:
		return nil, model.ErrSpawnKind
	}
}

// SpawnGhost starts a ghost hunt with a random phrase. Fails with
// model.ErrSpawnActive while another hunt in the room is still claimable.
func (s *Service) SpawnGhost(ctx context.Context, roomID model.RoomID) (*model.Spawn, error) {
	phrase := s.cfg.Phrases[s.random.Intn(len(s.cfg.Phrases))]
	spawn, err := s.spawn(ctx, roomID, model.SpawnGhost, phrase, s.cfg.GhostDuration)
	if err != nil {
		return nil, err
	}
	s.notices.Notice(ctx, roomID, fmt.Sprintf("A ghost appeared! The first to say %q catches it for %d coins.", phrase, spawn.Reward))
	return spawn, nil
}

// SpawnPumpkin drops a pumpkin that the first member to claim it collects
func (s *Service) SpawnPumpkin(ctx context.Context, roomID model.RoomID) (*model.Spawn, error) {
	spawn, err := s.spawn(ctx, roomID, model.SpawnPumpkin, "", s.cfg.PumpkinDuration)
	if err != nil {
		return nil, err
	}
	s.notices.Notice(ctx, roomID, fmt.Sprintf("A pumpkin rolled in! Grab it for %d coins.", spawn.Reward))
	return spawn, nil
}

func (s *Service) spawn(ctx context.Context, roomID model.RoomID, kind model.SpawnKind, phrase string, duration time.Duration) (*model.Spawn, error) {
	now := s.clock.Now()
	spawn := &model.Spawn{
		ID:        model.SpawnID(uuid.NewString()),
		RoomID:    roomID,
		Kind:      kind,
		Phrase:    phrase,
		Reward:    s.rollReward(),
		State:     model.SpawnActive,
		SpawnedAt: now,
		ExpiresAt: now.Add(duration),
	}
	if err := s.storage.CreateSpawn(ctx, spawn); err != nil {
		return nil, err
	}
	s.logger.Info("event spawned",
		slog.String("room_id", string(roomID)),
		slog.String("spawn_id", string(spawn.ID)),
		slog.String("kind", string(kind)),
		slog.Int("reward", spawn.Reward))
	return spawn, nil
}

func (s *Service) rollReward() int {
	weights := make([]int, len(s.cfg.Rewards))
	for i, t := range s.cfg.Rewards {
		weights[i] = t.Weight
	}
	i := random.Weighted(s.random, weights)
	if i < 0 {
		return 0
	}
	return s.cfg.Rewards[i].Reward
}

// CheckPhrase claims the room's active ghost hunt if body matches its phrase,
// ignoring case and surrounding space. Reports whether this call won the claim.
func (s *Service) CheckPhrase(ctx context.Context, roomID model.RoomID, identity *model.Identity, body string) (bool, error) {
	spawns, err := s.storage.ListSpawns(ctx, roomID)
	if err != nil {
		return false, err
	}
	now := s.clock.Now()
	fold := cases.Fold()
	guess := fold.String(strings.TrimSpace(body))
	for _, sp := range spawns {
		if sp.Kind != model.SpawnGhost || !sp.ClaimableAt(now) {
			continue
		}
		if guess != fold.String(sp.Phrase) {
			continue
		}
		_, err := s.claim(ctx, sp, identity)
		if errors.Is(err, model.ErrSpawnClaimed) {
			return false, nil
		}
		return err == nil, err
	}
	return false, nil
}

// ClaimPumpkin claims a pumpkin for a member of its room
func (s *Service) ClaimPumpkin(ctx context.Context, roomID model.RoomID, spawnID model.SpawnID, identity *model.Identity) (*model.Spawn, error) {
	if identity == nil {
		return nil, model.ErrUnauthenticated
	}
	spawn, err := s.storage.GetSpawn(ctx, spawnID)
	if err != nil {
		return nil, err
	}
	if spawn.RoomID != roomID {
		return nil, model.ErrSpawnNotFound
	}
	if spawn.Kind != model.SpawnPumpkin {
		return nil, model.ErrSpawnKind
	}
	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.GetMember(identity.ID) == nil {
		return nil, model.ErrNotInRoom
	}
	return s.claim(ctx, spawn, identity)
}

func (s *Service) claim(ctx context.Context, spawn *model.Spawn, identity *model.Identity) (*model.Spawn, error) {
	claimed, err := s.storage.ClaimSpawn(ctx, spawn.ID, identity.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}

	balance, err := s.Balance(ctx, identity.ID)
	if err != nil {
		s.logger.Warn("failed to read balance after claim",
			slog.String("identity_id", string(identity.ID)),
			slog.Any("error", err))
	}
	s.logger.Info("event claimed",
		slog.String("room_id", string(claimed.RoomID)),
		slog.String("spawn_id", string(claimed.ID)),
		slog.String("identity_id", string(identity.ID)),
		slog.Int("reward", claimed.Reward))

	s.publisher.Publish(ctx, realtime.UserTopic(identity.ID), model.Event{
		Type:      model.EventNotificationsUpdate,
		RoomID:    claimed.RoomID,
		Timestamp: s.clock.Now(),
		Payload: model.NotificationsPayload{
			Kind:   model.NotifyReward,
			RoomID: claimed.RoomID,
			Details: RewardDetails{
				SpawnID: claimed.ID,
				Kind:    claimed.Kind,
				Reward:  claimed.Reward,
				Balance: balance,
			},
		},
	})
	s.notices.Notice(ctx, claimed.RoomID, fmt.Sprintf("%s caught the %s and earned %d coins!", identity.DisplayName, claimed.Kind, claimed.Reward))
	return claimed, nil
}

// ListSpawns returns the room's spawns that can still be claimed
func (s *Service) ListSpawns(ctx context.Context, roomID model.RoomID) ([]*model.Spawn, error) {
	if _, err := s.storage.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	spawns, err := s.storage.ListSpawns(ctx, roomID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	active := spawns[:0]
	for _, sp := range spawns {
		if sp.ClaimableAt(now) {
			active = append(active, sp)
		}
	}
	return active, nil
}

// Balance returns the identity's event currency
func (s *Service) Balance(ctx context.Context, identityID model.IdentityID) (int, error) {
	user, err := s.storage.GetUser(ctx, identityID)
	if err != nil {
		return 0, err
	}
	return user.EventCurrency, nil
}

// ExpireSweep marks unclaimed spawns past their expiry as expired
func (s *Service) ExpireSweep(ctx context.Context) (int, error) {
	expired, err := s.storage.ExpireSpawns(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	for _, sp := range expired {
		s.notices.Notice(ctx, sp.RoomID, fmt.Sprintf("The %s got away.", sp.Kind))
	}
	return len(expired), nil
}

// AutoSpawn rolls SpawnChance for every room with a recently active member and
// spawns a random kind on success. Returns the number of spawns created.
func (s *Service) AutoSpawn(ctx context.Context) (int, error) {
	if s.cfg.SpawnChance <= 0 {
		return 0, nil
	}
	rooms, err := s.storage.ListRooms(ctx)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	threshold := int(s.cfg.SpawnChance * spawnChanceScale)
	spawned := 0
	for _, r := range rooms {
		if !hasActiveMember(r, now.Add(-s.cfg.ActiveWithin)) {
			continue
		}
		if s.random.Intn(spawnChanceScale) >= threshold {
			continue
		}
		var err error
		if s.random.Intn(2) == 0 {
			_, err = s.SpawnGhost(ctx, r.ID)
		} else {
			_, err = s.SpawnPumpkin(ctx, r.ID)
		}
		switch {
		case err == nil:
			spawned++
		case errors.Is(err, model.ErrSpawnActive), errors.Is(err, model.ErrRoomNotFound):
		default:
			return spawned, err
		}
	}
	return spawned, nil
}

func hasActiveMember(r *model.Room, since time.Time) bool {
	for _, m := range r.Members {
		if !m.LastActivity.Before(since) {
			return true
		}
	}
	return false
}
