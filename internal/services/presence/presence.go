package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/dependencies/clock"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

// State is the derived presence of a member
type State string

const (
	StateActive       State = "active"
	StateAFK          State = "afk"
	StateDisconnected State = "disconnected"
)

// Config holds the inactivity thresholds
type Config struct {
	AFKAfter        time.Duration
	DisconnectAfter time.Duration
}

// DefaultConfig returns the default presence thresholds
func DefaultConfig() Config {
	return Config{
		AFKAfter:        10 * time.Minute,
		DisconnectAfter: 30 * time.Minute,
	}
}

// Validate checks the thresholds are ordered
func (c Config) Validate() error {
	if c.AFKAfter <= 0 || c.DisconnectAfter <= 0 {
		return fmt.Errorf("presence thresholds must be positive")
	}
	if c.AFKAfter >= c.DisconnectAfter {
		return fmt.Errorf("afk threshold %s must be below disconnect threshold %s", c.AFKAfter, c.DisconnectAfter)
	}
	return nil
}

// Evaluator is the only place inactivity thresholds are applied
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates an evaluator for the given thresholds
func NewEvaluator(cfg Config) Evaluator {
	return Evaluator{cfg: cfg}
}

// State derives presence from the time since last activity
func (e Evaluator) State(lastActivity, now time.Time) State {
	idle := now.Sub(lastActivity)
	switch {
	case idle >= e.cfg.DisconnectAfter:
		return StateDisconnected
	case idle >= e.cfg.AFKAfter:
		return StateAFK
	default:
		return StateActive
	}
}

// OnlineSince returns the cutoff for "seen recently enough to be online"
func (e Evaluator) OnlineSince(now time.Time) time.Time {
	return now.Add(-e.cfg.DisconnectAfter)
}

// Disconnector removes a member whose presence has lapsed. It must re-check the
// member's state atomically, and removing an identity that is already gone (or
// has become active again) must succeed and report false.
type Disconnector interface {
	DisconnectIdle(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) (bool, error)
}

// Sweeper removes disconnected members from every room
type Sweeper struct {
	storage   storage.Storage
	rooms     Disconnector
	evaluator Evaluator
	clock     clock.Clock
	logger    *slog.Logger
}

// NewSweeper creates a presence sweeper
func NewSweeper(storage storage.Storage, rooms Disconnector, evaluator Evaluator, clock clock.Clock, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		storage:   storage,
		rooms:     rooms,
		evaluator: evaluator,
		clock:     clock,
		logger:    logger.With(slog.String("component", "presence")),
	}
}

// Sweep disconnects every member whose state is disconnected and returns how many were removed
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	rooms, err := s.storage.ListRooms(ctx)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	removed := 0
	for _, room := range rooms {
		for _, m := range room.Members {
			if s.evaluator.State(m.LastActivity, now) != StateDisconnected {
				continue
			}
			ok, err := s.rooms.DisconnectIdle(ctx, room.ID, m.IdentityID)
			if err != nil {
				s.logger.Warn("failed to disconnect idle member",
					slog.String("room_id", string(room.ID)),
					slog.String("identity_id", string(m.IdentityID)),
					slog.Any("error", err))
				continue
			}
			if ok {
				removed++
			}
		}
	}
	if removed > 0 {
		s.logger.Info("disconnected idle members", slog.Int("removed", removed))
	}
	return removed, nil
}
