package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/dependencies/mocks"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage/memory"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/testutil"
)

func TestEvaluator_State(t *testing.T) {
	e := NewEvaluator(Config{AFKAfter: 10 * time.Minute, DisconnectAfter: 30 * time.Minute})
	now := time.Date(2024, 10, 31, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		idle time.Duration
		want State
	}{
		{0, StateActive},
		{9*time.Minute + 59*time.Second, StateActive},
		{10 * time.Minute, StateAFK},
		{29 * time.Minute, StateAFK},
		{30 * time.Minute, StateDisconnected},
		{48 * time.Hour, StateDisconnected},
	}
	for _, tt := range tests {
		if got := e.State(now.Add(-tt.idle), now); got != tt.want {
			t.Errorf("State(idle=%s) = %s, want %s", tt.idle, got, tt.want)
		}
	}

	if got := e.OnlineSince(now); !got.Equal(now.Add(-30 * time.Minute)) {
		t.Errorf("OnlineSince = %s", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if err := (Config{AFKAfter: time.Hour, DisconnectAfter: time.Minute}).Validate(); err == nil {
		t.Error("expected error when afk >= disconnect")
	}
	if err := (Config{AFKAfter: 0, DisconnectAfter: time.Minute}).Validate(); err == nil {
		t.Error("expected error for zero afk threshold")
	}
}

type fakeDisconnector struct {
	mu      sync.Mutex
	calls   []model.IdentityID
	failFor model.IdentityID
}

func (f *fakeDisconnector) DisconnectIdle(_ context.Context, _ model.RoomID, id model.IdentityID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.failFor {
		return false, errors.New("boom")
	}
	f.calls = append(f.calls, id)
	return true, nil
}

type SweeperSuite struct {
	suite.Suite
	clock *mocks.MockClock
	store *memory.Storage
	rooms *fakeDisconnector
	sweep *Sweeper
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 10, 31, 20, 0, 0, 0, time.UTC))
	s.store = memory.New()
	s.rooms = &fakeDisconnector{}
	s.sweep = NewSweeper(s.store, s.rooms, NewEvaluator(DefaultConfig()), s.clock, testutil.NopLogger())

	now := s.clock.Now()
	s.Require().NoError(s.store.CreateRoom(context.Background(), &model.Room{
		ID:       "r1",
		Name:     "Lounge",
		Capacity: 10,
		Members: []model.Member{
			{IdentityID: "fresh", JoinedAt: now, LastActivity: now},
			{IdentityID: "afk", JoinedAt: now, LastActivity: now.Add(-15 * time.Minute)},
			{IdentityID: "gone", JoinedAt: now, LastActivity: now.Add(-time.Hour)},
			{IdentityID: "broken", JoinedAt: now, LastActivity: now.Add(-time.Hour)},
		},
		CreatedAt: now,
	}))
}

func (s *SweeperSuite) TestSweep_DisconnectsOnlyLapsedMembers() {
	s.rooms.failFor = "broken"

	removed, err := s.sweep.Sweep(context.Background())
	s.Require().NoError(err)
	s.Equal(1, removed)
	s.Equal([]model.IdentityID{"gone"}, s.rooms.calls)
}

func (s *SweeperSuite) TestSweep_AfterTimePasses() {
	s.clock.Advance(time.Hour)

	removed, err := s.sweep.Sweep(context.Background())
	s.Require().NoError(err)
	s.Equal(4, removed)
}
