package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage/storagetest"
)

func TestStorageSuite(t *testing.T) {
	suite.Run(t, &storagetest.Suite{
		NewStorage: func() storage.Storage {
			mini := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
			return NewWithClient(client, DefaultConfig())
		},
	})
}

type RedisSpecificSuite struct {
	suite.Suite
	mini    *miniredis.Miniredis
	storage *Storage
	ctx     context.Context
}

func TestRedisSpecificSuite(t *testing.T) {
	suite.Run(t, new(RedisSpecificSuite))
}

func (s *RedisSpecificSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())

	client := redis.NewClient(&redis.Options{
		Addr: s.mini.Addr(),
	})

	s.storage = NewWithClient(client, DefaultConfig())
	s.ctx = context.Background()
}

func (s *RedisSpecificSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
	if s.mini != nil {
		s.mini.Close()
	}
}

func (s *RedisSpecificSuite) TestKeyLayout() {
	now := time.Now()
	s.Require().NoError(s.storage.SaveUser(s.ctx, &model.User{ID: "u1", DisplayName: "Alice", LastSeenAt: now}))
	s.Require().NoError(s.storage.CreateRoom(s.ctx, &model.Room{ID: "r1", Name: "Lounge", Capacity: 5, CreatedAt: now}))
	s.Require().NoError(s.storage.SaveBan(s.ctx, &model.Ban{RoomID: model.SiteScope, IdentityID: "u9", CreatedAt: now}))

	s.True(s.mini.Exists("lounge:user:u1"))
	s.True(s.mini.Exists("lounge:room:r1"))
	s.True(s.mini.Exists("lounge:ban:site:u9"))

	isMember, err := s.mini.SIsMember("lounge:idx:rooms", "r1")
	s.Require().NoError(err)
	s.True(isMember)
}

func (s *RedisSpecificSuite) TestConnectionFailureIsUnavailable() {
	s.mini.Close()

	_, err := s.storage.GetRoom(s.ctx, "r1")
	s.Require().Error(err)
	s.True(errors.Is(err, storage.ErrUnavailable))

	s.ErrorIs(s.storage.Ping(s.ctx), storage.ErrUnavailable)
}

func (s *RedisSpecificSuite) TestNewRejectsUnreachableServer() {
	cfg := DefaultConfig()
	cfg.URL = "redis://" + s.mini.Addr()
	st, err := New(cfg)
	s.Require().NoError(err)
	s.Require().NoError(st.Close())

	s.mini.Close()
	_, err = New(cfg)
	s.ErrorIs(err, storage.ErrUnavailable)
}
