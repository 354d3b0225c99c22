// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

// Suite runs the conformance tests against a backend produced by NewStorage.
// NewStorage is called before every test and must return an empty store.
type Suite struct {
	suite.Suite
	NewStorage func() storage.Storage

	store storage.Storage
	ctx   context.Context
	now   time.Time
}

func (s *Suite) SetupTest() {
	s.store = s.NewStorage()
	s.ctx = context.Background()
	s.now = time.Date(2024, 10, 31, 20, 0, 0, 0, time.UTC)
}

func (s *Suite) TearDownTest() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

func (s *Suite) user(id model.IdentityID, name string) *model.User {
	return &model.User{
		ID:          id,
		Kind:        model.KindGuest,
		DisplayName: name,
		Roles:       []model.Role{model.RoleUser},
		Color:       model.ColorBlue,
		CreatedAt:   s.now,
		LastSeenAt:  s.now,
	}
}

func (s *Suite) room(id model.RoomID, members ...model.IdentityID) *model.Room {
	r := &model.Room{
		ID:        id,
		Name:      "room " + string(id),
		Capacity:  10,
		CreatedAt: s.now,
		UpdatedAt: s.now,
	}
	for i, m := range members {
		r.Members = append(r.Members, model.Member{
			IdentityID:   m,
			IsHost:       i == 0,
			JoinedAt:     s.now.Add(time.Duration(i) * time.Second),
			LastActivity: s.now,
		})
	}
	return r
}

func (s *Suite) message(id model.MessageID, roomID model.RoomID, at time.Time) *model.Message {
	return &model.Message{
		ID:        id,
		RoomID:    roomID,
		SenderID:  "u1",
		Body:      "hello " + string(id),
		Type:      model.MessageNormal,
		CreatedAt: at,
	}
}

// User tests

func (s *Suite) TestSaveAndGetUser() {
	s.Require().NoError(s.store.SaveUser(s.ctx, s.user("u1", "Alice")))

	got, err := s.store.GetUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal("Alice", got.DisplayName)
	s.Equal(model.ColorBlue, got.Color)
	s.Equal([]model.Role{model.RoleUser}, got.Roles)
	s.True(s.now.Equal(got.CreatedAt))
}

func (s *Suite) TestGetUserNotFound() {
	_, err := s.store.GetUser(s.ctx, "missing")
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *Suite) TestUpdateUserMutatorErrorLeavesValueUnchanged() {
	s.Require().NoError(s.store.SaveUser(s.ctx, s.user("u1", "Alice")))

	_, err := s.store.UpdateUser(s.ctx, "u1", func(u *model.User) error {
		u.Color = "chartreuse"
		return model.ErrInvalidColor
	})
	s.ErrorIs(err, model.ErrInvalidColor)

	got, err := s.store.GetUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(model.ColorBlue, got.Color)
}

func (s *Suite) TestUpdateUserNotFound() {
	_, err := s.store.UpdateUser(s.ctx, "missing", func(u *model.User) error { return nil })
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *Suite) TestConcurrentUserUpdatesAreSerialized() {
	s.Require().NoError(s.store.SaveUser(s.ctx, s.user("u1", "Alice")))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.UpdateUser(s.ctx, "u1", func(u *model.User) error {
				u.EventCurrency++
				return nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	got, err := s.store.GetUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(20, got.EventCurrency)
}

func (s *Suite) TestDeleteUser() {
	s.Require().NoError(s.store.SaveUser(s.ctx, s.user("u1", "Alice")))
	s.Require().NoError(s.store.DeleteUser(s.ctx, "u1"))

	_, err := s.store.GetUser(s.ctx, "u1")
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *Suite) TestListUsersSeenSince() {
	stale := s.user("u1", "Stale")
	stale.LastSeenAt = s.now.Add(-time.Hour)
	s.Require().NoError(s.store.SaveUser(s.ctx, stale))
	s.Require().NoError(s.store.SaveUser(s.ctx, s.user("u2", "Bob")))
	s.Require().NoError(s.store.SaveUser(s.ctx, s.user("u3", "Alice")))

	users, err := s.store.ListUsersSeenSince(s.ctx, s.now.Add(-time.Minute))
	s.Require().NoError(err)
	s.Require().Len(users, 2)
	s.Equal("Alice", users[0].DisplayName)
	s.Equal("Bob", users[1].DisplayName)
}

// Credential tests

func (s *Suite) TestSaveAndGetCredentials() {
	creds := &model.Credentials{UserID: "r_1", Username: "alice", PasswordHash: "hash", CreatedAt: s.now, UpdatedAt: s.now}
	s.Require().NoError(s.store.SaveCredentials(s.ctx, creds))

	got, err := s.store.GetCredentialsByUsername(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(model.IdentityID("r_1"), got.UserID)
	s.Equal("hash", got.PasswordHash)
}

func (s *Suite) TestSaveCredentialsDuplicateUsername() {
	s.Require().NoError(s.store.SaveCredentials(s.ctx, &model.Credentials{UserID: "r_1", Username: "alice", CreatedAt: s.now, UpdatedAt: s.now}))

	err := s.store.SaveCredentials(s.ctx, &model.Credentials{UserID: "r_2", Username: "alice", CreatedAt: s.now, UpdatedAt: s.now})
	s.ErrorIs(err, model.ErrUsernameTaken)
}

func (s *Suite) TestGetCredentialsNotFound() {
	_, err := s.store.GetCredentialsByUsername(s.ctx, "nobody")
	s.ErrorIs(err, model.ErrCredentialsNotFound)
}

// Room tests

func (s *Suite) TestCreateAndGetRoom() {
	room := s.room("r1", "u1", "u2")
	room.PasswordHash = "secret-hash"
	room.Mutes = []model.Mute{{IdentityID: "u2", MutedBy: "u1"}}
	s.Require().NoError(s.store.CreateRoom(s.ctx, room))

	got, err := s.store.GetRoom(s.ctx, "r1")
	s.Require().NoError(err)
	s.Equal("room r1", got.Name)
	s.Equal("secret-hash", got.PasswordHash)
	s.Require().Len(got.Members, 2)
	s.True(got.Members[0].IsHost)
	s.Equal(model.IdentityID("u2"), got.Members[1].IdentityID)
	s.Require().Len(got.Mutes, 1)
	s.Nil(got.Mutes[0].ExpiresAt)
}

func (s *Suite) TestCreateRoomDuplicate() {
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r1")))
	s.ErrorIs(s.store.CreateRoom(s.ctx, s.room("r1")), model.ErrRoomExists)
}

func (s *Suite) TestGetRoomNotFound() {
	_, err := s.store.GetRoom(s.ctx, "missing")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestListRoomsOrderedByCreation() {
	later := s.room("r-later")
	later.CreatedAt = s.now.Add(time.Minute)
	s.Require().NoError(s.store.CreateRoom(s.ctx, later))
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r-first")))

	rooms, err := s.store.ListRooms(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(rooms, 2)
	s.Equal(model.RoomID("r-first"), rooms[0].ID)
	s.Equal(model.RoomID("r-later"), rooms[1].ID)
}

func (s *Suite) TestUpdateRoomMutatorErrorLeavesValueUnchanged() {
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r1", "u1")))

	_, err := s.store.UpdateRoom(s.ctx, "r1", func(r *model.Room) error {
		r.ClearHost()
		return model.ErrForbidden
	})
	s.ErrorIs(err, model.ErrForbidden)

	got, err := s.store.GetRoom(s.ctx, "r1")
	s.Require().NoError(err)
	s.True(got.IsHost("u1"))
}

func (s *Suite) TestConcurrentRoomUpdatesAreSerialized() {
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r1")))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := model.IdentityID(fmt.Sprintf("u%d", i))
			_, err := s.store.UpdateRoom(s.ctx, "r1", func(r *model.Room) error {
				r.Members = append(r.Members, model.Member{IdentityID: id, JoinedAt: s.now})
				if r.GetHost() == nil {
					r.SetHost(id)
				}
				return nil
			})
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	got, err := s.store.GetRoom(s.ctx, "r1")
	s.Require().NoError(err)
	s.Len(got.Members, 20)
	s.Equal(1, got.HostCount())
}

func (s *Suite) TestDeleteRoomCascades() {
	s.Require().NoError(s.store.SaveUser(s.ctx, s.user("u1", "Alice")))
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r1", "u1")))
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r2", "u1")))
	s.Require().NoError(s.store.AppendMessage(s.ctx, s.message("m1", "r1", s.now), []*model.Mention{
		{ID: "mn1", MessageID: "m1", RoomID: "r1", RecipientID: "u2", SenderID: "u1", CreatedAt: s.now},
	}))
	s.Require().NoError(s.store.AppendMessage(s.ctx, s.message("m2", "r2", s.now), nil))
	s.Require().NoError(s.store.SaveBan(s.ctx, &model.Ban{RoomID: "r1", IdentityID: "u3", CreatedAt: s.now}))
	s.Require().NoError(s.store.SaveBan(s.ctx, &model.Ban{RoomID: model.SiteScope, IdentityID: "u4", CreatedAt: s.now}))
	s.Require().NoError(s.store.SaveKnock(s.ctx, &model.Knock{ID: "k1", RoomID: "r1", IdentityID: "u5", Status: model.KnockPending, CreatedAt: s.now}))
	s.Require().NoError(s.store.CreateSpawn(s.ctx, &model.Spawn{ID: "s1", RoomID: "r1", Kind: model.SpawnPumpkin, State: model.SpawnActive, SpawnedAt: s.now, ExpiresAt: s.now.Add(time.Minute)}))

	s.Require().NoError(s.store.DeleteRoom(s.ctx, "r1"))

	_, err := s.store.GetRoom(s.ctx, "r1")
	s.ErrorIs(err, model.ErrRoomNotFound)

	msgs, err := s.store.ListMessages(s.ctx, "r1")
	s.Require().NoError(err)
	s.Empty(msgs)
	mentions, err := s.store.ListMentions(s.ctx, "u2")
	s.Require().NoError(err)
	s.Empty(mentions)
	_, err = s.store.GetBan(s.ctx, "r1", "u3")
	s.ErrorIs(err, model.ErrBanNotFound)
	_, err = s.store.GetKnock(s.ctx, "k1")
	s.ErrorIs(err, model.ErrKnockNotFound)
	_, err = s.store.GetSpawn(s.ctx, "s1")
	s.ErrorIs(err, model.ErrSpawnNotFound)

	// Unrelated rows survive
	_, err = s.store.GetBan(s.ctx, model.SiteScope, "u4")
	s.NoError(err)
	msgs, err = s.store.ListMessages(s.ctx, "r2")
	s.Require().NoError(err)
	s.Len(msgs, 1)
}

func (s *Suite) TestDeleteRoomIfEmpty() {
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("occupied", "u1")))
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("empty")))
	permanent := s.room("lobby")
	permanent.Permanent = true
	s.Require().NoError(s.store.CreateRoom(s.ctx, permanent))

	deleted, err := s.store.DeleteRoomIfEmpty(s.ctx, "occupied")
	s.Require().NoError(err)
	s.False(deleted)

	deleted, err = s.store.DeleteRoomIfEmpty(s.ctx, "lobby")
	s.Require().NoError(err)
	s.False(deleted)

	deleted, err = s.store.DeleteRoomIfEmpty(s.ctx, "empty")
	s.Require().NoError(err)
	s.True(deleted)

	deleted, err = s.store.DeleteRoomIfEmpty(s.ctx, "empty")
	s.Require().NoError(err)
	s.False(deleted)
}

// Message tests

func (s *Suite) TestListMessagesInTimestampOrder() {
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r1")))
	s.Require().NoError(s.store.AppendMessage(s.ctx, s.message("m2", "r1", s.now.Add(time.Second)), nil))
	s.Require().NoError(s.store.AppendMessage(s.ctx, s.message("m1", "r1", s.now), nil))
	s.Require().NoError(s.store.AppendMessage(s.ctx, s.message("m3", "r1", s.now.Add(2*time.Second)), nil))

	msgs, err := s.store.ListMessages(s.ctx, "r1")
	s.Require().NoError(err)
	s.Require().Len(msgs, 3)
	s.Equal(model.MessageID("m1"), msgs[0].ID)
	s.Equal(model.MessageID("m2"), msgs[1].ID)
	s.Equal(model.MessageID("m3"), msgs[2].ID)
	s.Equal("hello m1", msgs[0].Body)
}

func (s *Suite) TestAppendMessageUnknownRoom() {
	err := s.store.AppendMessage(s.ctx, s.message("m1", "missing", s.now), nil)
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestSystemMessageHasNoSender() {
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r1")))
	msg := &model.Message{ID: "m1", RoomID: "r1", Body: "a ghost appears", Type: model.MessageSystem, CreatedAt: s.now}
	s.Require().NoError(s.store.AppendMessage(s.ctx, msg, nil))

	msgs, err := s.store.ListMessages(s.ctx, "r1")
	s.Require().NoError(err)
	s.Require().Len(msgs, 1)
	s.Empty(msgs[0].SenderID)
	s.Equal(model.MessageSystem, msgs[0].Type)
}

func (s *Suite) TestDeleteMessagesBeforeCascadesMentions() {
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r1")))
	old := s.now.Add(-48 * time.Hour)
	s.Require().NoError(s.store.AppendMessage(s.ctx, s.message("old", "r1", old), []*model.Mention{
		{ID: "mn-old", MessageID: "old", RoomID: "r1", RecipientID: "u2", SenderID: "u1", CreatedAt: old},
	}))
	s.Require().NoError(s.store.AppendMessage(s.ctx, s.message("new", "r1", s.now), []*model.Mention{
		{ID: "mn-new", MessageID: "new", RoomID: "r1", RecipientID: "u2", SenderID: "u1", CreatedAt: s.now},
	}))

	removed, err := s.store.DeleteMessagesBefore(s.ctx, "r1", s.now.Add(-24*time.Hour))
	s.Require().NoError(err)
	s.Equal(1, removed)

	msgs, err := s.store.ListMessages(s.ctx, "r1")
	s.Require().NoError(err)
	s.Require().Len(msgs, 1)
	s.Equal(model.MessageID("new"), msgs[0].ID)

	mentions, err := s.store.ListMentions(s.ctx, "u2")
	s.Require().NoError(err)
	s.Require().Len(mentions, 1)
	s.Equal(model.MentionID("mn-new"), mentions[0].ID)

	// Idempotent
	removed, err = s.store.DeleteMessagesBefore(s.ctx, "r1", s.now.Add(-24*time.Hour))
	s.Require().NoError(err)
	s.Equal(0, removed)
}

func (s *Suite) TestMarkMentionsRead() {
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r1")))
	s.Require().NoError(s.store.AppendMessage(s.ctx, s.message("m1", "r1", s.now), []*model.Mention{
		{ID: "mn1", MessageID: "m1", RoomID: "r1", RecipientID: "u2", SenderID: "u1", CreatedAt: s.now},
		{ID: "mn2", MessageID: "m1", RoomID: "r1", RecipientID: "u3", SenderID: "u1", CreatedAt: s.now},
	}))

	count, err := s.store.MarkMentionsRead(s.ctx, "u2")
	s.Require().NoError(err)
	s.Equal(1, count)

	mentions, err := s.store.ListMentions(s.ctx, "u2")
	s.Require().NoError(err)
	s.Require().Len(mentions, 1)
	s.True(mentions[0].Read)

	mentions, err = s.store.ListMentions(s.ctx, "u3")
	s.Require().NoError(err)
	s.Require().Len(mentions, 1)
	s.False(mentions[0].Read)

	count, err = s.store.MarkMentionsRead(s.ctx, "u2")
	s.Require().NoError(err)
	s.Equal(0, count)
}

// Ban tests

func (s *Suite) TestSaveGetDeleteBan() {
	expires := s.now.Add(time.Hour)
	s.Require().NoError(s.store.SaveBan(s.ctx, &model.Ban{RoomID: "r1", IdentityID: "u1", BannedBy: "u0", Reason: "spam", CreatedAt: s.now, ExpiresAt: &expires}))

	ban, err := s.store.GetBan(s.ctx, "r1", "u1")
	s.Require().NoError(err)
	s.Equal("spam", ban.Reason)
	s.Require().NotNil(ban.ExpiresAt)
	s.True(expires.Equal(*ban.ExpiresAt))

	_, err = s.store.GetBan(s.ctx, model.SiteScope, "u1")
	s.ErrorIs(err, model.ErrBanNotFound)

	s.Require().NoError(s.store.DeleteBan(s.ctx, "r1", "u1"))
	s.ErrorIs(s.store.DeleteBan(s.ctx, "r1", "u1"), model.ErrBanNotFound)
}

func (s *Suite) TestListBansByScope() {
	s.Require().NoError(s.store.SaveBan(s.ctx, &model.Ban{RoomID: "r1", IdentityID: "u1", CreatedAt: s.now}))
	s.Require().NoError(s.store.SaveBan(s.ctx, &model.Ban{RoomID: "r1", IdentityID: "u2", CreatedAt: s.now.Add(time.Second)}))
	s.Require().NoError(s.store.SaveBan(s.ctx, &model.Ban{RoomID: model.SiteScope, IdentityID: "u3", CreatedAt: s.now}))

	bans, err := s.store.ListBans(s.ctx, "r1")
	s.Require().NoError(err)
	s.Require().Len(bans, 2)
	s.Equal(model.IdentityID("u1"), bans[0].IdentityID)

	site, err := s.store.ListBans(s.ctx, model.SiteScope)
	s.Require().NoError(err)
	s.Require().Len(site, 1)
	s.True(site[0].IsSiteWide())
}

func (s *Suite) TestDeleteExpiredBans() {
	past := s.now.Add(-time.Minute)
	future := s.now.Add(time.Minute)
	s.Require().NoError(s.store.SaveBan(s.ctx, &model.Ban{RoomID: "r1", IdentityID: "expired", CreatedAt: s.now, ExpiresAt: &past}))
	s.Require().NoError(s.store.SaveBan(s.ctx, &model.Ban{RoomID: "r1", IdentityID: "active", CreatedAt: s.now, ExpiresAt: &future}))
	s.Require().NoError(s.store.SaveBan(s.ctx, &model.Ban{RoomID: "r1", IdentityID: "forever", CreatedAt: s.now}))

	count, err := s.store.DeleteExpiredBans(s.ctx, s.now)
	s.Require().NoError(err)
	s.Equal(1, count)

	bans, err := s.store.ListBans(s.ctx, "r1")
	s.Require().NoError(err)
	s.Len(bans, 2)
}

// Knock tests

func (s *Suite) TestKnockLifecycle() {
	s.Require().NoError(s.store.SaveKnock(s.ctx, &model.Knock{ID: "k1", RoomID: "r1", IdentityID: "u1", DisplayName: "Alice", Message: "let me in", Status: model.KnockPending, CreatedAt: s.now}))

	knocks, err := s.store.ListKnocks(s.ctx, "r1")
	s.Require().NoError(err)
	s.Require().Len(knocks, 1)
	s.Equal("let me in", knocks[0].Message)

	resolvedAt := s.now.Add(time.Minute)
	knock, err := s.store.UpdateKnock(s.ctx, "k1", func(k *model.Knock) error {
		k.Status = model.KnockAccepted
		k.ResolvedAt = &resolvedAt
		k.ResolvedBy = "host"
		return nil
	})
	s.Require().NoError(err)
	s.Equal(model.KnockAccepted, knock.Status)

	got, err := s.store.GetKnock(s.ctx, "k1")
	s.Require().NoError(err)
	s.Equal(model.KnockAccepted, got.Status)
	s.Require().NotNil(got.ResolvedAt)
	s.True(resolvedAt.Equal(*got.ResolvedAt))
}

func (s *Suite) TestConcurrentKnockResolutionHappensOnce() {
	s.Require().NoError(s.store.SaveKnock(s.ctx, &model.Knock{ID: "k1", RoomID: "r1", IdentityID: "u1", Status: model.KnockPending, CreatedAt: s.now}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, conflicts := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.UpdateKnock(s.ctx, "k1", func(k *model.Knock) error {
				if k.Status != model.KnockPending {
					return model.ErrKnockResolved
				}
				k.Status = model.KnockDenied
				return nil
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, model.ErrKnockResolved):
				conflicts++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, successes)
	s.Equal(9, conflicts)
}

func (s *Suite) TestSaveKnockOnePendingPerIdentity() {
	s.Require().NoError(s.store.SaveKnock(s.ctx, &model.Knock{ID: "k1", RoomID: "r1", IdentityID: "u1", Status: model.KnockPending, CreatedAt: s.now}))

	s.ErrorIs(s.store.SaveKnock(s.ctx, &model.Knock{ID: "k2", RoomID: "r1", IdentityID: "u1", Status: model.KnockPending, CreatedAt: s.now}), model.ErrKnockPending)
	s.NoError(s.store.SaveKnock(s.ctx, &model.Knock{ID: "k3", RoomID: "r2", IdentityID: "u1", Status: model.KnockPending, CreatedAt: s.now}))
	s.NoError(s.store.SaveKnock(s.ctx, &model.Knock{ID: "k4", RoomID: "r1", IdentityID: "u2", Status: model.KnockPending, CreatedAt: s.now}))

	// Once the first knock is answered the identity may knock again
	_, err := s.store.UpdateKnock(s.ctx, "k1", func(k *model.Knock) error {
		k.Status = model.KnockExpired
		return nil
	})
	s.Require().NoError(err)
	s.NoError(s.store.SaveKnock(s.ctx, &model.Knock{ID: "k2", RoomID: "r1", IdentityID: "u1", Status: model.KnockPending, CreatedAt: s.now.Add(time.Minute)}))
}

func (s *Suite) TestConcurrentKnocksLeaveOnePending() {
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.store.SaveKnock(s.ctx, &model.Knock{
				ID:         model.KnockID(fmt.Sprintf("k%d", i)),
				RoomID:     "r1",
				IdentityID: "u1",
				Status:     model.KnockPending,
				CreatedAt:  s.now,
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, successes)
	knocks, err := s.store.ListKnocks(s.ctx, "r1")
	s.Require().NoError(err)
	s.Len(knocks, 1)
}

func (s *Suite) TestDeleteKnocksBefore() {
	s.Require().NoError(s.store.SaveKnock(s.ctx, &model.Knock{ID: "old", RoomID: "r1", IdentityID: "u1", Status: model.KnockPending, CreatedAt: s.now.Add(-2 * time.Hour)}))
	s.Require().NoError(s.store.SaveKnock(s.ctx, &model.Knock{ID: "new", RoomID: "r1", IdentityID: "u2", Status: model.KnockPending, CreatedAt: s.now}))

	count, err := s.store.DeleteKnocksBefore(s.ctx, s.now.Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(1, count)

	_, err = s.store.GetKnock(s.ctx, "old")
	s.ErrorIs(err, model.ErrKnockNotFound)
	_, err = s.store.GetKnock(s.ctx, "new")
	s.NoError(err)
}

// Spawn tests

func (s *Suite) spawn(id model.SpawnID, kind model.SpawnKind, reward int) *model.Spawn {
	return &model.Spawn{
		ID:        id,
		RoomID:    "r1",
		Kind:      kind,
		Phrase:    "boo",
		Reward:    reward,
		State:     model.SpawnActive,
		SpawnedAt: s.now,
		ExpiresAt: s.now.Add(5 * time.Minute),
	}
}

func (s *Suite) TestCreateSpawnOnePerKind() {
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r1")))
	s.Require().NoError(s.store.CreateSpawn(s.ctx, s.spawn("g1", model.SpawnGhost, 10)))

	s.ErrorIs(s.store.CreateSpawn(s.ctx, s.spawn("g2", model.SpawnGhost, 10)), model.ErrSpawnActive)
	s.NoError(s.store.CreateSpawn(s.ctx, s.spawn("p1", model.SpawnPumpkin, 10)))

	spawns, err := s.store.ListSpawns(s.ctx, "r1")
	s.Require().NoError(err)
	s.Len(spawns, 2)
}

func (s *Suite) TestCreateSpawnReplacesLapsedSpawn() {
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r1")))
	s.Require().NoError(s.store.CreateSpawn(s.ctx, s.spawn("g1", model.SpawnGhost, 10)))

	next := s.spawn("g2", model.SpawnGhost, 10)
	next.SpawnedAt = s.now.Add(10 * time.Minute)
	next.ExpiresAt = next.SpawnedAt.Add(5 * time.Minute)
	s.Require().NoError(s.store.CreateSpawn(s.ctx, next))

	old, err := s.store.GetSpawn(s.ctx, "g1")
	s.Require().NoError(err)
	s.Equal(model.SpawnExpired, old.State)
}

func (s *Suite) TestClaimSpawnCreditsReward() {
	s.Require().NoError(s.store.SaveUser(s.ctx, s.user("u1", "Alice")))
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r1", "u1")))
	s.Require().NoError(s.store.CreateSpawn(s.ctx, s.spawn("g1", model.SpawnGhost, 25)))

	claimed, err := s.store.ClaimSpawn(s.ctx, "g1", "u1", s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(model.SpawnClaimed, claimed.State)
	s.Equal(model.IdentityID("u1"), claimed.ClaimedBy)
	s.Require().NotNil(claimed.ClaimedAt)

	user, err := s.store.GetUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(25, user.EventCurrency)

	_, err = s.store.ClaimSpawn(s.ctx, "g1", "u1", s.now.Add(time.Minute))
	s.ErrorIs(err, model.ErrSpawnClaimed)

	user, err = s.store.GetUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(25, user.EventCurrency)
}

func (s *Suite) TestClaimSpawnAfterExpiry() {
	s.Require().NoError(s.store.SaveUser(s.ctx, s.user("u1", "Alice")))
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r1", "u1")))
	s.Require().NoError(s.store.CreateSpawn(s.ctx, s.spawn("g1", model.SpawnGhost, 25)))

	_, err := s.store.ClaimSpawn(s.ctx, "g1", "u1", s.now.Add(5*time.Minute))
	s.ErrorIs(err, model.ErrSpawnClaimed)

	_, err = s.store.ClaimSpawn(s.ctx, "missing", "u1", s.now)
	s.ErrorIs(err, model.ErrSpawnNotFound)
}

func (s *Suite) TestConcurrentClaimsCreditOnce() {
	s.Require().NoError(s.store.SaveUser(s.ctx, s.user("u1", "Alice")))
	s.Require().NoError(s.store.SaveUser(s.ctx, s.user("u2", "Bob")))
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r1", "u1", "u2")))
	s.Require().NoError(s.store.CreateSpawn(s.ctx, s.spawn("p1", model.SpawnPumpkin, 40)))

	claimants := []model.IdentityID{"u1", "u2", "u1", "u2", "u1", "u2"}
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, conflicts := 0, 0
	for _, id := range claimants {
		wg.Add(1)
		go func(id model.IdentityID) {
			defer wg.Done()
			_, err := s.store.ClaimSpawn(s.ctx, "p1", id, s.now.Add(time.Second))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, model.ErrSpawnClaimed):
				conflicts++
			}
		}(id)
	}
	wg.Wait()

	s.Equal(1, successes)
	s.Equal(len(claimants)-1, conflicts)

	u1, err := s.store.GetUser(s.ctx, "u1")
	s.Require().NoError(err)
	u2, err := s.store.GetUser(s.ctx, "u2")
	s.Require().NoError(err)
	s.Equal(40, u1.EventCurrency+u2.EventCurrency)
}

func (s *Suite) TestExpireSpawns() {
	s.Require().NoError(s.store.CreateRoom(s.ctx, s.room("r1")))
	s.Require().NoError(s.store.CreateSpawn(s.ctx, s.spawn("g1", model.SpawnGhost, 10)))
	long := s.spawn("p1", model.SpawnPumpkin, 10)
	long.ExpiresAt = s.now.Add(time.Hour)
	s.Require().NoError(s.store.CreateSpawn(s.ctx, long))

	expired, err := s.store.ExpireSpawns(s.ctx, s.now.Add(10*time.Minute))
	s.Require().NoError(err)
	s.Require().Len(expired, 1)
	s.Equal(model.SpawnID("g1"), expired[0].ID)
	s.Equal(model.SpawnExpired, expired[0].State)

	again, err := s.store.ExpireSpawns(s.ctx, s.now.Add(10*time.Minute))
	s.Require().NoError(err)
	s.Empty(again)

	p1, err := s.store.GetSpawn(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal(model.SpawnActive, p1.State)
}

func (s *Suite) TestPing() {
	s.NoError(s.store.Ping(s.ctx))
}
